// Package runner spawns and supervises the local child processes that
// actually do the parse/index work.
package runner

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/rosrad/rtags/internal/job"
	"github.com/rosrad/rtags/internal/wire"
)

// Finish is delivered once a local child exits, whether cleanly or not.
type Finish struct {
	Job      *job.Job
	PID      int
	ExitCode int
	Stderr   string
	Crashed  bool
}

// Runner launches the configured indexer worker binary for each job
// dispatched locally.
type Runner struct {
	// WorkerBinary is the path to the worker executable.
	WorkerBinary string
	// SocketDir is where per-job IPC socket files are created; the
	// worker reports its IndexerMessage back over the socket named
	// here.
	SocketDir string
}

// Launched is what Launch hands back: the running command plus the
// unique IPC socket path the worker was told to report to.
type Launched struct {
	Cmd        *exec.Cmd
	PID        int
	SocketPath string

	resultLn net.Listener
}

// Launch forks the worker binary with the job's preprocessed unit
// streamed to stdin (4-byte length prefix + JSON) and the job id,
// project and IPC socket path on the command line. The child is put in
// its own process group so Kill can take down its whole subtree (e.g.
// a runaway clang invocation) without signaling the coordinator.
func (r *Runner) Launch(j *job.Job) (*Launched, error) {
	socketPath := fmt.Sprintf("%s/%s.sock", r.SocketDir, uuid.NewString())

	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("runner: listen %s: %w", socketPath, err)
	}

	payload, err := encodeUnitForStdin(j, socketPath)
	if err != nil {
		ln.Close()
		return nil, fmt.Errorf("runner: encode unit for job %d: %w", j.ID, err)
	}

	cmd := exec.Command(r.WorkerBinary,
		"--job-id", fmt.Sprintf("%d", j.ID),
		"--project", j.Project,
		"--socket", socketPath,
	)
	cmd.Stdin = bytes.NewReader(payload)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		ln.Close()
		return nil, fmt.Errorf("runner: start job %d: %w", j.ID, err)
	}

	return &Launched{Cmd: cmd, PID: cmd.Process.Pid, SocketPath: socketPath, resultLn: ln}, nil
}

// Close releases the job's IPC socket. Call it once Wait returns,
// whether or not AwaitResult ever produced a result, so a worker that
// crashed before connecting doesn't leave AwaitResult blocked on
// Accept forever; it has no effect on a connection AwaitResult already
// accepted.
func (l *Launched) Close() error {
	return l.resultLn.Close()
}

// AwaitResult accepts the worker's single callback connection on the
// job's IPC socket and decodes its reported IndexData. Intended to run
// concurrently with Wait on its own goroutine; a worker that crashes
// before connecting just leaves this blocked on Accept until the
// listener is torn down by the caller.
func (r *Runner) AwaitResult(launched *Launched) (wire.IndexData, error) {
	defer os.Remove(launched.SocketPath)
	defer launched.resultLn.Close()

	conn, err := launched.resultLn.Accept()
	if err != nil {
		return wire.IndexData{}, fmt.Errorf("runner: accept on %s: %w", launched.SocketPath, err)
	}
	wc := &wire.Conn{Conn: conn}
	defer wc.Close()

	payload, err := wc.Receive()
	if err != nil {
		return wire.IndexData{}, fmt.Errorf("runner: receive result: %w", err)
	}
	msg, err := wire.Decode(payload)
	if err != nil {
		return wire.IndexData{}, fmt.Errorf("runner: decode result: %w", err)
	}
	im, ok := msg.(*wire.IndexerMessage)
	if !ok {
		return wire.IndexData{}, fmt.Errorf("runner: unexpected result message %T", msg)
	}
	return im.Data, nil
}

// Wait blocks until the child exits and reports the outcome. It is
// meant to run on its own goroutine; the caller posts the Finish onto
// the event loop's queue rather than touching scheduler state here.
func (r *Runner) Wait(j *job.Job, launched *Launched) Finish {
	err := launched.Cmd.Wait()
	stderr := ""
	if sb, ok := launched.Cmd.Stderr.(*bytes.Buffer); ok {
		stderr = sb.String()
	}
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}
	crashed := exitCode != 0 || stderr != ""
	return Finish{Job: j, PID: launched.PID, ExitCode: exitCode, Stderr: stderr, Crashed: crashed}
}

// Kill terminates pid's whole process group. Server teardown uses it
// to kill the children of the jobs it aborts.
func Kill(pid int) error {
	if err := unix.Kill(-pid, unix.SIGKILL); err != nil && err != unix.ESRCH {
		return fmt.Errorf("runner: kill pgid %d: %w", pid, err)
	}
	return nil
}

// ScheduleCrashNotification arranges for fn, a synthetic empty
// IndexData delivery standing in for the crashed job's result, to run
// after delay. It's a thin wrapper over time.AfterFunc so the retry
// window is the same configurable knob as config.Options.CrashRetryDelay
// rather than a hardcoded constant.
func ScheduleCrashNotification(delay time.Duration, fn func()) *time.Timer {
	return time.AfterFunc(delay, fn)
}

// encodeUnitForStdin builds the stdin payload: 4-byte little-endian
// size followed by a JSON-serialized wire.WireUnit.
func encodeUnitForStdin(j *job.Job, socketPath string) ([]byte, error) {
	wu := wire.WireUnit{
		JobID:       j.ID,
		Project:     j.Project,
		Unit:        *j.Unit,
		Destination: j.Destination,
		Port:        j.Port,
	}
	body, err := json.Marshal(wu)
	if err != nil {
		return nil, err
	}
	header := make([]byte, 4)
	binary.LittleEndian.PutUint32(header, uint32(len(body)))
	return append(header, body...), nil
}
