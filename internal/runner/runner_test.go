package runner

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rosrad/rtags/internal/job"
	"github.com/rosrad/rtags/internal/unit"
	"github.com/rosrad/rtags/internal/wire"
)

func fakeWorker(t *testing.T, script string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-worker")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func newJob() *job.Job {
	u := unit.NewUnit(unit.Source{Path: "/tmp/a.cpp"})
	u.Preprocessed = []byte("preprocessed")
	return job.New("/proj", u)
}

func TestLaunchAndWaitSuccess(t *testing.T) {
	worker := fakeWorker(t, "#!/bin/sh\ncat >/dev/null\nexit 0\n")
	r := &Runner{WorkerBinary: worker, SocketDir: t.TempDir()}

	j := newJob()
	launched, err := r.Launch(j)
	require.NoError(t, err)
	require.NotZero(t, launched.PID)

	finish := r.Wait(j, launched)
	require.False(t, finish.Crashed)
	require.Equal(t, 0, finish.ExitCode)
}

func TestLaunchAndWaitCrash(t *testing.T) {
	worker := fakeWorker(t, "#!/bin/sh\ncat >/dev/null\necho boom 1>&2\nexit 1\n")
	r := &Runner{WorkerBinary: worker, SocketDir: t.TempDir()}

	j := newJob()
	launched, err := r.Launch(j)
	require.NoError(t, err)

	finish := r.Wait(j, launched)
	require.True(t, finish.Crashed)
	require.Equal(t, 1, finish.ExitCode)
	require.Contains(t, finish.Stderr, "boom")
}

func TestAwaitResultDecodesReportedData(t *testing.T) {
	worker := fakeWorker(t, "#!/bin/sh\ncat >/dev/null\nexit 0\n")
	r := &Runner{WorkerBinary: worker, SocketDir: t.TempDir()}

	j := newJob()
	launched, err := r.Launch(j)
	require.NoError(t, err)

	resultCh := make(chan wire.IndexData, 1)
	errCh := make(chan error, 1)
	go func() {
		data, err := r.AwaitResult(launched)
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- data
	}()

	conn, err := net.Dial("unix", launched.SocketPath)
	require.NoError(t, err)
	wc := &wire.Conn{Conn: conn}
	payload, err := wire.Encode(&wire.IndexerMessage{Data: wire.IndexData{JobID: j.ID, FileID: 7, Project: "/proj"}})
	require.NoError(t, err)
	require.NoError(t, wc.Send(payload))
	require.NoError(t, wc.Close())

	select {
	case data := <-resultCh:
		require.Equal(t, j.ID, data.JobID)
		require.Equal(t, uint32(7), data.FileID)
	case err := <-errCh:
		t.Fatalf("AwaitResult error: %v", err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for result")
	}

	finish := r.Wait(j, launched)
	require.False(t, finish.Crashed)
}

func TestScheduleCrashNotificationFires(t *testing.T) {
	done := make(chan struct{})
	ScheduleCrashNotification(10*time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected the crash notification callback to fire")
	}
}
