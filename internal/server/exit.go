package server

import (
	"log"
	"os"
	"time"

	"github.com/rosrad/rtags/internal/runner"
	"github.com/rosrad/rtags/internal/unit"
	"github.com/rosrad/rtags/internal/wire"
)

// shutdownGrace is how long a node waits after propagating an exit
// order before actually terminating, giving in-flight sends a chance
// to land on the wire.
const shutdownGrace = time.Second

// handleExitMessage implements the shutdown cascade: a forwarded order
// climbs to the job server first if one is reachable, then fans back
// down to every connected client with Forward cleared so it doesn't
// bounce back upstream. A node with nothing left to tell just exits.
func (s *Server) handleExitMessage(c *wire.Conn, m *wire.ExitMessage) {
	s.connMu.Lock()
	jobServerConn := s.jobServerConn
	hasClients := len(s.clients) > 0
	s.connMu.Unlock()

	if m.Forward && jobServerConn != nil {
		s.send(jobServerConn, &wire.ExitMessage{ExitCode: m.ExitCode, Forward: true})
		scheduleExit(m.ExitCode)
		return
	}

	if hasClients {
		s.broadcastClients(&wire.ExitMessage{ExitCode: m.ExitCode, Forward: false})
		scheduleExit(m.ExitCode)
		return
	}

	os.Exit(m.ExitCode)
}

func scheduleExit(code int) {
	time.AfterFunc(shutdownGrace, func() { os.Exit(code) })
}

// abortLocalJobs kills every live local child on server teardown: their
// jobs are marked Aborted so a late exit or stray result is ignored
// rather than promoted to Crashed or forwarded to a project.
func (s *Server) abortLocalJobs() {
	for _, lj := range s.table.LocalJobRecords() {
		lj.Job.Unit.Status |= unit.StatusAborted
		if err := runner.Kill(lj.PID); err != nil {
			log.Printf("server: kill local job %d (pid %d): %v", lj.Job.ID, lj.PID, err)
		}
		if s.metrics != nil {
			s.metrics.JobsAborted.Inc()
		}
	}
}
