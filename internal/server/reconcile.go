package server

import (
	"github.com/rosrad/rtags/internal/unit"
	"github.com/rosrad/rtags/internal/wire"
)

// handleIndexerMessage reconciles one job's result, whichever replica
// produced it first: a job already missing from processing has already
// been reconciled by another report (or was aborted), so this is a
// no-op rather than an error. Location-specific bits are cleared
// regardless of outcome; the completion bit is only set once, which is
// what makes a late duplicate report harmless.
func (s *Server) handleIndexerMessage(m *wire.IndexerMessage) {
	ws := s.beginWork()
	defer ws.End()

	j, ok := s.table.Processing(m.Data.JobID)
	if !ok {
		return
	}

	completeBit := unit.StatusCompleteLocal
	if j.Unit.Location == unit.LocationRemote {
		j.Unit.Status &^= unit.StatusRescheduled
		completeBit = unit.StatusCompleteRemote
	} else {
		j.Unit.Status &^= unit.StatusRunningLocal
	}

	s.table.UntrackProcessing(j.ID)

	if j.Unit.Status.Has(unit.StatusAborted) {
		return
	}
	if !j.Unit.MarkComplete(completeBit) {
		return
	}

	if s.metrics != nil {
		if completeBit == unit.StatusCompleteLocal {
			s.metrics.JobsCompletedLocal.Inc()
		} else {
			s.metrics.JobsCompletedRemote.Inc()
		}
	}

	proj, err := s.projects.Get(j.Project)
	if err != nil {
		return
	}
	proj.ResetCrash(j.Unit.Key)
	proj.OnJobFinished(m.Data.FileID, s.table.OutstandingForProject(j.Project))
}

// handleVisitFileMessage resolves a path a worker encountered mid-index
// to a stable file id via the owning project. An unknown project name
// is created on first use; if the project cannot be loaded, the reply
// carries Visit=false and FileID=0.
func (s *Server) handleVisitFileMessage(c *wire.Conn, m *wire.VisitFileMessage) {
	proj, err := s.projects.Get(m.Project)
	if err != nil {
		s.send(c, &wire.VisitFileResponseMessage{FileID: 0, Resolved: m.File, Visit: false})
		return
	}

	id, visit := proj.VisitFile(m.File, m.Key)
	s.send(c, &wire.VisitFileResponseMessage{FileID: id, Resolved: m.File, Visit: visit})
}
