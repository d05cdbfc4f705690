package server

import (
	"time"

	"github.com/rosrad/rtags/internal/job"
	"github.com/rosrad/rtags/internal/unit"
)

// startRescheduleTimer arms a single-shot timer if one isn't already
// running. It is safe to call repeatedly; only the first call in a
// given window actually schedules anything.
func (s *Server) startRescheduleTimer() {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.rescheduleTimer != nil {
		return
	}
	s.rescheduleTimer = time.AfterFunc(s.opts.RescheduleTimeout, s.fireReschedule)
}

// fireReschedule scans processing for remote jobs that have overrun
// their timeout, re-queues them (without discarding the original
// replica, which may still return a late but valid result), and
// restarts the timer if any remote job remains outstanding.
func (s *Server) fireReschedule() {
	s.connMu.Lock()
	s.rescheduleTimer = nil
	s.connMu.Unlock()

	ws := s.beginWork()

	now := nowMillis()
	timeoutMs := s.opts.RescheduleTimeout.Milliseconds()
	anyOutstanding := false

	// EachProcessing holds the table's lock for the whole walk, so the
	// re-queue (AddJob locks the same mutex) has to happen in a second
	// pass after the walk returns.
	var toRequeue []*job.Job

	s.table.EachProcessing(func(j *job.Job) bool {
		if j.Unit.Status.Complete() {
			return true
		}
		if j.Unit.Location != unit.LocationRemote {
			return false
		}
		if j.Unit.Status.Has(unit.StatusRescheduled) || j.Unit.Status.Has(unit.StatusRunningLocal) {
			return false
		}
		if now-j.Started >= timeoutMs {
			j.Unit.Status |= unit.StatusRescheduled
			toRequeue = append(toRequeue, j)
			return false
		}
		anyOutstanding = true
		return false
	})

	for _, j := range toRequeue {
		s.table.AddJob(j)
		if s.metrics != nil {
			s.metrics.JobsRescheduled.Inc()
		}
	}

	if anyOutstanding {
		s.startRescheduleTimer()
	}

	ws.End()
}
