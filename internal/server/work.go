package server

import (
	"log"
	"time"

	"github.com/rosrad/rtags/internal/job"
	"github.com/rosrad/rtags/internal/preprocess"
	"github.com/rosrad/rtags/internal/project"
	"github.com/rosrad/rtags/internal/runner"
	"github.com/rosrad/rtags/internal/unit"
	"github.com/rosrad/rtags/internal/wire"
)

// work is the sole scheduling decision point. It must only be called
// by workScope.End, which holds schedMu for the duration so no two
// passes (or a pass and the handler body that triggered it) ever
// overlap.
func (s *Server) work() {
	slots := s.opts.JobCount

	s.drainPreprocess()

	busy, backlog := s.pool.BusyCount(), s.pool.BacklogSize()
	slots -= busy + backlog
	slots -= s.table.LocalLen()
	slots -= s.table.PendingJobRequestsTotal()

	if s.opts.NoLocalCompiles && slots > 0 {
		slots = 0
	}

	s.reportMetrics()

	if slots <= 0 && !s.hasJobServerConnection() {
		return
	}

	announcable := s.dispatchPending(slots)

	if !s.hasJobServerConnection() {
		return
	}

	if !s.announced && announcable > 0 {
		s.announced = true
		s.announceWork()
	}

	if slots > 0 {
		s.requestFromPeer(slots)
	}
}

// drainPreprocess moves queued compile commands into the preprocess
// pool up to the backpressure budget.
func (s *Server) drainPreprocess() {
	busy, backlog, pending := s.pool.BusyCount(), s.pool.BacklogSize(), s.table.PendingLen()
	budget := s.opts.MaxPendingPreprocess - (busy + backlog + pending)
	if budget <= 0 {
		return
	}
	for _, req := range s.table.DrainPreprocess(budget) {
		s.pool.Submit(preprocess.Job{Project: req.Project, Source: req.Source})
	}
}

// dispatchPending walks the pending queue, erasing completed jobs,
// launching local children while slots remain, and counting jobs
// eligible to be announced to peers.
//
// EachPending holds the table's lock for the whole walk, so nothing
// called from within fn may call back into *job.Table: launches and
// processing bookkeeping are deferred to a second pass over the jobs
// collected here.
func (s *Server) dispatchPending(slots int) (announcable int) {
	type dispatch struct {
		j    *job.Job
		proj *project.Project
	}
	var toLaunch []dispatch

	s.table.EachPending(func(j *job.Job) bool {
		if j.Unit.Status.Complete() {
			return true
		}

		proj, err := s.projects.Get(j.Project)
		if err != nil {
			return false
		}

		if slots > 0 {
			j.Unit.Status &^= unit.StatusRescheduled
			slots--
			toLaunch = append(toLaunch, dispatch{j: j, proj: proj})
			return true
		}

		if j.Unit.Location != unit.LocationFromRemote {
			announcable++
		}
		return false
	})

	for _, d := range toLaunch {
		if d.j.Unit.Location != unit.LocationFromRemote {
			s.table.TrackProcessing(d.j)
		}
		s.launchLocal(d.j, d.proj)
	}
	return announcable
}

func (s *Server) launchLocal(j *job.Job, proj *project.Project) {
	launched, err := s.runner.Launch(j)
	if err != nil {
		log.Printf("server: launch job %d: %v", j.ID, err)
		s.table.UntrackProcessing(j.ID)
		return
	}
	j.Started = time.Now().UnixMilli()
	j.Unit.Location = unit.LocationLocal
	j.Unit.Status |= unit.StatusRunningLocal
	s.table.TrackLocal(launched.PID, j, j.Started)

	go func() {
		finish := s.runner.Wait(j, launched)
		launched.Close()
		s.onLocalFinished(finish, proj)
	}()

	go func() {
		data, err := s.runner.AwaitResult(launched)
		if err != nil {
			return
		}
		s.handleIndexerMessage(&wire.IndexerMessage{Data: data})
	}()
}

func (s *Server) onLocalFinished(finish runner.Finish, proj *project.Project) {
	ws := s.beginWork()
	defer ws.End()

	s.table.UntrackLocal(finish.PID)
	j := finish.Job
	j.Unit.Status &^= unit.StatusRunningLocal

	if j.Unit.Status.Complete() {
		s.table.UntrackProcessing(j.ID)
		return
	}

	if finish.Crashed && !j.Unit.Status.Has(unit.StatusAborted) {
		j.Unit.Status |= unit.StatusCrashed
		runner.ScheduleCrashNotification(s.opts.CrashRetryDelay, func() {
			s.reportCrash(j, proj)
		})
	}
	s.table.UntrackProcessing(j.ID)
}

func (s *Server) reportCrash(j *job.Job, proj *project.Project) {
	count := proj.RecordCrash(j.Unit.Key)
	proj.OnJobFinished(0, s.table.OutstandingForProject(j.Project))
	if s.metrics != nil {
		s.metrics.JobsCrashed.Inc()
		s.metrics.JobsCrashStreak.Set(float64(count))
	}
}

// hasJobServerConnection reports whether this process either is the
// job server, or holds a live connection to one.
func (s *Server) hasJobServerConnection() bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.isJobServer || s.jobServerConn != nil
}

func (s *Server) reportMetrics() {
	if s.metrics == nil {
		return
	}
	s.metrics.PendingJobs.Set(float64(s.table.PendingLen()))
	s.metrics.ProcessingJobs.Set(float64(s.table.ProcessingLen()))
	s.metrics.LocalJobs.Set(float64(s.table.LocalLen()))
	s.metrics.PreprocessBusy.Set(float64(s.pool.BusyCount()))
	s.metrics.PreprocessWait.Set(float64(s.pool.BacklogSize()))
	s.metrics.Peers.Set(float64(s.registry.Len()))
}
