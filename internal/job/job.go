// Package job implements the schedulable job lifecycle wrapper and
// the process-wide job tables the scheduler (internal/server) mutates.
package job

import (
	"sync/atomic"

	"github.com/rosrad/rtags/internal/unit"
)

var nextID atomic.Uint64

// NextID returns a process-wide monotonically increasing job id.
func NextID() uint64 {
	return nextID.Add(1)
}

// Job is the schedulable wrapper around a Unit. Lifecycle:
// Pending -> Dispatched(Local|Remote) ->
// Completed(Local|Remote) | Crashed | Aborted.
type Job struct {
	ID      uint64
	Project string
	Unit    *unit.Unit

	// Destination/Port identify the remote peer running this job, or
	// are zero-valued for local jobs.
	Destination string
	Port        uint16

	// Visited is the set of file ids this job has reported while
	// indexing.
	Visited map[uint32]struct{}

	// Started is the monotonic dispatch time in Unix milliseconds,
	// used by the reschedule timer.
	Started int64

	// BlockedFiles is only meaningful for remote jobs.
	BlockedFiles map[uint32]string
}

// New wraps a freshly preprocessed Unit for a given project.
func New(project string, u *unit.Unit) *Job {
	return &Job{
		ID:      NextID(),
		Project: project,
		Unit:    u,
		Visited: make(map[uint32]struct{}),
	}
}

// Announcable reports whether this job is eligible to be advertised
// to peers: owned locally (not FromRemote), has preprocessed content,
// and isn't already complete.
func (j *Job) Announcable() bool {
	return j.Unit.Location != unit.LocationFromRemote &&
		j.Unit.HasPreprocessed() &&
		!j.Unit.Status.Complete()
}
