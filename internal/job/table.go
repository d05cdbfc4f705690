package job

import (
	"sync"

	"github.com/rosrad/rtags/internal/unit"
)

// PreprocessRequest is one compile command awaiting preprocessing.
type PreprocessRequest struct {
	Project string
	Source  unit.Source
}

// Table is the process-wide aggregate of job bookkeeping state:
// pending jobs, jobs in flight, locally-dispatched jobs, queued
// preprocess requests, and outstanding peer job requests. A single
// mutex guards plain maps/lists rather than a lock-free structure.
// Callers reach the table from several goroutines (connection
// handlers, child-process waiters, timers), so the mutex makes each
// operation atomic and lets metrics/httpapi read a consistent
// snapshot.
type Table struct {
	mu sync.Mutex

	pending    *Pending
	processing map[uint64]*Job

	// localJobs maps a local child's pid to (job, dispatchMs).
	localJobs map[int]*LocalJob

	pendingPreprocess []PreprocessRequest

	// pendingJobRequests maps a peer connection key to the number of
	// jobs we asked it for and haven't heard back about yet.
	pendingJobRequests map[string]int
}

// LocalJob pairs a dispatched Job with when it was launched and the
// handle needed to reap it.
type LocalJob struct {
	Job        *Job
	DispatchMs int64
	PID        int
}

// NewTable returns an empty job table.
func NewTable() *Table {
	return &Table{
		pending:            NewPending(),
		processing:         make(map[uint64]*Job),
		localJobs:          make(map[int]*LocalJob),
		pendingJobRequests: make(map[string]int),
	}
}

// AddJob appends a job to pending. Safe to call for both
// locally-submitted and FromRemote jobs.
func (t *Table) AddJob(j *Job) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending.Push(j)
}

// PendingLen reports the number of jobs awaiting a slot.
func (t *Table) PendingLen() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending.Len()
}

// EachPending iterates pending jobs; see Pending.Each.
func (t *Table) EachPending(fn func(*Job) (remove bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending.Each(fn)
}

// RemovePending deletes a job from pending by id, if present.
func (t *Table) RemovePending(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending.Remove(id)
}

// TrackProcessing records j as dispatched (local or remote).
func (t *Table) TrackProcessing(j *Job) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.processing[j.ID] = j
}

// Processing looks up a dispatched job by id.
func (t *Table) Processing(id uint64) (*Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j, ok := t.processing[id]
	return j, ok
}

// UntrackProcessing removes a job from processing once its result has
// been reconciled.
func (t *Table) UntrackProcessing(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.processing, id)
}

// ProcessingLen reports how many jobs are currently dispatched.
func (t *Table) ProcessingLen() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.processing)
}

// EachProcessing iterates processing jobs; fn may return remove=true
// to drop the entry (used by the reschedule timer's race cleanup).
func (t *Table) EachProcessing(fn func(*Job) (remove bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, j := range t.processing {
		if fn(j) {
			delete(t.processing, id)
		}
	}
}

// TrackLocal records a dispatched local child.
func (t *Table) TrackLocal(pid int, j *Job, dispatchMs int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.localJobs[pid] = &LocalJob{Job: j, DispatchMs: dispatchMs, PID: pid}
}

// UntrackLocal removes a reaped child.
func (t *Table) UntrackLocal(pid int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.localJobs, pid)
}

// LocalJobByPID looks up a dispatched local child by pid.
func (t *Table) LocalJobByPID(pid int) (*LocalJob, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	lj, ok := t.localJobs[pid]
	return lj, ok
}

// LocalLen reports the number of live local children, one term of the
// slot-accounting invariant the scheduler maintains.
func (t *Table) LocalLen() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.localJobs)
}

// PendingJobRequestsTotal returns the sum of outstanding JobRequest(n)
// values, the other term of the slot-accounting invariant.
func (t *Table) PendingJobRequestsTotal() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	total := 0
	for _, n := range t.pendingJobRequests {
		total += n
	}
	return total
}

// SetPendingJobRequest records that we asked connKey for n jobs.
func (t *Table) SetPendingJobRequest(connKey string, n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pendingJobRequests[connKey] = n
}

// ClearPendingJobRequest drops the outstanding-request bookkeeping for
// a connection, once its JobResponse (or a disconnect) resolves it.
func (t *Table) ClearPendingJobRequest(connKey string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pendingJobRequests, connKey)
}

// QueuePreprocess enqueues a compile command awaiting preprocessing.
func (t *Table) QueuePreprocess(req PreprocessRequest) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pendingPreprocess = append(t.pendingPreprocess, req)
}

// PendingPreprocessLen reports the backlog awaiting the preprocess
// pool.
func (t *Table) PendingPreprocessLen() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pendingPreprocess)
}

// PendingJobs returns a snapshot slice of pending jobs in queue order,
// for read-only reporting (e.g. the debug HTTP API).
func (t *Table) PendingJobs() []*Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []*Job
	t.pending.Each(func(j *Job) bool {
		out = append(out, j)
		return false
	})
	return out
}

// ProcessingJobs returns a snapshot slice of in-flight jobs.
func (t *Table) ProcessingJobs() []*Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Job, 0, len(t.processing))
	for _, j := range t.processing {
		out = append(out, j)
	}
	return out
}

// LocalJobs returns a snapshot slice of locally-dispatched jobs.
func (t *Table) LocalJobs() []*Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Job, 0, len(t.localJobs))
	for _, lj := range t.localJobs {
		out = append(out, lj.Job)
	}
	return out
}

// LocalJobRecords returns a snapshot of every live local child, pid
// included, for teardown to kill and account for.
func (t *Table) LocalJobRecords() []*LocalJob {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*LocalJob, 0, len(t.localJobs))
	for _, lj := range t.localJobs {
		out = append(out, lj)
	}
	return out
}

// OutstandingForProject counts pending and in-flight jobs still
// belonging to project, used to decide whether a project has drained
// enough to advance toward Loaded.
func (t *Table) OutstandingForProject(project string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	t.pending.Each(func(j *Job) bool {
		if j.Project == project {
			n++
		}
		return false
	})
	for _, j := range t.processing {
		if j.Project == project {
			n++
		}
	}
	return n
}

// DrainPreprocess removes up to n queued compile commands, in FIFO
// order, for the caller to hand to the preprocess pool.
func (t *Table) DrainPreprocess(n int) []PreprocessRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n > len(t.pendingPreprocess) {
		n = len(t.pendingPreprocess)
	}
	if n <= 0 {
		return nil
	}
	drained := t.pendingPreprocess[:n]
	t.pendingPreprocess = t.pendingPreprocess[n:]
	return drained
}
