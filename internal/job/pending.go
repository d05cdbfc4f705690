package job

import (
	"container/list"

	"github.com/rosrad/rtags/internal/unit"
)

// Pending is the ordered queue of jobs awaiting a slot. FIFO order is
// preserved except that a HighPriority job floats to the front at
// insertion time. A single priority tier doesn't need a heap, just a
// choice of end, so this is a plain doubly-linked list with a
// front-or-back Push.
type Pending struct {
	list *list.List
}

// NewPending returns an empty pending queue.
func NewPending() *Pending {
	return &Pending{list: list.New()}
}

// Push appends job to the queue, or to the front if it carries
// HighPriority.
func (p *Pending) Push(j *Job) {
	if j.Unit.Status.Has(unit.StatusHighPriority) {
		p.list.PushFront(j)
		return
	}
	p.list.PushBack(j)
}

// Len reports the number of pending jobs.
func (p *Pending) Len() int { return p.list.Len() }

// Each calls fn for every job in FIFO order, front to back. fn may
// return remove=true to erase the current job from the queue — used
// by the work loop to sweep jobs that completed out-of-band.
func (p *Pending) Each(fn func(*Job) (remove bool)) {
	for e := p.list.Front(); e != nil; {
		next := e.Next()
		j := e.Value.(*Job)
		if fn(j) {
			p.list.Remove(e)
		}
		e = next
	}
}

// Remove deletes the first job matching id, if present.
func (p *Pending) Remove(id uint64) {
	for e := p.list.Front(); e != nil; e = e.Next() {
		if e.Value.(*Job).ID == id {
			p.list.Remove(e)
			return
		}
	}
}
