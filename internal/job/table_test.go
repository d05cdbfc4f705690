package job

import (
	"testing"

	"github.com/rosrad/rtags/internal/unit"
)

func newTestJob(priority bool) *Job {
	u := unit.NewUnit(unit.Source{Path: "/tmp/a.cpp"})
	if priority {
		u.Status |= unit.StatusHighPriority
	}
	return New("/proj", u)
}

func TestHighPriorityFloatsToFront(t *testing.T) {
	tb := NewTable()
	low := newTestJob(false)
	tb.AddJob(low)
	high := newTestJob(true)
	tb.AddJob(high)

	var order []uint64
	tb.EachPending(func(j *Job) bool {
		order = append(order, j.ID)
		return false
	})
	if len(order) != 2 || order[0] != high.ID {
		t.Fatalf("expected high priority job first, got order %v (high=%d low=%d)", order, high.ID, low.ID)
	}
}

func TestEachPendingCanRemove(t *testing.T) {
	tb := NewTable()
	j := newTestJob(false)
	tb.AddJob(j)
	j.Unit.MarkComplete(unit.StatusCompleteLocal)

	tb.EachPending(func(j *Job) bool {
		return j.Unit.Status.Complete()
	})
	if tb.PendingLen() != 0 {
		t.Fatalf("expected completed job to be swept from pending, got len=%d", tb.PendingLen())
	}
}

func TestProcessingTrackUntrack(t *testing.T) {
	tb := NewTable()
	j := newTestJob(false)
	tb.TrackProcessing(j)
	if _, ok := tb.Processing(j.ID); !ok {
		t.Fatalf("expected job to be tracked")
	}
	tb.UntrackProcessing(j.ID)
	if _, ok := tb.Processing(j.ID); ok {
		t.Fatalf("expected job to be untracked")
	}
}

func TestPendingJobRequestsTotal(t *testing.T) {
	tb := NewTable()
	tb.SetPendingJobRequest("peerA", 3)
	tb.SetPendingJobRequest("peerB", 2)
	if got := tb.PendingJobRequestsTotal(); got != 5 {
		t.Fatalf("expected total 5, got %d", got)
	}
	tb.ClearPendingJobRequest("peerA")
	if got := tb.PendingJobRequestsTotal(); got != 2 {
		t.Fatalf("expected total 2 after clearing peerA, got %d", got)
	}
}

func TestDrainPreprocessFIFO(t *testing.T) {
	tb := NewTable()
	tb.QueuePreprocess(PreprocessRequest{Project: "/proj", Source: unit.Source{Path: "/a.cpp"}})
	tb.QueuePreprocess(PreprocessRequest{Project: "/proj", Source: unit.Source{Path: "/b.cpp"}})
	tb.QueuePreprocess(PreprocessRequest{Project: "/proj", Source: unit.Source{Path: "/c.cpp"}})

	drained := tb.DrainPreprocess(2)
	if len(drained) != 2 || drained[0].Source.Path != "/a.cpp" || drained[1].Source.Path != "/b.cpp" {
		t.Fatalf("unexpected drain order: %+v", drained)
	}
	if tb.PendingPreprocessLen() != 1 {
		t.Fatalf("expected 1 remaining, got %d", tb.PendingPreprocessLen())
	}
}
