package unit

import "strings"

// Location is the orthogonal "where does this job live" sum, split out
// of the original flat bitset per the REDESIGN FLAGS guidance: Location
// and Status are independent axes instead of being twiddled together.
type Location uint8

const (
	// LocationNone is a job that hasn't been dispatched anywhere yet.
	LocationNone Location = iota
	// LocationLocal is a job running as a local child process.
	LocationLocal
	// LocationRemote is a job dispatched to a peer.
	LocationRemote
	// LocationFromRemote is a job we're running on a peer's behalf.
	LocationFromRemote
)

func (l Location) String() string {
	switch l {
	case LocationNone:
		return "none"
	case LocationLocal:
		return "local"
	case LocationRemote:
		return "remote"
	case LocationFromRemote:
		return "from-remote"
	}
	panic("unknown Location")
}

// Status is the second orthogonal sum: what state the job is in,
// independent of where it's running.
type Status uint16

const (
	StatusPending Status = 1 << iota
	StatusRunningLocal
	StatusRescheduled
	StatusCompleteLocal
	StatusCompleteRemote
	StatusCrashed
	StatusAborted
	StatusPreprocessCompressed
	StatusHighPriority
	StatusDirty
	StatusCompile
)

// Has reports whether all bits in mask are set.
func (s Status) Has(mask Status) bool { return s&mask == mask }

// Any reports whether any bit in mask is set.
func (s Status) Any(mask Status) bool { return s&mask != 0 }

// Complete reports whether either completion bit is set: the
// first-wins reconciliation flag.
func (s Status) Complete() bool { return s.Any(StatusCompleteLocal | StatusCompleteRemote) }

func (s Status) String() string {
	names := []struct {
		bit  Status
		name string
	}{
		{StatusPending, "Pending"},
		{StatusRunningLocal, "RunningLocal"},
		{StatusRescheduled, "Rescheduled"},
		{StatusCompleteLocal, "CompleteLocal"},
		{StatusCompleteRemote, "CompleteRemote"},
		{StatusCrashed, "Crashed"},
		{StatusAborted, "Aborted"},
		{StatusPreprocessCompressed, "PreprocessCompressed"},
		{StatusHighPriority, "HighPriority"},
		{StatusDirty, "Dirty"},
		{StatusCompile, "Compile"},
	}
	var parts []string
	for _, n := range names {
		if s.Has(n.bit) {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "None"
	}
	return strings.Join(parts, "|")
}
