package unit

import "time"

// Unit is a preprocessed, dispatchable work item. It carries its own
// fingerprint (Key, shared across replicas of the same translation
// unit) so the scheduler never has to dereference Source to compare
// two Units.
type Unit struct {
	Source       Source    `json:"source"`
	SourceFile   string    `json:"source_file"`
	Preprocessed []byte    `json:"preprocessed,omitempty"`
	Location     Location  `json:"location"`
	Status       Status    `json:"status"`
	Time         time.Time `json:"time"`

	// PreprocessDuration is how long preprocessing took to build
	// Preprocessed.
	PreprocessDuration time.Duration `json:"preprocess_duration"`

	// Key is the source fingerprint, stable across replicas.
	Key uint64 `json:"key"`
}

// NewUnit builds an un-preprocessed Unit from a Source. Preprocessed
// is filled in later by the preprocess pool.
func NewUnit(src Source) *Unit {
	return &Unit{
		Source:     src,
		SourceFile: src.Path,
		Key:        src.Key(),
		Status:     StatusDirty | StatusPending,
	}
}

// HasPreprocessed reports whether this Unit may be offered to peers.
func (u *Unit) HasPreprocessed() bool {
	return len(u.Preprocessed) > 0
}

// MarkComplete sets the given completion bit exactly once. It reports
// whether this call actually transitioned the Unit (false if it was
// already complete by either replica): applying Complete twice has
// the same effect as once.
func (u *Unit) MarkComplete(bit Status) bool {
	if u.Status.Complete() {
		return false
	}
	u.Status |= bit
	return true
}
