// Package project tracks per-project lifecycle state and assigns
// stable file ids to paths visited while indexing, persisting both
// through a pluggable Store.
package project

import (
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/golang/groupcache/lru"
)

// Project is one indexed source tree: its lifecycle state, its
// path-to-file-id table, and the glob filters that keep generated or
// vendored files out of indexing.
type Project struct {
	mu      sync.Mutex
	name    string
	store   Store
	filters []string

	state      State
	nextFile   uint32
	fileByKey  map[uint64]uint32
	cache      *lru.Cache
	crashCount map[uint64]int
}

// New loads (or initializes) the project named name from store,
// applying excludeFilters (doublestar glob patterns matched against a
// visited path) to decide which files VisitFile will accept.
func New(name string, store Store, excludeFilters []string) (*Project, error) {
	p := &Project{
		name:       name,
		store:      store,
		filters:    excludeFilters,
		fileByKey:  make(map[uint64]uint32),
		cache:      lru.New(4096),
		crashCount: make(map[uint64]int),
	}

	rec, err := store.Load(name)
	switch err {
	case nil:
		p.state = rec.State
		p.nextFile = rec.NextFile
		if rec.FileByKey != nil {
			p.fileByKey = rec.FileByKey
		}
	case ErrNotFound:
		p.state = StateUnloaded
	default:
		return nil, err
	}
	return p, nil
}

// State reports the project's current lifecycle state.
func (p *Project) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Transition moves the project to a new lifecycle state and persists
// it. Callers are expected to only request forward-legal transitions;
// Transition itself does not enforce the state graph, since a project
// recovering from a crash may need to jump straight back to Loading.
func (p *Project) Transition(next State) error {
	p.mu.Lock()
	p.state = next
	rec := p.snapshotLocked()
	p.mu.Unlock()
	return p.store.Save(p.name, rec)
}

func (p *Project) snapshotLocked() Record {
	clone := make(map[uint64]uint32, len(p.fileByKey))
	for k, v := range p.fileByKey {
		clone[k] = v
	}
	return Record{State: p.state, NextFile: p.nextFile, FileByKey: clone}
}

// excluded reports whether path matches one of the project's exclude
// filters.
func (p *Project) excluded(path string) bool {
	for _, pattern := range p.filters {
		if ok, _ := doublestar.Match(pattern, path); ok {
			return true
		}
	}
	return false
}

// VisitFile resolves path (identified by key, a Source/Unit
// fingerprint) to a stable file id, assigning a fresh one the first
// time it's seen. It returns visit=false for paths the project's
// exclude filters reject, in which case id is meaningless.
func (p *Project) VisitFile(path string, key uint64) (id uint32, visit bool) {
	if p.excluded(path) {
		return 0, false
	}

	p.mu.Lock()
	if existing, ok := p.fileByKey[key]; ok {
		p.mu.Unlock()
		return existing, true
	}
	p.nextFile++
	id = p.nextFile
	p.fileByKey[key] = id
	rec := p.snapshotLocked()
	p.mu.Unlock()

	p.cache.Add(key, id)
	_ = p.store.Save(p.name, rec)
	return id, true
}

// OnJobFinished records that fileID's job completed, advancing the
// project toward Loaded once every outstanding file has reported.
// pending is the number of files the project is still waiting on
// after this call.
func (p *Project) OnJobFinished(fileID uint32, pending int) {
	p.mu.Lock()
	if pending != 0 || p.state != StateSyncing {
		p.mu.Unlock()
		return
	}
	p.state = StateLoaded
	rec := p.snapshotLocked()
	p.mu.Unlock()
	_ = p.store.Save(p.name, rec)
}

// RecordCrash bumps the crash count for a source's fingerprint and
// returns the updated count. The count tracks consecutive crashes
// since the source's last clean completion (ResetCrash), mirroring
// jobData->crashCount in the original indexer.
func (p *Project) RecordCrash(key uint64) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.crashCount[key]++
	return p.crashCount[key]
}

// ResetCrash clears a source's crash count, called whenever that
// source finishes cleanly.
func (p *Project) ResetCrash(key uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.crashCount, key)
}

// CrashCount reports how many consecutive times the given source has
// crashed since it last completed cleanly.
func (p *Project) CrashCount(key uint64) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.crashCount[key]
}

// Name returns the project's root path / identifying name.
func (p *Project) Name() string { return p.name }

// FileCount reports how many distinct files have been assigned an id
// so far.
func (p *Project) FileCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.fileByKey)
}
