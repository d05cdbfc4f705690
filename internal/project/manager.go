package project

import "sync"

// Manager lazily creates and caches one Project per name, all backed
// by the same Store.
type Manager struct {
	mu             sync.Mutex
	store          Store
	excludeFilters []string
	projects       map[string]*Project
}

// NewManager returns a Manager backed by store, applying
// excludeFilters to every project it opens.
func NewManager(store Store, excludeFilters []string) *Manager {
	return &Manager{
		store:          store,
		excludeFilters: excludeFilters,
		projects:       make(map[string]*Project),
	}
}

// Get returns the Project for name, loading it from the store on
// first use.
func (m *Manager) Get(name string) (*Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.projects[name]; ok {
		return p, nil
	}
	p, err := New(name, m.store, m.excludeFilters)
	if err != nil {
		return nil, err
	}
	m.projects[name] = p
	return p, nil
}

// All returns every project currently loaded in memory.
func (m *Manager) All() []*Project {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Project, 0, len(m.projects))
	for _, p := range m.projects {
		out = append(out, p)
	}
	return out
}

// Close releases the underlying store.
func (m *Manager) Close() error {
	return m.store.Close()
}
