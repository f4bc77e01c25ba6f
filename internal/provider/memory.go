package provider

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-process Provider. Embedders that already hold the package
// list feed it through Set/Remove; it is also the provider used in tests.
type Memory struct {
	mu       sync.Mutex
	packages map[string][]LiveEntry
	queries  int
	err      error
}

// NewMemory returns an empty Memory provider.
func NewMemory() *Memory {
	return &Memory{packages: make(map[string][]LiveEntry)}
}

// Set replaces the live entries of pkg.
func (m *Memory) Set(pkg string, entries ...LiveEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.packages[pkg] = append([]LiveEntry(nil), entries...)
}

// Remove uninstalls pkg.
func (m *Memory) Remove(pkg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.packages, pkg)
}

// FailWith makes every subsequent query return err until cleared with nil.
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Queries returns how many times QueryLiveEntries has been called.
func (m *Memory) Queries() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queries
}

// QueryLiveEntries implements Provider. Packages are returned in name order.
func (m *Memory) QueryLiveEntries(_ context.Context, pkg string) ([]LiveEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.queries++
	if m.err != nil {
		return nil, m.err
	}

	if pkg != "" {
		return append([]LiveEntry(nil), m.packages[pkg]...), nil
	}

	names := make([]string, 0, len(m.packages))
	for name := range m.packages {
		names = append(names, name)
	}
	sort.Strings(names)

	var all []LiveEntry
	for _, name := range names {
		all = append(all, m.packages[name]...)
	}
	return all, nil
}
