package checkpoint

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Store persists one crawl State per subreddit. Save replaces a single
// record atomically; no other subreddit's record is read or rewritten.
type Store interface {
	// Load returns NotStarted, never an error, when nothing is stored.
	Load(ctx context.Context, subreddit string) (State, error)
	Save(ctx context.Context, subreddit string, state State) error
	List(ctx context.Context) ([]Entry, error)
	Delete(ctx context.Context, subreddit string) error
}

// MemoryStore keeps states in a map.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
	saves   int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func (m *MemoryStore) Load(ctx context.Context, subreddit string) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries[subreddit]; ok {
		return e.State, nil
	}
	return NotStarted(), nil
}

func (m *MemoryStore) Save(ctx context.Context, subreddit string, state State) error {
	if err := state.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[subreddit] = Entry{Subreddit: subreddit, State: state, UpdatedAt: time.Now().UTC()}
	m.saves++
	return nil
}

func (m *MemoryStore) List(ctx context.Context) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Subreddit < out[j].Subreddit })
	return out, nil
}

func (m *MemoryStore) Delete(ctx context.Context, subreddit string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, subreddit)
	return nil
}

// Saves counts successful Save calls.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
