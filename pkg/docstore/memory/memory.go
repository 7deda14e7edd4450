// Package memory is an in-process document store used by tests and dry runs.
package memory

import (
	"context"
	"errors"
	"sync"

	"redditcrawler/pkg/checkpoint"
	"redditcrawler/pkg/docstore"
	"redditcrawler/pkg/pushshift"
)

type collection struct {
	order []string
	docs  map[string]pushshift.Submission
}

// Store keeps collections in insertion order. Crawl cursors are held by the
// embedded checkpoint.MemoryStore.
type Store struct {
	*checkpoint.MemoryStore

	mu          sync.RWMutex
	collections map[string]*collection
	upserts     int
}

var _ docstore.Store = (*Store)(nil)

// New returns an empty store
func New() *Store {
	return &Store{
		MemoryStore: checkpoint.NewMemoryStore(),
		collections: make(map[string]*collection),
	}
}

func (s *Store) UpsertSubmissions(ctx context.Context, subreddit string, subs []pushshift.Submission) error {
	if err := ctx.Err(); err != nil {
		return docstore.Wrap("upsert_submissions", err)
	}
	if len(subs) == 0 {
		return nil
	}
	for _, sub := range subs {
		if sub.ID == "" {
			return docstore.Wrap("upsert_submissions", errors.New("submission without id"))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := docstore.CollectionName(subreddit)
	c, ok := s.collections[name]
	if !ok {
		c = &collection{docs: make(map[string]pushshift.Submission)}
		s.collections[name] = c
	}
	for _, sub := range subs {
		if _, exists := c.docs[sub.ID]; !exists {
			c.order = append(c.order, sub.ID)
		}
		c.docs[sub.ID] = clone(sub)
	}
	s.upserts++
	return nil
}

func (s *Store) Scan(ctx context.Context, subreddit string, skip int, fn func(pushshift.Submission) error) error {
	if skip < 0 {
		skip = 0
	}
	s.mu.RLock()
	c, ok := s.collections[docstore.CollectionName(subreddit)]
	var snapshot []pushshift.Submission
	if ok {
		for i := skip; i < len(c.order); i++ {
			snapshot = append(snapshot, clone(c.docs[c.order[i]]))
		}
	}
	s.mu.RUnlock()

	for _, sub := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(sub); err != nil {
			if errors.Is(err, docstore.ErrStopScan) {
				return nil
			}
			return err
		}
	}
	return nil
}

func (s *Store) Count(ctx context.Context, subreddit string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.collections[docstore.CollectionName(subreddit)]; ok {
		return int64(len(c.order)), nil
	}
	return 0, nil
}

// Get returns one stored submission
func (s *Store) Get(subreddit, id string) (pushshift.Submission, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[docstore.CollectionName(subreddit)]
	if !ok {
		return pushshift.Submission{}, false
	}
	sub, ok := c.docs[id]
	return clone(sub), ok
}

// Upserts returns how many non-empty upsert batches were applied
func (s *Store) Upserts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.upserts
}

func (s *Store) Close() error { return nil }

func clone(sub pushshift.Submission) pushshift.Submission {
	if sub.Comments != nil {
		sub.Comments = append([]pushshift.Comment{}, sub.Comments...)
	}
	if sub.Raw != nil {
		raw := make(map[string]interface{}, len(sub.Raw))
		for k, v := range sub.Raw {
			raw[k] = v
		}
		sub.Raw = raw
	}
	return sub
}
