// Package memory is an in-process storage.Remote that stands in for
// Postgres in tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"whaleScope/internal/storage"
)

// Store keeps documents and kv entries in maps. Availability and write
// failures can be toggled.
type Store struct {
	mu        sync.Mutex
	docs      map[string]map[string]storage.Document
	kv        map[string]map[string]storage.Document
	available bool
	writeErr  error
	upserts   int
}

var _ storage.Remote = (*Store)(nil)

func New() *Store {
	return &Store{
		docs:      make(map[string]map[string]storage.Document),
		kv:        make(map[string]map[string]storage.Document),
		available: true,
	}
}

// SetAvailable toggles the result of Available. Operations on an
// unavailable store fail with storage.ErrUnavailable.
func (s *Store) SetAvailable(ok bool) {
	s.mu.Lock()
	s.available = ok
	s.mu.Unlock()
}

// FailWrites makes UpsertMany and SetKV return err; nil restores them.
func (s *Store) FailWrites(err error) {
	s.mu.Lock()
	s.writeErr = err
	s.mu.Unlock()
}

// Upserts counts successful UpsertMany calls.
func (s *Store) Upserts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upserts
}

// Count returns the number of documents in collection.
func (s *Store) Count(collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs[collection])
}

func (s *Store) Available(context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.available
}

func (s *Store) UpsertMany(_ context.Context, collection string, docs []storage.Document, uniqueKeys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writableLocked(); err != nil {
		return err
	}

	keyed := make(map[string]storage.Document, len(docs))
	for _, doc := range docs {
		key, err := storage.DocKey(doc, uniqueKeys)
		if err != nil {
			return fmt.Errorf("upsert %s: %w", collection, err)
		}
		keyed[key] = copyDoc(doc)
	}
	coll, ok := s.docs[collection]
	if !ok {
		coll = make(map[string]storage.Document)
		s.docs[collection] = coll
	}
	for key, doc := range keyed {
		coll[key] = doc
	}
	s.upserts++
	return nil
}

func (s *Store) FindAll(_ context.Context, collection string, q storage.FindQuery) ([]storage.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.available {
		return nil, storage.ErrUnavailable
	}

	out := make([]storage.Document, 0, len(s.docs[collection]))
	for _, doc := range s.docs[collection] {
		out = append(out, copyDoc(doc))
	}
	if q.SortField != "" {
		sort.SliceStable(out, func(i, j int) bool {
			c := storage.CompareValues(out[i][q.SortField], out[j][q.SortField])
			if q.Ascending {
				return c < 0
			}
			return c > 0
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *Store) GetKV(_ context.Context, collection, key string) (storage.Document, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.available {
		return nil, false, storage.ErrUnavailable
	}
	doc, ok := s.kv[collection][key]
	if !ok {
		return nil, false, nil
	}
	return copyDoc(doc), true, nil
}

func (s *Store) SetKV(_ context.Context, collection, key string, value storage.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writableLocked(); err != nil {
		return err
	}
	coll, ok := s.kv[collection]
	if !ok {
		coll = make(map[string]storage.Document)
		s.kv[collection] = coll
	}
	coll[key] = copyDoc(value)
	return nil
}

func (s *Store) writableLocked() error {
	if !s.available {
		return storage.ErrUnavailable
	}
	return s.writeErr
}

func copyDoc(doc storage.Document) storage.Document {
	out := make(storage.Document, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}
