package rag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// LocalStore persists each collection as a JSON file and searches it by
// cosine similarity in memory.
type LocalStore struct {
	dir string

	mu          sync.Mutex
	collections map[string]map[string]Point
}

// NewLocalStore creates a file-backed store rooted at dir.
func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{dir: dir, collections: make(map[string]map[string]Point)}
}

func (s *LocalStore) path(collection string) string {
	return filepath.Join(s.dir, collection+".json")
}

// load returns the collection, reading it from disk on first use.
// The caller must hold s.mu.
func (s *LocalStore) load(collection string) (map[string]Point, error) {
	if points, ok := s.collections[collection]; ok {
		return points, nil
	}

	points := make(map[string]Point)
	data, err := os.ReadFile(s.path(collection))
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		var list []Point
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, fmt.Errorf("corrupt rag store %s: %w", s.path(collection), err)
		}
		for _, p := range list {
			points[p.ID] = p
		}
	}
	s.collections[collection] = points
	return points, nil
}

// flush writes the collection atomically. The caller must hold s.mu.
func (s *LocalStore) flush(collection string, points map[string]Point) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}

	list := make([]Point, 0, len(points))
	for _, p := range points {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })

	data, err := json.Marshal(list)
	if err != nil {
		return err
	}
	tmp := s.path(collection) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path(collection))
}

// CreateCollection implements VectorStore. Collections are created on first write.
func (s *LocalStore) CreateCollection(_ context.Context, name string, _ uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.load(name)
	return err
}

// Upsert implements VectorStore.
func (s *LocalStore) Upsert(_ context.Context, collection string, points []Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.load(collection)
	if err != nil {
		return err
	}
	for _, p := range points {
		stored[p.ID] = p
	}
	return s.flush(collection, stored)
}

// Existing implements VectorStore.
func (s *LocalStore) Existing(_ context.Context, collection string, ids []string) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.load(collection)
	if err != nil {
		return nil, err
	}
	found := make(map[string]bool)
	for _, id := range ids {
		if _, ok := stored[id]; ok {
			found[id] = true
		}
	}
	return found, nil
}

// Search implements VectorStore.
func (s *LocalStore) Search(_ context.Context, collection string, vector []float32, limit int) ([]SearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.load(collection)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(stored))
	for _, p := range stored {
		results = append(results, SearchResult{ID: p.ID, Score: cosine(vector, p.Vector), Point: p})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score == results[j].Score {
			return results[i].ID < results[j].ID
		}
		return results[i].Score > results[j].Score
	})
	if limit >= 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

var _ VectorStore = (*LocalStore)(nil)
