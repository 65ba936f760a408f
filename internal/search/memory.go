package search

import (
	"context"
	"sort"
	"sync"
)

// MemoryEngine is an in-memory Engine for tests and development. Its
// should-scoring is the simplest possible stand-in for an external engine's
// relevance ranking: one point per matched clause. Ties keep insertion order.
type MemoryEngine struct {
	mu      sync.RWMutex
	indices map[string]*memoryIndex
}

type memoryIndex struct {
	docs  map[string]Document
	order []string
}

// NewMemory returns an empty in-memory engine.
func NewMemory() *MemoryEngine {
	return &MemoryEngine{indices: make(map[string]*memoryIndex)}
}

func (e *MemoryEngine) Exists(_ context.Context, index string) (bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.indices[index]
	return ok, nil
}

func (e *MemoryEngine) Create(_ context.Context, index string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ensure(index)
	return nil
}

func (e *MemoryEngine) ensure(index string) *memoryIndex {
	idx, ok := e.indices[index]
	if !ok {
		idx = &memoryIndex{docs: make(map[string]Document)}
		e.indices[index] = idx
	}
	return idx
}

func (e *MemoryEngine) Upsert(_ context.Context, index, id string, doc Document) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	idx := e.ensure(index)
	if _, exists := idx.docs[id]; !exists {
		idx.order = append(idx.order, id)
	}
	idx.docs[id] = doc
	return nil
}

func (e *MemoryEngine) Delete(_ context.Context, index, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	idx, ok := e.indices[index]
	if !ok {
		return nil
	}
	if _, exists := idx.docs[id]; !exists {
		return nil
	}
	delete(idx.docs, id)
	for i, other := range idx.order {
		if other == id {
			idx.order = append(idx.order[:i], idx.order[i+1:]...)
			break
		}
	}
	return nil
}

func (e *MemoryEngine) Refresh(context.Context, string) error { return nil }

func (e *MemoryEngine) Count(_ context.Context, index string) (int64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	idx, ok := e.indices[index]
	if !ok {
		return 0, nil
	}
	return int64(len(idx.docs)), nil
}

func (e *MemoryEngine) Search(_ context.Context, index string, q Query, limit int) ([]Hit, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	idx, ok := e.indices[index]
	if !ok {
		return nil, nil
	}

	var hits []Hit
	for _, id := range idx.order {
		doc := idx.docs[id]
		if !q.matchesFilters(doc.Keywords) {
			continue
		}

		score := 0.0
		for _, s := range q.Should {
			if contains(doc.Keywords[s.Field], s.Value) {
				score++
			}
		}
		if len(q.Should) > 0 && score == 0 {
			continue
		}

		hits = append(hits, Hit{ID: id, Score: score, Keywords: doc.Keywords, Source: doc.Source})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })

	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}
