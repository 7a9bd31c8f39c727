package vectorindex

import (
	"context"
	"sync"
)

type memoryIndex struct {
	mu      sync.RWMutex
	dim     int
	entries map[string]Entry
}

// NewMemory returns a brute force index kept in process memory.
func NewMemory(dimension int) Index {
	return &memoryIndex{dim: dimension, entries: make(map[string]Entry)}
}

func (m *memoryIndex) Upsert(ctx context.Context, entries []Entry) error {
	for _, e := range entries {
		if err := checkDimension(m.dim, e.Vector); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		vec := make([]float32, len(e.Vector))
		copy(vec, e.Vector)
		e.Vector = vec
		m.entries[e.ChunkID] = e
	}
	return nil
}

func (m *memoryIndex) DeleteByDocument(ctx context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.entries {
		if e.Meta.DocumentID == documentID {
			delete(m.entries, id)
		}
	}
	return nil
}

func (m *memoryIndex) DeleteBySession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.entries {
		if e.Meta.SessionID == sessionID {
			delete(m.entries, id)
		}
	}
	return nil
}

func matches(e Entry, filter Filter, docs map[string]struct{}) bool {
	if e.Meta.SessionID != filter.SessionID {
		return false
	}
	if len(docs) == 0 {
		return true
	}
	_, ok := docs[e.Meta.DocumentID]
	return ok
}

func docSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func (m *memoryIndex) Query(ctx context.Context, vector []float32, topK int, filter Filter) ([]Hit, error) {
	if err := validateFilter(filter); err != nil {
		return nil, err
	}
	if err := checkDimension(m.dim, vector); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return []Hit{}, nil
	}
	docs := docSet(filter.DocumentIDs)
	m.mu.RLock()
	hits := make([]Hit, 0)
	for id, e := range m.entries {
		if !matches(e, filter, docs) {
			continue
		}
		d := CosineDistance(vector, e.Vector)
		hits = append(hits, Hit{ChunkID: id, Distance: d, Similarity: Similarity(d), Meta: e.Meta})
	}
	m.mu.RUnlock()
	sortHits(hits)
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (m *memoryIndex) Count(ctx context.Context, filter Filter) (int, error) {
	if err := validateFilter(filter); err != nil {
		return 0, err
	}
	docs := docSet(filter.DocumentIDs)
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, e := range m.entries {
		if matches(e, filter, docs) {
			n++
		}
	}
	return n, nil
}
