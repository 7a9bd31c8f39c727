package vectorindex

import (
	"context"
	"fmt"
	"math"
	"sort"

	appErr "github.com/xxxsen/docqa/internal/pkg/errors"
)

// Meta travels with every vector so a query can be answered without a
// metadata round trip.
type Meta struct {
	DocumentID string `json:"document_id"`
	SessionID  string `json:"session_id"`
	Filename   string `json:"filename"`
	ChunkIndex int    `json:"chunk_index"`
	Page       int    `json:"page"`
	Text       string `json:"text"`
}

type Entry struct {
	ChunkID string
	Vector  []float32
	Meta    Meta
}

// Filter restricts a query. SessionID is mandatory; DocumentIDs narrows the
// search further when non-empty.
type Filter struct {
	SessionID   string
	DocumentIDs []string
}

type Hit struct {
	ChunkID    string
	Distance   float64
	Similarity float64
	Meta       Meta
}

type Index interface {
	Upsert(ctx context.Context, entries []Entry) error
	DeleteByDocument(ctx context.Context, documentID string) error
	DeleteBySession(ctx context.Context, sessionID string) error
	Query(ctx context.Context, vector []float32, topK int, filter Filter) ([]Hit, error)
	Count(ctx context.Context, filter Filter) (int, error)
}

// Similarity maps a cosine distance in [0,2] onto a score in [0,1].
// All backends report distances with this convention so thresholds mean the
// same thing regardless of the store.
func Similarity(distance float64) float64 {
	s := 1 - distance/2
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

func CosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

func checkDimension(dim int, vec []float32) error {
	if dim > 0 && len(vec) != dim {
		return fmt.Errorf("vector has %d dimensions, index expects %d: %w", len(vec), dim, appErr.ErrIndexInconsistency)
	}
	return nil
}

func validateFilter(filter Filter) error {
	if filter.SessionID == "" {
		return fmt.Errorf("session filter is required: %w", appErr.ErrInvalid)
	}
	return nil
}

// sortHits orders by ascending distance, then document id and chunk index,
// matching the order evidence is ranked in.
func sortHits(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.Distance != b.Distance {
			return a.Distance < b.Distance
		}
		if a.Meta.DocumentID != b.Meta.DocumentID {
			return a.Meta.DocumentID < b.Meta.DocumentID
		}
		if a.Meta.ChunkIndex != b.Meta.ChunkIndex {
			return a.Meta.ChunkIndex < b.Meta.ChunkIndex
		}
		return a.ChunkID < b.ChunkID
	})
}
