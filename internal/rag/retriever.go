package rag

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docqa/internal/model"
	appErr "github.com/xxxsen/docqa/internal/pkg/errors"
	"github.com/xxxsen/docqa/internal/vectorindex"
)

const (
	DefaultTopK                = 5
	DefaultMinScore            = 0.7
	DefaultCandidateMultiplier = 2
)

// QueryEmbedder turns a question into a vector with the same transform used
// for chunks.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type RetrieveOptions struct {
	TopK        int
	MinScore    float64
	DocumentIDs []string
}

type RetrieverConfig struct {
	TopK                int
	MinScore            float64
	CandidateMultiplier int
}

type Retriever struct {
	embedder QueryEmbedder
	index    vectorindex.Index
	cfg      RetrieverConfig
}

func NewRetriever(embedder QueryEmbedder, index vectorindex.Index, cfg RetrieverConfig) *Retriever {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.MinScore <= 0 {
		cfg.MinScore = DefaultMinScore
	}
	if cfg.CandidateMultiplier <= 0 {
		cfg.CandidateMultiplier = DefaultCandidateMultiplier
	}
	return &Retriever{embedder: embedder, index: index, cfg: cfg}
}

// DefaultOptions returns the configured top-k and score threshold.
func (r *Retriever) DefaultOptions() RetrieveOptions {
	return RetrieveOptions{TopK: r.cfg.TopK, MinScore: r.cfg.MinScore}
}

// Retrieve returns at most TopK evidence items of the session whose score is
// at least MinScore, best first. An empty result is not an error.
func (r *Retriever) Retrieve(ctx context.Context, query, sessionID string, opts RetrieveOptions) ([]model.EvidenceItem, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("empty query: %w", appErr.ErrInvalid)
	}
	if sessionID == "" {
		return nil, fmt.Errorf("session id required: %w", appErr.ErrInvalid)
	}
	if opts.TopK <= 0 {
		opts.TopK = r.cfg.TopK
	}
	if opts.MinScore < 0 || opts.MinScore > 1 {
		return nil, fmt.Errorf("min score %v out of range: %w", opts.MinScore, appErr.ErrInvalid)
	}
	logger := logutil.GetLogger(ctx).With(zap.String("session_id", sessionID))
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		logger.Error("embed query failed", zap.Error(err))
		return nil, err
	}
	hits, err := r.index.Query(ctx, vec, opts.TopK*r.cfg.CandidateMultiplier, vectorindex.Filter{
		SessionID:   sessionID,
		DocumentIDs: opts.DocumentIDs,
	})
	if err != nil {
		logger.Error("query vector index failed", zap.Error(err))
		return nil, err
	}
	items := make([]model.EvidenceItem, 0, len(hits))
	for _, h := range hits {
		if h.Similarity < opts.MinScore {
			continue
		}
		items = append(items, model.EvidenceItem{
			ChunkID:    h.ChunkID,
			DocumentID: h.Meta.DocumentID,
			Filename:   h.Meta.Filename,
			ChunkIndex: h.Meta.ChunkIndex,
			Page:       h.Meta.Page,
			Text:       h.Meta.Text,
			Score:      h.Similarity,
		})
	}
	RankEvidence(items)
	if len(items) > opts.TopK {
		items = items[:opts.TopK]
	}
	logger.Debug("retrieved evidence", zap.Int("candidates", len(hits)), zap.Int("kept", len(items)))
	return items, nil
}

// RankEvidence sorts by score descending; ties go to the lower document id,
// then the lower chunk ordinal.
func RankEvidence(items []model.EvidenceItem) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.DocumentID != b.DocumentID {
			return a.DocumentID < b.DocumentID
		}
		return a.ChunkIndex < b.ChunkIndex
	})
}
