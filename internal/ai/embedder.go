package ai

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	appErr "github.com/xxxsen/docqa/internal/pkg/errors"
)

type EmbeddingConfig struct {
	Dimension     int
	MaxInputChars int
	Concurrency   int
}

// EmbeddingService is the single text to vector transform used for both
// chunks and queries. Inputs longer than MaxInputChars runes are truncated
// before embedding, so the tail of an oversized input does not influence its
// vector.
type EmbeddingService struct {
	embedder IEmbedder
	policy   *RetryPolicy
	cfg      EmbeddingConfig
}

func NewEmbeddingService(embedder IEmbedder, policy *RetryPolicy, cfg EmbeddingConfig) *EmbeddingService {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &EmbeddingService{embedder: embedder, policy: policy, cfg: cfg}
}

func (s *EmbeddingService) Dimension() int {
	return s.cfg.Dimension
}

func (s *EmbeddingService) ModelName() string {
	if s.embedder == nil {
		return ""
	}
	return s.embedder.ModelName()
}

func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	if s.embedder == nil {
		return nil, fmt.Errorf("embedder not configured: %w", ErrUnavailable)
	}
	text = TruncateRunes(strings.TrimSpace(text), s.cfg.MaxInputChars)
	if text == "" {
		return nil, fmt.Errorf("empty embedding input: %w", appErr.ErrInvalid)
	}
	var vec []float32
	err := s.policy.Do(ctx, "embedding", func(ctx context.Context) error {
		res, err := s.embedder.Embed(ctx, text)
		if err != nil {
			return err
		}
		vec = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.cfg.Dimension > 0 && len(vec) != s.cfg.Dimension {
		return nil, fmt.Errorf("embedding model %s returned %d dimensions, expected %d: %w",
			s.embedder.ModelName(), len(vec), s.cfg.Dimension, appErr.ErrIndexInconsistency)
	}
	return vec, nil
}

// EmbedResult is the outcome for one input of EmbedMany.
type EmbedResult struct {
	Vector []float32
	Err    error
}

// EmbedMany embeds every text with bounded concurrency. A failure on one input
// does not stop the others; callers inspect each result. Only a dimension
// mismatch or cancellation aborts the whole batch.
func (s *EmbeddingService) EmbedMany(ctx context.Context, texts []string) ([]EmbedResult, error) {
	results := make([]EmbedResult, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, text := range texts {
		g.Go(func() error {
			vec, err := s.Embed(gctx, text)
			if err != nil && (appErr.IsIndexInconsistency(err) || gctx.Err() != nil) {
				return err
			}
			results[i] = EmbedResult{Vector: vec, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
