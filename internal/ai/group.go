package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type GeneratorEntry struct {
	Name      string
	Generator IGenerator
}

// groupGenerator tries each configured model in order until one answers.
type groupGenerator struct {
	items []GeneratorEntry
}

func NewGroupGenerator(items []GeneratorEntry) IGenerator {
	if len(items) == 0 {
		return nil
	}
	if len(items) == 1 {
		return items[0].Generator
	}
	return &groupGenerator{items: items}
}

func (g *groupGenerator) Generate(ctx context.Context, req *CompletionRequest) (string, error) {
	var lastErr error
	for i, item := range g.items {
		if item.Generator == nil {
			continue
		}
		res, err := item.Generator.Generate(ctx, req)
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		lastErr = err
		logutil.GetLogger(ctx).Warn("generator failed", zap.Int("index", i), zap.String("name", item.Name), zap.Error(err))
	}
	if lastErr == nil {
		return "", fmt.Errorf("generator not configured: %w", ErrUnavailable)
	}
	return "", lastErr
}

var errStreamStarted = errors.New("stream already started")

func (g *groupGenerator) GenerateStream(ctx context.Context, req *CompletionRequest, fn DeltaFunc) error {
	var lastErr error
	for i, item := range g.items {
		if item.Generator == nil {
			continue
		}
		started := false
		err := item.Generator.GenerateStream(ctx, req, func(delta string) error {
			started = true
			return fn(delta)
		})
		if err == nil {
			return nil
		}
		if started || ctx.Err() != nil {
			return err
		}
		lastErr = err
		logutil.GetLogger(ctx).Warn("stream generator failed", zap.Int("index", i), zap.String("name", item.Name), zap.Error(err))
	}
	if lastErr == nil {
		return fmt.Errorf("generator not configured: %w", ErrUnavailable)
	}
	return lastErr
}

// StreamStarted wraps an error raised after deltas were already delivered.
func StreamStarted(err error) error {
	return fmt.Errorf("%w: %w", errStreamStarted, err)
}

func IsStreamStarted(err error) bool {
	return errors.Is(err, errStreamStarted)
}
