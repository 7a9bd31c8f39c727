package ai

import (
	"context"
	"fmt"
	"strings"
)

type ManagerConfig struct {
	MaxInputChars int
}

// Manager runs completions against the configured generators under the
// completion retry policy.
type Manager struct {
	completer  IGenerator
	summarizer IGenerator
	policy     *RetryPolicy
	cfg        ManagerConfig
}

func NewManager(completer IGenerator, summarizer IGenerator, policy *RetryPolicy, cfg ManagerConfig) *Manager {
	if summarizer == nil {
		summarizer = completer
	}
	return &Manager{
		completer:  completer,
		summarizer: summarizer,
		policy:     policy,
		cfg:        cfg,
	}
}

func (m *Manager) Available() bool {
	return m != nil && m.completer != nil
}

func (m *Manager) Complete(ctx context.Context, req *CompletionRequest) (string, error) {
	if !m.Available() {
		return "", fmt.Errorf("completion model not configured: %w", ErrUnavailable)
	}
	return m.generateText(ctx, "completion", m.completer, req)
}

// CompleteStream retries only while nothing has been emitted to fn.
func (m *Manager) CompleteStream(ctx context.Context, req *CompletionRequest, fn DeltaFunc) error {
	if !m.Available() {
		return fmt.Errorf("completion model not configured: %w", ErrUnavailable)
	}
	started := false
	return m.policy.Do(ctx, "completion_stream", func(ctx context.Context) error {
		err := m.completer.GenerateStream(ctx, req, func(delta string) error {
			started = true
			return fn(delta)
		})
		if err != nil && started {
			return StreamStarted(err)
		}
		return err
	})
}

func (m *Manager) Summarize(ctx context.Context, text string) (string, error) {
	if m == nil || m.summarizer == nil {
		return "", fmt.Errorf("summarizer not configured: %w", ErrUnavailable)
	}
	text = TruncateRunes(strings.TrimSpace(text), m.cfg.MaxInputChars)
	if text == "" {
		return "", fmt.Errorf("empty summary input")
	}
	req := &CompletionRequest{
		System: `You are a helpful assistant.
Summarize the following document into a concise paragraph (3-5 sentences).
- Use the same language as the content.
- Keep factual accuracy and key points.
- Output ONLY the summary text.`,
		Messages: []ChatMessage{{Role: RoleUser, Content: "CONTENT:\n" + text}},
	}
	return m.generateText(ctx, "summary", m.summarizer, req)
}

func (m *Manager) generateText(ctx context.Context, op string, gen IGenerator, req *CompletionRequest) (string, error) {
	var text string
	err := m.policy.Do(ctx, op, func(ctx context.Context) error {
		resp, err := gen.Generate(ctx, req)
		if err != nil {
			return err
		}
		text = strings.TrimSpace(resp)
		return nil
	})
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", fmt.Errorf("empty ai response")
	}
	return text, nil
}

func (m *Manager) MaxInputChars() int {
	return m.cfg.MaxInputChars
}

// TruncateRunes cuts s to at most limit runes. A non-positive limit keeps s.
func TruncateRunes(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == limit {
			return s[:i]
		}
		count++
	}
	return s
}
