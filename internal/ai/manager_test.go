package ai

import (
	"context"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type scriptedGenerator struct {
	calls  int32
	stream func(ctx context.Context, call int32, fn DeltaFunc) error
}

func (g *scriptedGenerator) Generate(ctx context.Context, req *CompletionRequest) (string, error) {
	return "", nil
}

func (g *scriptedGenerator) GenerateStream(ctx context.Context, req *CompletionRequest, fn DeltaFunc) error {
	return g.stream(ctx, atomic.AddInt32(&g.calls, 1), fn)
}

func TestCompleteStreamTimeoutAfterFirstTokenIsNotRetried(t *testing.T) {
	gen := &scriptedGenerator{stream: func(ctx context.Context, call int32, fn DeltaFunc) error {
		if err := fn("Hello "); err != nil {
			return err
		}
		<-ctx.Done()
		return ctx.Err()
	}}
	policy := fastPolicy(3)
	policy.Timeout = 20 * time.Millisecond
	m := NewManager(gen, nil, policy, ManagerConfig{})

	var sb strings.Builder
	err := m.CompleteStream(context.Background(), &CompletionRequest{}, func(delta string) error {
		sb.WriteString(delta)
		return nil
	})
	require.Error(t, err)
	require.True(t, IsStreamStarted(err))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, int32(1), atomic.LoadInt32(&gen.calls))
	require.Equal(t, "Hello ", sb.String())
}

func TestCompleteStreamTimeoutBeforeFirstTokenIsRetried(t *testing.T) {
	gen := &scriptedGenerator{stream: func(ctx context.Context, call int32, fn DeltaFunc) error {
		if call == 1 {
			<-ctx.Done()
			return ctx.Err()
		}
		return fn("ok")
	}}
	policy := fastPolicy(3)
	policy.Timeout = 20 * time.Millisecond
	m := NewManager(gen, nil, policy, ManagerConfig{})

	var sb strings.Builder
	err := m.CompleteStream(context.Background(), &CompletionRequest{}, func(delta string) error {
		sb.WriteString(delta)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, int32(2), atomic.LoadInt32(&gen.calls))
	require.Equal(t, "ok", sb.String())
}

func TestCompleteStreamFailureAfterTokenIsNotRetried(t *testing.T) {
	gen := &scriptedGenerator{stream: func(ctx context.Context, call int32, fn DeltaFunc) error {
		if err := fn("partial"); err != nil {
			return err
		}
		return &StatusError{Provider: "test", Code: http.StatusBadGateway}
	}}
	m := NewManager(gen, nil, fastPolicy(3), ManagerConfig{})
	err := m.CompleteStream(context.Background(), &CompletionRequest{}, func(delta string) error { return nil })
	require.True(t, IsStreamStarted(err))
	require.Equal(t, int32(1), atomic.LoadInt32(&gen.calls))
}
