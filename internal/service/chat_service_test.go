package service

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docqa/internal/model"
	appErr "github.com/xxxsen/docqa/internal/pkg/errors"
	"github.com/xxxsen/docqa/internal/rag"
)

const revenueFact = "Revenue for 2023 was 5.0 million dollars, up from 4.1 million in 2022."

func readyDocument(t *testing.T, h *harness, sessionID, filename, body string) *model.Document {
	t.Helper()
	doc, err := h.ingest.Upload(context.Background(), sessionID, filename, []byte(body))
	require.NoError(t, err)
	return h.waitStatus(t, doc.ID, model.DocumentStatusReady)
}

func TestAskAnsweredFromDocument(t *testing.T) {
	h := newHarness(t, IngestConfig{}, nil)
	ctx := context.Background()
	doc := readyDocument(t, h, "s1", "report.txt", revenueFact)

	conv, err := h.chat.CreateConversation(ctx, "s1", "")
	require.NoError(t, err)
	require.Equal(t, model.DefaultConversationTitle, conv.Title)

	res, err := h.chat.Ask(ctx, "s1", conv.ID, revenueFact)
	require.NoError(t, err)
	require.Equal(t, model.OutcomeAnswered, res.Answer.Outcome)
	require.Len(t, res.Answer.Sources, 1)
	require.Equal(t, doc.ID, res.Answer.Sources[0].DocumentID)
	require.Equal(t, "report.txt", res.Answer.Sources[0].Filename)
	require.Greater(t, res.Answer.Confidence, 0.0)
	require.LessOrEqual(t, res.Answer.Confidence, 1.0)
	require.Equal(t, "Revenue was 5.0 million dollars [Source 1].", res.Answer.Text)

	msgs, err := h.chat.Messages(ctx, "s1", conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, model.RoleUser, msgs[0].Role)
	require.Equal(t, model.RoleAssistant, msgs[1].Role)
	require.Less(t, msgs[0].Seq, msgs[1].Seq)
	require.NotNil(t, msgs[1].Confidence)
	require.Equal(t, res.Answer.Confidence, *msgs[1].Confidence)

	convs, err := h.chat.ListConversations(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, convs, 1)
	require.Equal(t, TitleFromQuestion(revenueFact), convs[0].Title)

	stats, err := h.chat.Stats(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.TotalQueries)
	require.Equal(t, int64(1), stats.SuccessfulQueries)
	require.Equal(t, 1.0, stats.SuccessRate)
}

func TestAskWithoutEvidence(t *testing.T) {
	h := newHarness(t, IngestConfig{}, nil)
	ctx := context.Background()
	conv, err := h.chat.CreateConversation(ctx, "s1", "")
	require.NoError(t, err)

	res, err := h.chat.Ask(ctx, "s1", conv.ID, "What is the capital of Mars?")
	require.NoError(t, err)
	require.Equal(t, model.OutcomeNoEvidence, res.Answer.Outcome)
	require.Equal(t, rag.NoEvidenceMessage, res.Answer.Text)
	require.Empty(t, res.Answer.Sources)
	require.Zero(t, res.Answer.Confidence)
	require.Zero(t, atomic.LoadInt32(&h.completer.calls))

	stats, err := h.chat.Stats(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.TotalQueries)
	require.Zero(t, stats.SuccessfulQueries)
}

func TestAskIsolatedBySession(t *testing.T) {
	h := newHarness(t, IngestConfig{}, nil)
	ctx := context.Background()
	readyDocument(t, h, "s1", "report.txt", revenueFact)

	conv, err := h.chat.CreateConversation(ctx, "s2", "")
	require.NoError(t, err)
	res, err := h.chat.Ask(ctx, "s2", conv.ID, revenueFact)
	require.NoError(t, err)
	require.Equal(t, model.OutcomeNoEvidence, res.Answer.Outcome)

	_, err = h.chat.Ask(ctx, "s1", conv.ID, revenueFact)
	require.ErrorIs(t, err, appErr.ErrNotFound)
}

type brokenRetriever struct {
	err error
}

func (b *brokenRetriever) Retrieve(ctx context.Context, query, sessionID string, opts rag.RetrieveOptions) ([]model.EvidenceItem, error) {
	return nil, b.err
}

func (b *brokenRetriever) DefaultOptions() rag.RetrieveOptions {
	return rag.RetrieveOptions{TopK: 5, MinScore: 0.7}
}

func TestAskMapsRetrievalFailures(t *testing.T) {
	h := newHarness(t, IngestConfig{}, nil)
	ctx := context.Background()
	conv, err := h.chat.CreateConversation(ctx, "s1", "Revenue")
	require.NoError(t, err)

	h.chat.retriever = &brokenRetriever{err: appErr.ErrIndexInconsistency}
	res, err := h.chat.Ask(ctx, "s1", conv.ID, "How much revenue?")
	require.NoError(t, err)
	require.Equal(t, model.OutcomeIndexError, res.Answer.Outcome)
	require.Equal(t, rag.IndexErrorMessage, res.Answer.Text)

	h.chat.retriever = &brokenRetriever{err: appErr.ErrTransient}
	res, err = h.chat.Ask(ctx, "s1", conv.ID, "How much revenue?")
	require.NoError(t, err)
	require.Equal(t, model.OutcomeDegraded, res.Answer.Outcome)
	require.Equal(t, rag.DegradedMessage, res.Answer.Text)

	convs, err := h.chat.ListConversations(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, "Revenue", convs[0].Title)
}

func TestAskValidation(t *testing.T) {
	h := newHarness(t, IngestConfig{}, nil)
	ctx := context.Background()
	conv, err := h.chat.CreateConversation(ctx, "s1", "")
	require.NoError(t, err)

	_, err = h.chat.Ask(ctx, "s1", conv.ID, "   ")
	require.ErrorIs(t, err, appErr.ErrInvalid)
	_, err = h.chat.Ask(ctx, "s1", conv.ID, strings.Repeat("x", 4001))
	require.ErrorIs(t, err, appErr.ErrInvalid)
	_, err = h.chat.Ask(ctx, "s1", "missing", "hello")
	require.ErrorIs(t, err, appErr.ErrNotFound)
}

func TestAskStreamStoresReplyBeforeDone(t *testing.T) {
	h := newHarness(t, IngestConfig{}, nil)
	ctx := context.Background()
	readyDocument(t, h, "s1", "report.txt", revenueFact)
	conv, err := h.chat.CreateConversation(ctx, "s1", "")
	require.NoError(t, err)

	var (
		types     []rag.EventType
		tokens    strings.Builder
		storedAtD int
	)
	res, err := h.chat.AskStream(ctx, "s1", conv.ID, revenueFact, func(ev rag.StreamEvent) error {
		types = append(types, ev.Type)
		switch ev.Type {
		case rag.EventToken:
			tokens.WriteString(ev.Token)
		case rag.EventDone:
			msgs, err := h.chat.Messages(ctx, "s1", conv.ID)
			require.NoError(t, err)
			storedAtD = len(msgs)
		}
		return nil
	})
	require.NoError(t, err)
	require.NotNil(t, res)
	require.Equal(t, rag.EventSources, types[0])
	require.Equal(t, rag.EventDone, types[len(types)-1])
	require.Equal(t, 2, storedAtD)
	require.Equal(t, h.completer.answer, tokens.String())
	require.Equal(t, model.OutcomeAnswered, res.Reply.Outcome)
	require.Len(t, res.Reply.Sources, 1)
}

func TestAskStreamWithoutEvidence(t *testing.T) {
	h := newHarness(t, IngestConfig{}, nil)
	ctx := context.Background()
	conv, err := h.chat.CreateConversation(ctx, "s1", "")
	require.NoError(t, err)
	var events []rag.StreamEvent
	res, err := h.chat.AskStream(ctx, "s1", conv.ID, "anything?", func(ev rag.StreamEvent) error {
		events = append(events, ev)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, model.OutcomeNoEvidence, res.Answer.Outcome)
	require.Len(t, events, 3)
	require.Equal(t, rag.NoEvidenceMessage, events[1].Token)
}

func TestTitleFromQuestion(t *testing.T) {
	require.Equal(t, "short question", TitleFromQuestion("  short \n question "))
	long := strings.Repeat("é", 60)
	title := TitleFromQuestion(long)
	require.Equal(t, strings.Repeat("é", 50)+"...", title)
}
