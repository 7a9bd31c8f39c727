package service

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docqa/internal/ai"
	"github.com/xxxsen/docqa/internal/filestore"
	"github.com/xxxsen/docqa/internal/model"
	"github.com/xxxsen/docqa/internal/rag"
	"github.com/xxxsen/docqa/internal/vectorindex"
)

const testDim = 64

type fixedCompleter struct {
	answer string
	calls  int32
}

func (f *fixedCompleter) Complete(ctx context.Context, req *ai.CompletionRequest) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.answer, nil
}

func (f *fixedCompleter) CompleteStream(ctx context.Context, req *ai.CompletionRequest, fn ai.DeltaFunc) error {
	atomic.AddInt32(&f.calls, 1)
	for _, word := range strings.SplitAfter(f.answer, " ") {
		if err := fn(word); err != nil {
			return err
		}
	}
	return nil
}

type harness struct {
	docs      *memDocs
	chunks    *memChunks
	convs     *memConversations
	messages  *memMessages
	queryLogs *memQueryLogs
	sessions  *memSessions
	index     vectorindex.Index
	files     filestore.Store
	embedder  *ai.EmbeddingService
	completer *fixedCompleter

	ingest    *IngestService
	documents *DocumentService
	chat      *ChatService
	session   *SessionService
}

type harnessOption func(h *harness, cfg *IngestConfig)

func withEmbedder(wrap func(ChunkEmbedder) ChunkEmbedder) harnessOption {
	return func(h *harness, cfg *IngestConfig) {
		h.ingest.embedder = wrap(h.ingest.embedder)
	}
}

func newHarness(t *testing.T, cfg IngestConfig, summarizer Summarizer, opts ...harnessOption) *harness {
	t.Helper()
	provider, err := ai.NewEmbedProvider("local", nil)
	require.NoError(t, err)
	h := &harness{
		docs:      newMemDocs(),
		chunks:    newMemChunks(),
		convs:     newMemConversations(),
		queryLogs: &memQueryLogs{},
		sessions:  newMemSessions(),
		index:     vectorindex.NewMemory(testDim),
		files:     filestore.NewLocal(t.TempDir()),
		embedder: ai.NewEmbeddingService(ai.NewEmbedder(provider, "hash-embedding", testDim), nil,
			ai.EmbeddingConfig{Dimension: testDim, Concurrency: 2}),
		completer: &fixedCompleter{answer: "Revenue was 5.0 million dollars [Source 1]."},
	}
	h.messages = &memMessages{convs: h.convs}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = ai.DefaultChunkSize
		cfg.ChunkOverlap = ai.DefaultChunkOverlap
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	h.ingest = NewIngestService(h.docs, h.chunks, h.index, h.embedder, summarizer, h.files, cfg)
	for _, opt := range opts {
		opt(h, &cfg)
	}
	h.documents = NewDocumentService(h.docs, h.chunks, h.index, h.files)
	retriever := rag.NewRetriever(h.embedder, h.index, rag.RetrieverConfig{TopK: 5, MinScore: 0.7})
	synth := rag.NewSynthesizer(h.completer, rag.SynthesizerConfig{})
	h.chat = NewChatService(h.convs, h.messages, h.queryLogs, retriever, synth, ChatConfig{})
	h.session = NewSessionService(h.sessions, h.docs, h.chunks, h.convs, h.messages, h.queryLogs, h.index, h.files)

	h.ingest.Start(context.Background())
	t.Cleanup(h.ingest.Stop)
	return h
}

func (h *harness) waitStatus(t *testing.T, docID string, status model.DocumentStatus) *model.Document {
	t.Helper()
	var doc *model.Document
	require.Eventually(t, func() bool {
		doc = h.docs.get(docID)
		return doc != nil && doc.Status == status
	}, 5*time.Second, 10*time.Millisecond, "document %s never reached %s", docID, status)
	return doc
}

func (h *harness) vectorCount(t *testing.T, sessionID string, docIDs ...string) int {
	t.Helper()
	n, err := h.index.Count(context.Background(), vectorindex.Filter{SessionID: sessionID, DocumentIDs: docIDs})
	require.NoError(t, err)
	return n
}

// sampleText builds n runes of prose with a marker near the end.
func sampleText(n int, marker string) string {
	var sb strings.Builder
	sentence := "The quarterly report describes revenue, costs and regional growth in detail. "
	for sb.Len() < n {
		sb.WriteString(sentence)
	}
	text := []rune(sb.String())[:n]
	if marker != "" {
		copy(text[n-100:], []rune(marker))
	}
	return string(text)
}
