package service

import (
	"context"

	"github.com/xxxsen/docqa/internal/ai"
	"github.com/xxxsen/docqa/internal/model"
	"github.com/xxxsen/docqa/internal/rag"
)

// DocumentStore persists document rows.
type DocumentStore interface {
	Create(ctx context.Context, doc *model.Document) error
	Settle(ctx context.Context, doc *model.Document) error
	TouchProcessing(ctx context.Context, docID string, mtime int64) error
	UpdateMetadata(ctx context.Context, docID string, metadata map[string]interface{}, mtime int64) error
	MarkProcessing(ctx context.Context, sessionID, docID string, mtime int64) error
	GetByID(ctx context.Context, sessionID, docID string) (*model.Document, error)
	List(ctx context.Context, sessionID string) ([]*model.Document, error)
	ListStale(ctx context.Context, before int64, limit uint) ([]*model.Document, error)
	Delete(ctx context.Context, sessionID, docID string) error
	DeleteBySession(ctx context.Context, sessionID string) error
}

// ChunkStore persists chunk metadata rows.
type ChunkStore interface {
	ReplaceForDocument(ctx context.Context, docID string, chunks []*model.Chunk) error
	DeleteByDocument(ctx context.Context, docID string) error
	DeleteBySession(ctx context.Context, sessionID string) error
}

type ConversationStore interface {
	Create(ctx context.Context, conv *model.Conversation) error
	Update(ctx context.Context, conv *model.Conversation) error
	GetByID(ctx context.Context, sessionID, convID string) (*model.Conversation, error)
	List(ctx context.Context, sessionID string) ([]*model.Conversation, error)
	Delete(ctx context.Context, sessionID, convID string) error
	DeleteBySession(ctx context.Context, sessionID string) error
}

type MessageStore interface {
	Create(ctx context.Context, msg *model.Message) error
	ListByConversation(ctx context.Context, convID string) ([]*model.Message, error)
	ListRecent(ctx context.Context, convID string, limit uint) ([]*model.Message, error)
	DeleteBySession(ctx context.Context, sessionID string) error
}

type QueryLogStore interface {
	Create(ctx context.Context, item *model.QueryLog) error
	Stats(ctx context.Context, sessionID string, recent uint) (*model.QueryStats, error)
	DeleteBySession(ctx context.Context, sessionID string) error
}

type SessionStore interface {
	Touch(ctx context.Context, s *model.Session) error
	ListInactive(ctx context.Context, cutoff int64, limit uint) ([]string, error)
	Delete(ctx context.Context, sessionID string) error
}

// ChunkEmbedder embeds chunk texts; *ai.EmbeddingService implements it.
type ChunkEmbedder interface {
	EmbedMany(ctx context.Context, texts []string) ([]ai.EmbedResult, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

type EvidenceRetriever interface {
	Retrieve(ctx context.Context, query, sessionID string, opts rag.RetrieveOptions) ([]model.EvidenceItem, error)
	DefaultOptions() rag.RetrieveOptions
}

type AnswerSynthesizer interface {
	Synthesize(ctx context.Context, query string, evidence []model.EvidenceItem, history []model.Message) (*model.AnswerResult, error)
	SynthesizeStream(ctx context.Context, query string, evidence []model.EvidenceItem, history []model.Message, emit rag.EmitFunc) (*model.AnswerResult, error)
}
