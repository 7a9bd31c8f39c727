package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docqa/internal/filestore"
	"github.com/xxxsen/docqa/internal/model"
	"github.com/xxxsen/docqa/internal/vectorindex"
)

const inactiveSessionBatch = 100

type SessionService struct {
	sessions      SessionStore
	docs          DocumentStore
	chunks        ChunkStore
	conversations ConversationStore
	messages      MessageStore
	queryLogs     QueryLogStore
	index         vectorindex.Index
	files         filestore.Store
}

func NewSessionService(sessions SessionStore, docs DocumentStore, chunks ChunkStore, conversations ConversationStore,
	messages MessageStore, queryLogs QueryLogStore, index vectorindex.Index, files filestore.Store) *SessionService {
	return &SessionService{
		sessions:      sessions,
		docs:          docs,
		chunks:        chunks,
		conversations: conversations,
		messages:      messages,
		queryLogs:     queryLogs,
		index:         index,
		files:         files,
	}
}

func (s *SessionService) Touch(ctx context.Context, sessionID, userAgent, ip string) error {
	now := time.Now().Unix()
	return s.sessions.Touch(ctx, &model.Session{
		ID:         sessionID,
		UserAgent:  userAgent,
		IP:         ip,
		Ctime:      now,
		LastActive: now,
	})
}

// Delete erases everything owned by the session. Vectors go first so nothing
// stays retrievable if a later step fails.
func (s *SessionService) Delete(ctx context.Context, sessionID string) error {
	logger := logutil.GetLogger(ctx).With(zap.String("session_id", sessionID))
	docs, err := s.docs.List(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := s.index.DeleteBySession(ctx, sessionID); err != nil {
		logger.Error("delete session vectors failed", zap.Error(err))
		return fmt.Errorf("delete vectors: %w", err)
	}
	steps := []struct {
		name string
		fn   func(context.Context, string) error
	}{
		{"chunks", s.chunks.DeleteBySession},
		{"documents", s.docs.DeleteBySession},
		{"messages", s.messages.DeleteBySession},
		{"conversations", s.conversations.DeleteBySession},
		{"query logs", s.queryLogs.DeleteBySession},
		{"session", s.sessions.Delete},
	}
	var errs []error
	for _, step := range steps {
		if err := step.fn(ctx, sessionID); err != nil {
			logger.Error("delete session data failed", zap.String("step", step.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("delete %s: %w", step.name, err))
		}
	}
	if s.files != nil {
		for _, doc := range docs {
			if doc.StorageKey == "" {
				continue
			}
			if err := s.files.Delete(ctx, doc.StorageKey); err != nil {
				logger.Warn("delete stored file failed", zap.String("key", doc.StorageKey), zap.Error(err))
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	logger.Info("session deleted", zap.Int("documents", len(docs)))
	return nil
}

// CleanupInactive deletes sessions idle for longer than maxAge and returns
// how many were removed.
func (s *SessionService) CleanupInactive(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge).Unix()
	ids, err := s.sessions.ListInactive(ctx, cutoff, inactiveSessionBatch)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, id := range ids {
		if err := s.Delete(ctx, id); err != nil {
			logutil.GetLogger(ctx).Error("cleanup session failed", zap.String("session_id", id), zap.Error(err))
			continue
		}
		removed++
	}
	return removed, nil
}
