package service

import (
	"context"
	"fmt"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docqa/internal/filestore"
	"github.com/xxxsen/docqa/internal/model"
	"github.com/xxxsen/docqa/internal/vectorindex"
)

type DocumentService struct {
	docs   DocumentStore
	chunks ChunkStore
	index  vectorindex.Index
	files  filestore.Store
}

func NewDocumentService(docs DocumentStore, chunks ChunkStore, index vectorindex.Index, files filestore.Store) *DocumentService {
	return &DocumentService{docs: docs, chunks: chunks, index: index, files: files}
}

func (s *DocumentService) List(ctx context.Context, sessionID string) ([]*model.Document, error) {
	return s.docs.List(ctx, sessionID)
}

func (s *DocumentService) Get(ctx context.Context, sessionID, docID string) (*model.Document, error) {
	return s.docs.GetByID(ctx, sessionID, docID)
}

// Delete removes the document together with its vectors, chunk rows and kept
// original. Vectors go first so a partially failed delete never leaves
// searchable chunks behind.
func (s *DocumentService) Delete(ctx context.Context, sessionID, docID string) error {
	logger := logutil.GetLogger(ctx).With(zap.String("session_id", sessionID), zap.String("doc_id", docID))
	doc, err := s.docs.GetByID(ctx, sessionID, docID)
	if err != nil {
		return err
	}
	if err := s.index.DeleteByDocument(ctx, doc.ID); err != nil {
		logger.Error("delete document vectors failed", zap.Error(err))
		return fmt.Errorf("delete vectors: %w", err)
	}
	if err := s.chunks.DeleteByDocument(ctx, doc.ID); err != nil {
		logger.Error("delete document chunks failed", zap.Error(err))
		return fmt.Errorf("delete chunks: %w", err)
	}
	if err := s.docs.Delete(ctx, sessionID, doc.ID); err != nil {
		return err
	}
	if doc.StorageKey != "" && s.files != nil {
		if err := s.files.Delete(ctx, doc.StorageKey); err != nil {
			logger.Warn("delete stored file failed", zap.Error(err))
		}
	}
	logger.Info("document deleted")
	return nil
}

// ChunkCount reports how many vectors of the document are searchable.
func (s *DocumentService) ChunkCount(ctx context.Context, sessionID, docID string) (int, error) {
	return s.index.Count(ctx, vectorindex.Filter{SessionID: sessionID, DocumentIDs: []string{docID}})
}
