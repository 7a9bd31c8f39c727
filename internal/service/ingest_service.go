package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docqa/internal/ai"
	"github.com/xxxsen/docqa/internal/extract"
	"github.com/xxxsen/docqa/internal/filestore"
	"github.com/xxxsen/docqa/internal/model"
	appErr "github.com/xxxsen/docqa/internal/pkg/errors"
	"github.com/xxxsen/docqa/internal/vectorindex"
)

var (
	ErrEmptyFile    = fmt.Errorf("file is empty: %w", appErr.ErrInvalid)
	ErrFileTooLarge = fmt.Errorf("file too large: %w", appErr.ErrInvalid)
	ErrNotKept      = fmt.Errorf("original file was not kept, upload it again: %w", appErr.ErrInvalid)
	ErrQueueFull    = fmt.Errorf("ingestion queue is full: %w", appErr.ErrTooMany)
)

const staleReapBatch = 100

type IngestConfig struct {
	Workers           int
	QueueSize         int
	Timeout           time.Duration
	ChunkSize         int
	ChunkOverlap      int
	MaxFileSize       int64
	KeepFileThreshold int64
	StaleAfter        time.Duration
}

type ingestTask struct {
	doc  *model.Document
	data []byte
}

// IngestService turns uploaded files into indexed chunks on a bounded pool of
// background workers. A document is processing until every chunk is both
// stored and indexed (ready), or until any step fails (failed), in which case
// nothing of it stays searchable.
type IngestService struct {
	docs       DocumentStore
	chunks     ChunkStore
	index      vectorindex.Index
	embedder   ChunkEmbedder
	summarizer Summarizer
	files      filestore.Store
	chunker    *ai.Chunker
	cfg        IngestConfig

	queue   chan ingestTask
	wg      sync.WaitGroup
	startMu sync.Mutex
	started bool
	stopped bool
	baseCtx context.Context
	cancel  context.CancelFunc
}

func NewIngestService(docs DocumentStore, chunks ChunkStore, index vectorindex.Index, embedder ChunkEmbedder,
	summarizer Summarizer, files filestore.Store, cfg IngestConfig) *IngestService {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Minute
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 2 * cfg.Timeout
	}
	return &IngestService{
		docs:       docs,
		chunks:     chunks,
		index:      index,
		embedder:   embedder,
		summarizer: summarizer,
		files:      files,
		chunker:    ai.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap),
		cfg:        cfg,
		queue:      make(chan ingestTask, cfg.QueueSize),
	}
}

// Start launches the workers. Jobs run under a context derived from ctx with
// its cancellation detached, so a finished request does not abort ingestion.
func (s *IngestService) Start(ctx context.Context) {
	s.startMu.Lock()
	defer s.startMu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.baseCtx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
}

// Stop drains queued work and waits for the workers to exit.
func (s *IngestService) Stop() {
	s.startMu.Lock()
	if !s.started || s.stopped {
		s.startMu.Unlock()
		return
	}
	s.stopped = true
	close(s.queue)
	s.startMu.Unlock()
	s.wg.Wait()
	s.cancel()
}

func (s *IngestService) worker() {
	defer s.wg.Done()
	for task := range s.queue {
		ctx, cancel := context.WithTimeout(s.baseCtx, s.cfg.Timeout)
		_ = s.process(ctx, task)
		cancel()
	}
}

func (s *IngestService) enqueue(task ingestTask) error {
	s.startMu.Lock()
	defer s.startMu.Unlock()
	if s.stopped {
		return fmt.Errorf("ingestion stopped: %w", appErr.ErrUnavailable)
	}
	select {
	case s.queue <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Upload validates and records the file, then schedules ingestion. The
// returned document is in processing state.
func (s *IngestService) Upload(ctx context.Context, sessionID, filename string, data []byte) (*model.Document, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("session_id", sessionID), zap.String("filename", filename))
	filename = filepath.Base(strings.TrimSpace(filename))
	fileType, err := extract.FileType(filename)
	if err != nil {
		return nil, err
	}
	size := int64(len(data))
	if size == 0 {
		return nil, ErrEmptyFile
	}
	if s.cfg.MaxFileSize > 0 && size > s.cfg.MaxFileSize {
		return nil, ErrFileTooLarge
	}
	now := time.Now().Unix()
	doc := &model.Document{
		ID:        newID(),
		SessionID: sessionID,
		Filename:  filename,
		FileType:  fileType,
		FileSize:  size,
		Status:    model.DocumentStatusProcessing,
		Metadata:  map[string]interface{}{},
		Ctime:     now,
		Mtime:     now,
	}
	if s.files != nil && (s.cfg.KeepFileThreshold <= 0 || size <= s.cfg.KeepFileThreshold) {
		key := filestore.KeyFor(doc.ID, fileType)
		if err := s.files.Save(ctx, key, bytes.NewReader(data), size); err != nil {
			logger.Warn("keep original file failed, re-ingestion disabled", zap.Error(err))
		} else {
			doc.StorageKey = key
		}
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		s.removeFile(ctx, doc.StorageKey)
		logger.Error("create document failed", zap.Error(err))
		return nil, err
	}
	if err := s.enqueue(ingestTask{doc: copyDocument(doc), data: data}); err != nil {
		logger.Warn("schedule ingestion failed", zap.Error(err))
		if delErr := s.docs.Delete(ctx, sessionID, doc.ID); delErr != nil {
			logger.Error("drop unscheduled document failed", zap.Error(delErr))
		}
		s.removeFile(ctx, doc.StorageKey)
		return nil, err
	}
	logger.Info("document accepted", zap.String("doc_id", doc.ID), zap.Int64("size", size))
	return doc, nil
}

// Reingest discards the indexed state of a settled document and ingests its
// kept original again.
func (s *IngestService) Reingest(ctx context.Context, sessionID, docID string) (*model.Document, error) {
	doc, err := s.docs.GetByID(ctx, sessionID, docID)
	if err != nil {
		return nil, err
	}
	if doc.StorageKey == "" || s.files == nil {
		return nil, ErrNotKept
	}
	rc, err := s.files.Open(ctx, doc.StorageKey)
	if err != nil {
		if appErr.IsNotFound(err) {
			return nil, ErrNotKept
		}
		return nil, err
	}
	data, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil {
		return nil, err
	}
	now := time.Now().Unix()
	if err := s.docs.MarkProcessing(ctx, sessionID, docID, now); err != nil {
		return nil, err
	}
	doc.Status = model.DocumentStatusProcessing
	doc.ErrorMessage = ""
	doc.ChunkCount = 0
	doc.IndexedAt = 0
	doc.Mtime = now
	if err := s.rollback(ctx, doc.ID); err != nil {
		s.markFailed(ctx, doc, err)
		return nil, err
	}
	if err := s.enqueue(ingestTask{doc: copyDocument(doc), data: data}); err != nil {
		s.markFailed(ctx, doc, err)
		return nil, err
	}
	logutil.GetLogger(ctx).Info("document re-ingestion scheduled", zap.String("doc_id", doc.ID))
	return doc, nil
}

func (s *IngestService) process(ctx context.Context, task ingestTask) error {
	doc := task.doc
	logger := logutil.GetLogger(ctx).With(zap.String("doc_id", doc.ID), zap.String("file_type", doc.FileType))
	if err := s.docs.TouchProcessing(ctx, doc.ID, time.Now().Unix()); err != nil {
		// deleted or reaped while queued
		logger.Warn("document no longer processing, skip ingestion", zap.Error(err))
		return err
	}
	start := time.Now()
	text, meta, count, err := s.indexDocument(ctx, doc, task.data)
	if err != nil {
		logger.Error("ingestion failed", zap.Error(err), zap.Duration("cost", time.Since(start)))
		s.markFailed(ctx, doc, err)
		return err
	}

	now := time.Now().Unix()
	doc.Status = model.DocumentStatusReady
	doc.ErrorMessage = ""
	doc.ChunkCount = count
	doc.IndexedAt = now
	doc.Mtime = now
	if err := s.docs.Settle(ctx, doc); err != nil {
		// deleted or reaped while we were indexing it
		logger.Warn("finalize document failed, dropping indexed data", zap.Error(err))
		_ = s.rollback(context.WithoutCancel(ctx), doc.ID)
		return err
	}
	logger.Info("document ready", zap.Int("chunks", count), zap.Duration("cost", time.Since(start)))

	for k, v := range meta {
		doc.Metadata[k] = v
	}
	if summary := s.summarize(ctx, text); summary != "" {
		doc.Metadata[model.MetadataSummary] = summary
	}
	if len(doc.Metadata) > 0 {
		if err := s.docs.UpdateMetadata(ctx, doc.ID, doc.Metadata, time.Now().Unix()); err != nil {
			logger.Warn("save document metadata failed", zap.Error(err))
		}
	}
	return nil
}

// indexDocument runs extract, chunk, embed, store and upsert. It returns the
// extracted text, extractor metadata and the chunk count.
func (s *IngestService) indexDocument(ctx context.Context, doc *model.Document, data []byte) (string, map[string]interface{}, int, error) {
	res, err := extract.Extract(ctx, doc.FileType, data)
	if err != nil {
		return "", nil, 0, err
	}
	if strings.TrimSpace(res.Text) == "" {
		return "", nil, 0, fmt.Errorf("no extractable text: %w", appErr.ErrInvalid)
	}
	segments, err := s.chunker.Chunk(res.Text)
	if err != nil {
		return "", nil, 0, err
	}
	texts := make([]string, 0, len(segments))
	for _, seg := range segments {
		texts = append(texts, seg.Text)
	}
	results, err := s.embedder.EmbedMany(ctx, texts)
	if err != nil {
		return "", nil, 0, err
	}
	var (
		failed   int
		firstErr error
	)
	for _, r := range results {
		if r.Err != nil {
			failed++
			if firstErr == nil {
				firstErr = r.Err
			}
		}
	}
	if failed > 0 {
		return "", nil, 0, fmt.Errorf("%d of %d chunks failed to embed: %w", failed, len(segments), firstErr)
	}

	now := time.Now().Unix()
	chunks := make([]*model.Chunk, 0, len(segments))
	entries := make([]vectorindex.Entry, 0, len(segments))
	for i, seg := range segments {
		overlap := 0
		if i > 0 {
			overlap = s.chunker.Overlap
		}
		c := &model.Chunk{
			ID:          newID(),
			DocumentID:  doc.ID,
			SessionID:   doc.SessionID,
			Index:       i,
			Content:     seg.Text,
			StartOffset: seg.Start,
			Overlap:     overlap,
			Page:        ai.PageForOffset(res.PageStarts, seg.Start),
			Ctime:       now,
		}
		chunks = append(chunks, c)
		entries = append(entries, vectorindex.Entry{
			ChunkID: c.ID,
			Vector:  results[i].Vector,
			Meta: vectorindex.Meta{
				DocumentID: doc.ID,
				SessionID:  doc.SessionID,
				Filename:   doc.Filename,
				ChunkIndex: i,
				Page:       c.Page,
				Text:       seg.Text,
			},
		})
	}
	if err := s.chunks.ReplaceForDocument(ctx, doc.ID, chunks); err != nil {
		return "", nil, 0, fmt.Errorf("store chunks: %w", err)
	}
	if err := s.index.Upsert(ctx, entries); err != nil {
		return "", nil, 0, fmt.Errorf("index chunks: %w", err)
	}
	meta := res.Metadata
	if meta == nil {
		meta = map[string]interface{}{}
	}
	meta["characters"] = len([]rune(res.Text))
	return res.Text, meta, len(chunks), nil
}

func (s *IngestService) summarize(ctx context.Context, text string) string {
	if s.summarizer == nil {
		return ""
	}
	summary, err := s.summarizer.Summarize(ctx, text)
	if err != nil {
		logutil.GetLogger(ctx).Warn("document summary skipped", zap.Error(err))
		return ""
	}
	return summary
}

// rollback removes every chunk row and vector of the document.
func (s *IngestService) rollback(ctx context.Context, docID string) error {
	var errs []error
	if err := s.index.DeleteByDocument(ctx, docID); err != nil {
		errs = append(errs, fmt.Errorf("delete vectors: %w", err))
	}
	if err := s.chunks.DeleteByDocument(ctx, docID); err != nil {
		errs = append(errs, fmt.Errorf("delete chunks: %w", err))
	}
	return errors.Join(errs...)
}

// markFailed settles doc as failed and drops whatever the worker indexed.
func (s *IngestService) markFailed(ctx context.Context, doc *model.Document, cause error) {
	ctx = context.WithoutCancel(ctx)
	logger := logutil.GetLogger(ctx).With(zap.String("doc_id", doc.ID))
	if err := s.settleFailed(ctx, doc, cause); err != nil && !appErr.IsNotFound(err) {
		logger.Error("mark document failed", zap.Error(err))
	}
	if err := s.rollback(ctx, doc.ID); err != nil {
		logger.Error("rollback failed document", zap.Error(err))
	}
}

func (s *IngestService) settleFailed(ctx context.Context, doc *model.Document, cause error) error {
	doc.Status = model.DocumentStatusFailed
	doc.ErrorMessage = failureMessage(cause)
	doc.ChunkCount = 0
	doc.IndexedAt = 0
	doc.Mtime = time.Now().Unix()
	return s.docs.Settle(ctx, doc)
}

func failureMessage(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "processing timed out"
	case appErr.IsIndexInconsistency(err):
		return "vector index configuration mismatch"
	case appErr.IsTransient(err), errors.Is(err, ai.ErrUnavailable):
		return "embedding service unavailable: " + err.Error()
	}
	return err.Error()
}

// ReapStale fails documents stuck in processing, typically left behind by a
// restart. It returns how many documents were reaped.
func (s *IngestService) ReapStale(ctx context.Context) (int, error) {
	before := time.Now().Add(-s.cfg.StaleAfter).Unix()
	docs, err := s.docs.ListStale(ctx, before, staleReapBatch)
	if err != nil {
		return 0, err
	}
	reaped := 0
	for _, doc := range docs {
		logger := logutil.GetLogger(ctx).With(zap.String("doc_id", doc.ID))
		// a document settled since the listing keeps its chunks
		if err := s.settleFailed(ctx, doc, errors.New("processing was interrupted")); err != nil {
			if !appErr.IsNotFound(err) {
				logger.Error("mark stale document failed", zap.Error(err))
			}
			continue
		}
		if err := s.rollback(ctx, doc.ID); err != nil {
			logger.Error("rollback stale document", zap.Error(err))
		}
		reaped++
	}
	return reaped, nil
}
