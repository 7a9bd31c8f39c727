package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xxxsen/docqa/internal/ai"
	"github.com/xxxsen/docqa/internal/model"
	appErr "github.com/xxxsen/docqa/internal/pkg/errors"
)

type memDocs struct {
	mu   sync.Mutex
	docs map[string]*model.Document
}

func newMemDocs() *memDocs {
	return &memDocs{docs: map[string]*model.Document{}}
}

func cloneDoc(d *model.Document) *model.Document {
	cp := *d
	cp.Metadata = map[string]interface{}{}
	for k, v := range d.Metadata {
		cp.Metadata[k] = v
	}
	return &cp
}

func (m *memDocs) Create(ctx context.Context, doc *model.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[doc.ID]; ok {
		return appErr.ErrConflict
	}
	m.docs[doc.ID] = cloneDoc(doc)
	return nil
}

func (m *memDocs) Settle(ctx context.Context, doc *model.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.docs[doc.ID]
	if !ok || cur.Status != model.DocumentStatusProcessing {
		return appErr.ErrNotFound
	}
	cur.Status = doc.Status
	cur.ErrorMessage = doc.ErrorMessage
	cur.ChunkCount = doc.ChunkCount
	cur.IndexedAt = doc.IndexedAt
	cur.Mtime = doc.Mtime
	return nil
}

func (m *memDocs) TouchProcessing(ctx context.Context, docID string, mtime int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.docs[docID]
	if !ok || cur.Status != model.DocumentStatusProcessing {
		return appErr.ErrNotFound
	}
	cur.Mtime = mtime
	return nil
}

// age moves the document's mtime into the past.
func (m *memDocs) age(docID string, by time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.docs[docID]; ok {
		cur.Mtime -= int64(by / time.Second)
	}
}

func (m *memDocs) UpdateMetadata(ctx context.Context, docID string, metadata map[string]interface{}, mtime int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.docs[docID]
	if !ok {
		return appErr.ErrNotFound
	}
	cur.Metadata = map[string]interface{}{}
	for k, v := range metadata {
		cur.Metadata[k] = v
	}
	cur.Mtime = mtime
	return nil
}

func (m *memDocs) MarkProcessing(ctx context.Context, sessionID, docID string, mtime int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.docs[docID]
	if !ok || cur.SessionID != sessionID {
		return appErr.ErrNotFound
	}
	if cur.Status == model.DocumentStatusProcessing {
		return appErr.ErrConflict
	}
	cur.Status = model.DocumentStatusProcessing
	cur.ErrorMessage = ""
	cur.ChunkCount = 0
	cur.IndexedAt = 0
	cur.Mtime = mtime
	return nil
}

func (m *memDocs) GetByID(ctx context.Context, sessionID, docID string) (*model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.docs[docID]
	if !ok || cur.SessionID != sessionID {
		return nil, appErr.ErrNotFound
	}
	return cloneDoc(cur), nil
}

func (m *memDocs) List(ctx context.Context, sessionID string) ([]*model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Document, 0)
	for _, d := range m.docs {
		if d.SessionID == sessionID {
			out = append(out, cloneDoc(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memDocs) ListStale(ctx context.Context, before int64, limit uint) ([]*model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Document, 0)
	for _, d := range m.docs {
		if d.Status == model.DocumentStatusProcessing && d.Mtime < before && uint(len(out)) < limit {
			out = append(out, cloneDoc(d))
		}
	}
	return out, nil
}

func (m *memDocs) Delete(ctx context.Context, sessionID, docID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.docs[docID]
	if !ok || cur.SessionID != sessionID {
		return appErr.ErrNotFound
	}
	delete(m.docs, docID)
	return nil
}

func (m *memDocs) DeleteBySession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, d := range m.docs {
		if d.SessionID == sessionID {
			delete(m.docs, id)
		}
	}
	return nil
}

func (m *memDocs) get(id string) *model.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.docs[id]; ok {
		return cloneDoc(d)
	}
	return nil
}

type memChunks struct {
	mu     sync.Mutex
	chunks map[string][]*model.Chunk
	err    error
}

func newMemChunks() *memChunks {
	return &memChunks{chunks: map[string][]*model.Chunk{}}
}

func (m *memChunks) ReplaceForDocument(ctx context.Context, docID string, chunks []*model.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.chunks[docID] = chunks
	return nil
}

func (m *memChunks) DeleteByDocument(ctx context.Context, docID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.chunks, docID)
	return nil
}

func (m *memChunks) DeleteBySession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, list := range m.chunks {
		if len(list) > 0 && list[0].SessionID == sessionID {
			delete(m.chunks, id)
		}
	}
	return nil
}

func (m *memChunks) of(docID string) []*model.Chunk {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chunks[docID]
}

type memConversations struct {
	mu    sync.Mutex
	items map[string]*model.Conversation
}

func newMemConversations() *memConversations {
	return &memConversations{items: map[string]*model.Conversation{}}
}

func (m *memConversations) Create(ctx context.Context, conv *model.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *conv
	m.items[conv.ID] = &cp
	return nil
}

func (m *memConversations) Update(ctx context.Context, conv *model.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.items[conv.ID]
	if !ok || cur.SessionID != conv.SessionID {
		return appErr.ErrNotFound
	}
	cur.Title = conv.Title
	cur.Mtime = conv.Mtime
	return nil
}

func (m *memConversations) GetByID(ctx context.Context, sessionID, convID string) (*model.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.items[convID]
	if !ok || cur.SessionID != sessionID {
		return nil, appErr.ErrNotFound
	}
	cp := *cur
	return &cp, nil
}

func (m *memConversations) List(ctx context.Context, sessionID string) ([]*model.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Conversation, 0)
	for _, c := range m.items {
		if c.SessionID == sessionID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memConversations) Delete(ctx context.Context, sessionID, convID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.items[convID]
	if !ok || cur.SessionID != sessionID {
		return appErr.ErrNotFound
	}
	delete(m.items, convID)
	return nil
}

func (m *memConversations) DeleteBySession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, c := range m.items {
		if c.SessionID == sessionID {
			delete(m.items, id)
		}
	}
	return nil
}

type memMessages struct {
	mu    sync.Mutex
	seq   int64
	items []*model.Message
	convs *memConversations
}

func (m *memMessages) Create(ctx context.Context, msg *model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	msg.Seq = m.seq
	cp := *msg
	m.items = append(m.items, &cp)
	return nil
}

func (m *memMessages) ListByConversation(ctx context.Context, convID string) ([]*model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Message, 0)
	for _, msg := range m.items {
		if msg.ConversationID == convID {
			cp := *msg
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memMessages) ListRecent(ctx context.Context, convID string, limit uint) ([]*model.Message, error) {
	all, _ := m.ListByConversation(ctx, convID)
	if uint(len(all)) > limit {
		all = all[uint(len(all))-limit:]
	}
	return all, nil
}

func (m *memMessages) DeleteBySession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.items[:0]
	for _, msg := range m.items {
		if _, err := m.convs.GetByID(ctx, sessionID, msg.ConversationID); err == nil {
			continue
		}
		kept = append(kept, msg)
	}
	m.items = kept
	return nil
}

type memQueryLogs struct {
	mu    sync.Mutex
	items []*model.QueryLog
}

func (m *memQueryLogs) Create(ctx context.Context, item *model.QueryLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item.ID = int64(len(m.items) + 1)
	cp := *item
	m.items = append(m.items, &cp)
	return nil
}

func (m *memQueryLogs) Stats(ctx context.Context, sessionID string, recent uint) (*model.QueryStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &model.QueryStats{Recent: []model.QueryLog{}}
	var totalMs, totalConf float64
	for _, it := range m.items {
		if it.SessionID != sessionID {
			continue
		}
		stats.TotalQueries++
		totalMs += float64(it.ResponseTimeMs)
		if it.ResultFound {
			stats.SuccessfulQueries++
			totalConf += it.Confidence
		}
		stats.Recent = append(stats.Recent, *it)
	}
	if stats.TotalQueries > 0 {
		stats.SuccessRate = float64(stats.SuccessfulQueries) / float64(stats.TotalQueries)
		stats.AvgResponseTimeMs = totalMs / float64(stats.TotalQueries)
	}
	if stats.SuccessfulQueries > 0 {
		stats.AvgConfidence = totalConf / float64(stats.SuccessfulQueries)
	}
	return stats, nil
}

func (m *memQueryLogs) DeleteBySession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.items[:0]
	for _, it := range m.items {
		if it.SessionID != sessionID {
			kept = append(kept, it)
		}
	}
	m.items = kept
	return nil
}

type memSessions struct {
	mu    sync.Mutex
	items map[string]*model.Session
}

func newMemSessions() *memSessions {
	return &memSessions{items: map[string]*model.Session{}}
}

func (m *memSessions) Touch(ctx context.Context, s *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.items[s.ID]; ok {
		cur.LastActive = s.LastActive
		return nil
	}
	cp := *s
	m.items[s.ID] = &cp
	return nil
}

func (m *memSessions) ListInactive(ctx context.Context, cutoff int64, limit uint) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0)
	for id, s := range m.items {
		if s.LastActive < cutoff && uint(len(out)) < limit {
			out = append(out, id)
		}
	}
	return out, nil
}

func (m *memSessions) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, sessionID)
	return nil
}

// flakyEmbedder fails every text containing failOn.
type flakyEmbedder struct {
	inner  ChunkEmbedder
	failOn string
	err    error
}

func (f *flakyEmbedder) EmbedMany(ctx context.Context, texts []string) ([]ai.EmbedResult, error) {
	res, err := f.inner.EmbedMany(ctx, texts)
	if err != nil {
		return nil, err
	}
	for i, text := range texts {
		if f.failOn != "" && strings.Contains(text, f.failOn) {
			res[i] = ai.EmbedResult{Err: f.err}
		}
	}
	return res, nil
}

type stubSummarizer struct {
	summary string
	err     error
}

func (s *stubSummarizer) Summarize(ctx context.Context, text string) (string, error) {
	return s.summary, s.err
}
