package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docqa/internal/extract"
	"github.com/xxxsen/docqa/internal/middleware"
	"github.com/xxxsen/docqa/internal/model"
	"github.com/xxxsen/docqa/internal/pkg/errcode"
	appErr "github.com/xxxsen/docqa/internal/pkg/errors"
	"github.com/xxxsen/docqa/internal/rag"
	"github.com/xxxsen/docqa/internal/service"
)

const testSession = "session-0001"

type stubIngester struct {
	uploaded []string
	err      error
}

func (s *stubIngester) Upload(ctx context.Context, sessionID, filename string, data []byte) (*model.Document, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.uploaded = append(s.uploaded, sessionID+"/"+filename+":"+string(data))
	return &model.Document{ID: "doc-1", SessionID: sessionID, Filename: filename, Status: model.DocumentStatusProcessing}, nil
}

func (s *stubIngester) Reingest(ctx context.Context, sessionID, docID string) (*model.Document, error) {
	return nil, service.ErrNotKept
}

type stubDocuments struct {
	deleted []string
}

func (s *stubDocuments) List(ctx context.Context, sessionID string) ([]*model.Document, error) {
	return []*model.Document{{ID: "doc-1", SessionID: sessionID}}, nil
}

func (s *stubDocuments) Get(ctx context.Context, sessionID, docID string) (*model.Document, error) {
	if docID != "doc-1" {
		return nil, appErr.ErrNotFound
	}
	return &model.Document{ID: docID, SessionID: sessionID}, nil
}

func (s *stubDocuments) Delete(ctx context.Context, sessionID, docID string) error {
	s.deleted = append(s.deleted, sessionID+"/"+docID)
	return nil
}

type stubChat struct {
	answer    *model.AnswerResult
	streamErr error
}

func (s *stubChat) CreateConversation(ctx context.Context, sessionID, title string) (*model.Conversation, error) {
	if title == "" {
		title = model.DefaultConversationTitle
	}
	return &model.Conversation{ID: "conv-1", SessionID: sessionID, Title: title}, nil
}

func (s *stubChat) ListConversations(ctx context.Context, sessionID string) ([]*model.Conversation, error) {
	return []*model.Conversation{}, nil
}

func (s *stubChat) DeleteConversation(ctx context.Context, sessionID, convID string) error {
	return nil
}

func (s *stubChat) Messages(ctx context.Context, sessionID, convID string) ([]*model.Message, error) {
	return []*model.Message{}, nil
}

func (s *stubChat) Stats(ctx context.Context, sessionID string) (*model.QueryStats, error) {
	return &model.QueryStats{TotalQueries: 3, SuccessfulQueries: 2}, nil
}

func (s *stubChat) Ask(ctx context.Context, sessionID, convID, question string) (*service.AskResult, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("question is empty: %w", appErr.ErrInvalid)
	}
	return &service.AskResult{Reply: &model.Message{ID: "msg-2"}, Answer: s.answer}, nil
}

func (s *stubChat) AskStream(ctx context.Context, sessionID, convID, question string, emit rag.EmitFunc) (*service.AskResult, error) {
	if s.streamErr != nil {
		return nil, s.streamErr
	}
	events := []rag.StreamEvent{
		{Type: rag.EventSources, Sources: s.answer.Sources, Confidence: s.answer.Confidence},
		{Type: rag.EventToken, Token: "Revenue "},
		{Type: rag.EventToken, Token: "grew."},
		{Type: rag.EventDone, Result: s.answer},
	}
	for _, ev := range events {
		if err := emit(ev); err != nil {
			return nil, err
		}
	}
	return &service.AskResult{Answer: s.answer}, nil
}

type stubSessions struct {
	deleted []string
}

func (s *stubSessions) Delete(ctx context.Context, sessionID string) error {
	s.deleted = append(s.deleted, sessionID)
	return nil
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type fixture struct {
	engine   *gin.Engine
	ingest   *stubIngester
	docs     *stubDocuments
	chat     *stubChat
	sessions *stubSessions
}

func newFixture(maxFileSize int64) *fixture {
	gin.SetMode(gin.TestMode)
	f := &fixture{
		ingest:   &stubIngester{},
		docs:     &stubDocuments{},
		sessions: &stubSessions{},
		chat: &stubChat{answer: &model.AnswerResult{
			Text:       "Revenue grew.",
			Sources:    []model.EvidenceItem{{ChunkID: "c1", DocumentID: "doc-1", Filename: "report.txt", Score: 0.9}},
			Confidence: 0.9,
			Outcome:    model.OutcomeAnswered,
		}},
	}
	f.engine = gin.New()
	api := f.engine.Group("/api/v1")
	api.Use(middleware.RequestID())
	RegisterRoutes(api, RouterDeps{
		Documents:     NewDocumentHandler(f.ingest, f.docs, maxFileSize),
		Conversations: NewConversationHandler(f.chat),
		Sessions:      NewSessionHandler(f.sessions),
	})
	return f
}

func (f *fixture) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	if req.Header.Get(middleware.SessionHeader) == "" {
		req.Header.Set(middleware.SessionHeader, testSession)
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func multipartRequest(t *testing.T, filename, content string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadDocument(t *testing.T) {
	f := newFixture(1024)
	env := decode(t, f.do(t, multipartRequest(t, "report.txt", "revenue 2023")))
	var doc model.Document
	require.NoError(t, json.Unmarshal(env.Data, &doc))
	require.Equal(t, "doc-1", doc.ID)
	require.Equal(t, model.DocumentStatusProcessing, doc.Status)
	require.Equal(t, []string{testSession + "/report.txt:revenue 2023"}, f.ingest.uploaded)
}

func TestUploadDocumentTooLarge(t *testing.T) {
	f := newFixture(4)
	env := decode(t, f.do(t, multipartRequest(t, "report.txt", "far too long")))
	require.Equal(t, errcode.ErrFileTooLarge, env.Code)
	require.Empty(t, f.ingest.uploaded)
}

func TestUploadDocumentErrors(t *testing.T) {
	f := newFixture(1024)
	f.ingest.err = fmt.Errorf("%w \"exe\": %w", extract.ErrUnsupported, appErr.ErrInvalid)
	env := decode(t, f.do(t, multipartRequest(t, "tool.exe", "MZ")))
	require.Equal(t, errcode.ErrUnsupportedFile, env.Code)

	f.ingest.err = service.ErrEmptyFile
	env = decode(t, f.do(t, multipartRequest(t, "empty.txt", "x")))
	require.Equal(t, errcode.ErrInvalidFile, env.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", nil)
	env = decode(t, f.do(t, req))
	require.Equal(t, errcode.ErrInvalidFile, env.Code)
}

func TestDocumentRoutesRequireSession(t *testing.T) {
	f := newFixture(1024)
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/documents", nil))
	env := decode(t, w)
	require.Equal(t, errcode.ErrSessionRequired, env.Code)
}

func TestDocumentGetDeleteReingest(t *testing.T) {
	f := newFixture(1024)
	env := decode(t, f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/documents/missing", nil)))
	require.Equal(t, errcode.ErrNotFound, env.Code)

	decode(t, f.do(t, httptest.NewRequest(http.MethodDelete, "/api/v1/documents/doc-1", nil)))
	require.Equal(t, []string{testSession + "/doc-1"}, f.docs.deleted)

	env = decode(t, f.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/documents/doc-1/reingest", nil)))
	require.Equal(t, errcode.ErrInvalid, env.Code)
}

func TestAsk(t *testing.T) {
	f := newFixture(1024)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/conversations/conv-1/ask", strings.NewReader(`{"question":"How did revenue change?"}`))
	req.Header.Set("Content-Type", "application/json")
	env := decode(t, f.do(t, req))
	var data map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Equal(t, "Revenue grew.", data["message"])
	require.Equal(t, "answered", data["outcome"])
	require.Equal(t, 0.9, data["confidence"])
	require.Equal(t, "msg-2", data["message_id"])
	require.Len(t, data["sources"], 1)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/conversations/conv-1/ask", strings.NewReader(`{"question":"  "}`))
	req.Header.Set("Content-Type", "application/json")
	env = decode(t, f.do(t, req))
	require.Equal(t, errcode.ErrInvalid, env.Code)
}

func TestAskStreamEventOrder(t *testing.T) {
	f := newFixture(1024)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/conversations/conv-1/ask/stream", strings.NewReader(`{"question":"How did revenue change?"}`))
	req.Header.Set("Content-Type", "application/json")
	w := f.do(t, req)
	require.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	body := w.Body.String()
	iSources := strings.Index(body, "event: sources")
	iToken := strings.Index(body, "event: token")
	iDone := strings.Index(body, "event: done")
	require.True(t, iSources >= 0 && iToken > iSources && iDone > iToken, body)
	require.Equal(t, 2, strings.Count(body, "event: token"))
	require.Contains(t, body, `"outcome":"answered"`)
}

func TestAskStreamErrorBeforeFirstEvent(t *testing.T) {
	f := newFixture(1024)
	f.chat.streamErr = appErr.ErrNotFound
	req := httptest.NewRequest(http.MethodPost, "/api/v1/conversations/missing/ask/stream", strings.NewReader(`{"question":"q"}`))
	req.Header.Set("Content-Type", "application/json")
	env := decode(t, f.do(t, req))
	require.Equal(t, errcode.ErrNotFound, env.Code)
}

func TestConversationAndSessionRoutes(t *testing.T) {
	f := newFixture(1024)
	env := decode(t, f.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/conversations", nil)))
	var conv model.Conversation
	require.NoError(t, json.Unmarshal(env.Data, &conv))
	require.Equal(t, model.DefaultConversationTitle, conv.Title)
	require.Equal(t, testSession, conv.SessionID)

	env = decode(t, f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)))
	var stats model.QueryStats
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	require.EqualValues(t, 3, stats.TotalQueries)

	decode(t, f.do(t, httptest.NewRequest(http.MethodDelete, "/api/v1/session", nil)))
	require.Equal(t, []string{testSession}, f.sessions.deleted)
}

func TestFormatUploadLimit(t *testing.T) {
	require.Equal(t, "0B", formatUploadLimit(0))
	require.Equal(t, "100B", formatUploadLimit(100))
	require.Equal(t, "2KB", formatUploadLimit(2048))
	require.Equal(t, "20MB", formatUploadLimit(20*1024*1024))
}
