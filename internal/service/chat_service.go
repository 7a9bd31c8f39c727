package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docqa/internal/model"
	appErr "github.com/xxxsen/docqa/internal/pkg/errors"
	"github.com/xxxsen/docqa/internal/rag"
)

const (
	titleMaxRunes  = 50
	statsRecentLen = 10
)

type ChatConfig struct {
	HistoryMessages  int
	MaxQuestionChars int
}

type ChatService struct {
	conversations ConversationStore
	messages      MessageStore
	queryLogs     QueryLogStore
	retriever     EvidenceRetriever
	synthesizer   AnswerSynthesizer
	cfg           ChatConfig
}

type AskResult struct {
	Question *model.Message     `json:"question"`
	Reply    *model.Message     `json:"reply"`
	Answer   *model.AnswerResult `json:"answer"`
}

func NewChatService(conversations ConversationStore, messages MessageStore, queryLogs QueryLogStore,
	retriever EvidenceRetriever, synthesizer AnswerSynthesizer, cfg ChatConfig) *ChatService {
	if cfg.HistoryMessages <= 0 {
		cfg.HistoryMessages = rag.DefaultHistoryMessages
	}
	if cfg.MaxQuestionChars <= 0 {
		cfg.MaxQuestionChars = 4000
	}
	return &ChatService{
		conversations: conversations,
		messages:      messages,
		queryLogs:     queryLogs,
		retriever:     retriever,
		synthesizer:   synthesizer,
		cfg:           cfg,
	}
}

func (s *ChatService) CreateConversation(ctx context.Context, sessionID, title string) (*model.Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = model.DefaultConversationTitle
	}
	now := time.Now().Unix()
	conv := &model.Conversation{
		ID:        newID(),
		SessionID: sessionID,
		Title:     title,
		Ctime:     now,
		Mtime:     now,
	}
	if err := s.conversations.Create(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

func (s *ChatService) ListConversations(ctx context.Context, sessionID string) ([]*model.Conversation, error) {
	return s.conversations.List(ctx, sessionID)
}

func (s *ChatService) DeleteConversation(ctx context.Context, sessionID, convID string) error {
	return s.conversations.Delete(ctx, sessionID, convID)
}

func (s *ChatService) Messages(ctx context.Context, sessionID, convID string) ([]*model.Message, error) {
	if _, err := s.conversations.GetByID(ctx, sessionID, convID); err != nil {
		return nil, err
	}
	return s.messages.ListByConversation(ctx, convID)
}

func (s *ChatService) Stats(ctx context.Context, sessionID string) (*model.QueryStats, error) {
	return s.queryLogs.Stats(ctx, sessionID, statsRecentLen)
}

// turn is the shared preamble of Ask and AskStream: the question is validated
// and stored, and the history preceding it is loaded.
type turn struct {
	conv     *model.Conversation
	question *model.Message
	history  []model.Message
	started  time.Time
}

func (s *ChatService) beginTurn(ctx context.Context, sessionID, convID, question string) (*turn, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("question is required: %w", appErr.ErrInvalid)
	}
	if utf8.RuneCountInString(question) > s.cfg.MaxQuestionChars {
		return nil, fmt.Errorf("question exceeds %d characters: %w", s.cfg.MaxQuestionChars, appErr.ErrInvalid)
	}
	conv, err := s.conversations.GetByID(ctx, sessionID, convID)
	if err != nil {
		return nil, err
	}
	recent, err := s.messages.ListRecent(ctx, convID, uint(s.cfg.HistoryMessages))
	if err != nil {
		return nil, err
	}
	history := make([]model.Message, 0, len(recent))
	for _, m := range recent {
		history = append(history, *m)
	}
	msg := &model.Message{
		ID:             newID(),
		ConversationID: convID,
		Role:           model.RoleUser,
		Content:        question,
		Ctime:          time.Now().Unix(),
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, err
	}
	conv.Mtime = msg.Ctime
	if conv.Title == model.DefaultConversationTitle {
		conv.Title = TitleFromQuestion(question)
	}
	if err := s.conversations.Update(ctx, conv); err != nil {
		logutil.GetLogger(ctx).Warn("update conversation failed", zap.String("conversation_id", convID), zap.Error(err))
	}
	return &turn{conv: conv, question: msg, history: history, started: time.Now()}, nil
}

// TitleFromQuestion names a conversation after its first question.
func TitleFromQuestion(q string) string {
	q = strings.Join(strings.Fields(q), " ")
	if utf8.RuneCountInString(q) <= titleMaxRunes {
		return q
	}
	return string([]rune(q)[:titleMaxRunes]) + "..."
}

// retrieve maps retrieval failures onto a user facing answer. A nil answer
// means evidence is ready for synthesis.
func (s *ChatService) retrieve(ctx context.Context, sessionID, question string) ([]model.EvidenceItem, *model.AnswerResult, error) {
	evidence, err := s.retriever.Retrieve(ctx, question, sessionID, s.retriever.DefaultOptions())
	if err == nil {
		return evidence, nil, nil
	}
	if ctx.Err() != nil {
		return nil, nil, ctx.Err()
	}
	logger := logutil.GetLogger(ctx).With(zap.String("session_id", sessionID))
	if appErr.IsIndexInconsistency(err) {
		logger.Error("retrieval hit an index inconsistency", zap.Error(err))
		return nil, rag.IndexErrorResult(), nil
	}
	if appErr.IsInvalid(err) {
		return nil, nil, err
	}
	logger.Error("retrieval failed", zap.Error(err))
	return nil, rag.DegradedResult(nil), nil
}

func (s *ChatService) finishTurn(ctx context.Context, sessionID string, t *turn, answer *model.AnswerResult) (*AskResult, error) {
	ctx = context.WithoutCancel(ctx)
	elapsed := time.Since(t.started).Milliseconds()
	reply := &model.Message{
		ID:             newID(),
		ConversationID: t.conv.ID,
		Role:           model.RoleAssistant,
		Content:        answer.Text,
		Sources:        answer.Sources,
		Chart:          answer.Chart,
		Outcome:        answer.Outcome,
		ResponseTimeMs: elapsed,
		Ctime:          time.Now().Unix(),
	}
	confidence := answer.Confidence
	reply.Confidence = &confidence
	if err := s.messages.Create(ctx, reply); err != nil {
		return nil, err
	}
	logItem := &model.QueryLog{
		SessionID:      sessionID,
		Query:          t.question.Content,
		ResponseTimeMs: elapsed,
		ResultFound:    answer.Outcome == model.OutcomeAnswered,
		Confidence:     answer.Confidence,
		Outcome:        answer.Outcome,
		Ctime:          reply.Ctime,
	}
	if err := s.queryLogs.Create(ctx, logItem); err != nil {
		logutil.GetLogger(ctx).Warn("record query log failed", zap.Error(err))
	}
	logutil.GetLogger(ctx).Info("question answered",
		zap.String("conversation_id", t.conv.ID),
		zap.String("outcome", string(answer.Outcome)),
		zap.Int("sources", len(answer.Sources)),
		zap.Float64("confidence", answer.Confidence),
		zap.Int64("cost_ms", elapsed))
	return &AskResult{Question: t.question, Reply: reply, Answer: answer}, nil
}

// Ask answers question within the conversation and records both messages.
func (s *ChatService) Ask(ctx context.Context, sessionID, convID, question string) (*AskResult, error) {
	t, err := s.beginTurn(ctx, sessionID, convID, question)
	if err != nil {
		return nil, err
	}
	evidence, answer, err := s.retrieve(ctx, sessionID, t.question.Content)
	if err != nil {
		return nil, err
	}
	if answer == nil {
		answer, err = s.synthesizer.Synthesize(ctx, t.question.Content, evidence, t.history)
		if err != nil {
			return nil, err
		}
	}
	return s.finishTurn(ctx, sessionID, t, answer)
}

// AskStream is Ask with incremental delivery. The reply is stored before the
// done event is forwarded.
func (s *ChatService) AskStream(ctx context.Context, sessionID, convID, question string, emit rag.EmitFunc) (*AskResult, error) {
	t, err := s.beginTurn(ctx, sessionID, convID, question)
	if err != nil {
		return nil, err
	}
	evidence, answer, err := s.retrieve(ctx, sessionID, t.question.Content)
	if err != nil {
		return nil, err
	}
	var result *AskResult
	relay := func(ev rag.StreamEvent) error {
		if ev.Type != rag.EventDone {
			return emit(ev)
		}
		res, err := s.finishTurn(ctx, sessionID, t, ev.Result)
		if err != nil {
			return err
		}
		result = res
		return emit(ev)
	}
	if answer != nil {
		if err := relay(rag.StreamEvent{Type: rag.EventSources, Sources: answer.Sources}); err != nil {
			return nil, err
		}
		if err := relay(rag.StreamEvent{Type: rag.EventToken, Token: answer.Text}); err != nil {
			return nil, err
		}
		if err := relay(rag.StreamEvent{Type: rag.EventDone, Result: answer}); err != nil {
			return nil, err
		}
		return result, nil
	}
	if _, err := s.synthesizer.SynthesizeStream(ctx, t.question.Content, evidence, t.history, relay); err != nil {
		return result, err
	}
	return result, nil
}
