package rag

import (
	"context"
	"errors"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docqa/internal/ai"
	"github.com/xxxsen/docqa/internal/model"
)

const (
	NoEvidenceMessage = "I couldn't find relevant information in your documents to answer this question. Try rephrasing it or upload a document that covers the topic."
	DegradedMessage   = "The answer service is temporarily unavailable. Please try again in a moment."
	IndexErrorMessage = "I can't answer right now because the document index is unavailable. Please try again later."
)

// Completer is the completion surface the synthesizer needs; *ai.Manager
// implements it.
type Completer interface {
	Complete(ctx context.Context, req *ai.CompletionRequest) (string, error)
	CompleteStream(ctx context.Context, req *ai.CompletionRequest, fn ai.DeltaFunc) error
}

type EventType string

const (
	EventSources EventType = "sources"
	EventToken   EventType = "token"
	EventDone    EventType = "done"
	EventError   EventType = "error"
)

type StreamEvent struct {
	Type       EventType
	Sources    []model.EvidenceItem
	Confidence float64
	Token      string
	Result     *model.AnswerResult
	Message    string
}

// EmitFunc receives stream events in order. Returning an error stops the
// stream.
type EmitFunc func(ev StreamEvent) error

type SynthesizerConfig struct {
	HistoryMessages int
}

type Synthesizer struct {
	completer Completer
	cfg       SynthesizerConfig
}

func NewSynthesizer(completer Completer, cfg SynthesizerConfig) *Synthesizer {
	if cfg.HistoryMessages <= 0 {
		cfg.HistoryMessages = DefaultHistoryMessages
	}
	return &Synthesizer{completer: completer, cfg: cfg}
}

func NoEvidenceResult() *model.AnswerResult {
	return &model.AnswerResult{
		Text:    NoEvidenceMessage,
		Sources: []model.EvidenceItem{},
		Outcome: model.OutcomeNoEvidence,
	}
}

func IndexErrorResult() *model.AnswerResult {
	return &model.AnswerResult{
		Text:    IndexErrorMessage,
		Sources: []model.EvidenceItem{},
		Outcome: model.OutcomeIndexError,
	}
}

// DegradedResult is returned when a dependency failed after retries.
func DegradedResult(evidence []model.EvidenceItem) *model.AnswerResult {
	if evidence == nil {
		evidence = []model.EvidenceItem{}
	}
	return degradedResult(evidence, "")
}

func degradedResult(evidence []model.EvidenceItem, partial string) *model.AnswerResult {
	text := DegradedMessage
	if p := strings.TrimSpace(partial); p != "" {
		text = p + "\n\n" + DegradedMessage
	}
	return &model.AnswerResult{
		Text:       text,
		Sources:    evidence,
		Confidence: Confidence(evidence),
		Outcome:    model.OutcomeDegraded,
	}
}

func isCanceled(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled)
}

// Synthesize answers the query from the evidence. Empty evidence short
// circuits to a no-evidence answer without a model call. A failed completion
// yields a degraded answer; only caller cancellation is returned as an error.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, evidence []model.EvidenceItem, history []model.Message) (*model.AnswerResult, error) {
	if len(evidence) == 0 {
		return NoEvidenceResult(), nil
	}
	logger := logutil.GetLogger(ctx)
	req := BuildPrompt(query, evidence, history, s.cfg.HistoryMessages)
	text, err := s.completer.Complete(ctx, req)
	if err != nil {
		if isCanceled(ctx, err) {
			return nil, err
		}
		logger.Error("completion failed, returning degraded answer", zap.Error(err))
		return degradedResult(evidence, ""), nil
	}
	return s.finish(text, evidence), nil
}

func (s *Synthesizer) finish(text string, evidence []model.EvidenceItem) *model.AnswerResult {
	body, chart := ExtractChart(text)
	return &model.AnswerResult{
		Text:       strings.TrimSpace(body),
		Sources:    evidence,
		Confidence: Confidence(evidence),
		Chart:      chart,
		Outcome:    model.OutcomeAnswered,
	}
}

// SynthesizeStream emits a sources event, then token events, then a done
// event carrying the final result. The returned result equals the one in the
// done event.
func (s *Synthesizer) SynthesizeStream(ctx context.Context, query string, evidence []model.EvidenceItem, history []model.Message, emit EmitFunc) (*model.AnswerResult, error) {
	confidence := Confidence(evidence)
	if evidence == nil {
		evidence = []model.EvidenceItem{}
	}
	if err := emit(StreamEvent{Type: EventSources, Sources: evidence, Confidence: confidence}); err != nil {
		return nil, err
	}
	if len(evidence) == 0 {
		res := NoEvidenceResult()
		if err := emit(StreamEvent{Type: EventToken, Token: res.Text}); err != nil {
			return nil, err
		}
		return res, emit(StreamEvent{Type: EventDone, Result: res})
	}

	req := BuildPrompt(query, evidence, history, s.cfg.HistoryMessages)
	var sb strings.Builder
	var emitErr error
	err := s.completer.CompleteStream(ctx, req, func(delta string) error {
		if delta == "" {
			return nil
		}
		sb.WriteString(delta)
		if err := emit(StreamEvent{Type: EventToken, Token: delta}); err != nil {
			emitErr = err
			return err
		}
		return nil
	})
	if emitErr != nil {
		return nil, emitErr
	}
	if err != nil {
		if isCanceled(ctx, err) {
			return nil, err
		}
		logutil.GetLogger(ctx).Error("streaming completion failed, returning degraded answer",
			zap.Bool("started", sb.Len() > 0), zap.Error(err))
		res := degradedResult(evidence, sb.String())
		if err := emit(StreamEvent{Type: EventError, Message: DegradedMessage}); err != nil {
			return nil, err
		}
		return res, emit(StreamEvent{Type: EventDone, Result: res})
	}
	res := s.finish(sb.String(), evidence)
	return res, emit(StreamEvent{Type: EventDone, Result: res})
}
