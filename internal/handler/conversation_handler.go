package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docqa/internal/model"
	"github.com/xxxsen/docqa/internal/pkg/errcode"
	"github.com/xxxsen/docqa/internal/pkg/response"
	"github.com/xxxsen/docqa/internal/rag"
	"github.com/xxxsen/docqa/internal/service"
)

type chatter interface {
	CreateConversation(ctx context.Context, sessionID, title string) (*model.Conversation, error)
	ListConversations(ctx context.Context, sessionID string) ([]*model.Conversation, error)
	DeleteConversation(ctx context.Context, sessionID, convID string) error
	Messages(ctx context.Context, sessionID, convID string) ([]*model.Message, error)
	Stats(ctx context.Context, sessionID string) (*model.QueryStats, error)
	Ask(ctx context.Context, sessionID, convID, question string) (*service.AskResult, error)
	AskStream(ctx context.Context, sessionID, convID, question string, emit rag.EmitFunc) (*service.AskResult, error)
}

type ConversationHandler struct {
	chat chatter
}

func NewConversationHandler(chat chatter) *ConversationHandler {
	return &ConversationHandler{chat: chat}
}

type createConversationRequest struct {
	Title string `json:"title"`
}

type askRequest struct {
	Question string `json:"question"`
}

type askResponse struct {
	*model.AnswerResult
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
}

func (h *ConversationHandler) Create(c *gin.Context) {
	var req createConversationRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, errcode.ErrInvalid, "invalid request")
			return
		}
	}
	conv, err := h.chat.CreateConversation(c.Request.Context(), getSessionID(c), req.Title)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, conv)
}

func (h *ConversationHandler) List(c *gin.Context) {
	convs, err := h.chat.ListConversations(c.Request.Context(), getSessionID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, convs)
}

func (h *ConversationHandler) Delete(c *gin.Context) {
	if err := h.chat.DeleteConversation(c.Request.Context(), getSessionID(c), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"deleted": true})
}

func (h *ConversationHandler) Messages(c *gin.Context) {
	msgs, err := h.chat.Messages(c.Request.Context(), getSessionID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, msgs)
}

func (h *ConversationHandler) Stats(c *gin.Context) {
	stats, err := h.chat.Stats(c.Request.Context(), getSessionID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, stats)
}

func (h *ConversationHandler) Ask(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	res, err := h.chat.Ask(c.Request.Context(), getSessionID(c), c.Param("id"), req.Question)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, toAskResponse(c.Param("id"), res))
}

func toAskResponse(convID string, res *service.AskResult) askResponse {
	out := askResponse{AnswerResult: res.Answer, ConversationID: convID}
	if res.Reply != nil {
		out.MessageID = res.Reply.ID
	}
	return out
}

// AskStream answers over server-sent events. Failures before the first event
// use the regular error envelope; later ones are reported as an error event.
func (h *ConversationHandler) AskStream(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	ctx := c.Request.Context()
	started := false
	emit := func(ev rag.StreamEvent) error {
		if !started {
			response.StartStream(c)
			started = true
		}
		switch ev.Type {
		case rag.EventSources:
			return response.Event(c, string(ev.Type), gin.H{"sources": ev.Sources, "confidence": ev.Confidence})
		case rag.EventToken:
			return response.Event(c, string(ev.Type), gin.H{"text": ev.Token})
		case rag.EventError:
			return response.Event(c, string(ev.Type), gin.H{"message": ev.Message})
		default:
			return response.Event(c, string(ev.Type), ev.Result)
		}
	}
	_, err := h.chat.AskStream(ctx, getSessionID(c), c.Param("id"), req.Question, emit)
	if err == nil {
		return
	}
	if !started {
		handleError(c, err)
		return
	}
	logutil.GetLogger(ctx).Warn("answer stream aborted", zap.String("conversation_id", c.Param("id")), zap.Error(err))
	_ = response.Event(c, string(rag.EventError), gin.H{"message": "stream aborted"})
}
