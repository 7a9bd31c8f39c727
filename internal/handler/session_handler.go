package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/docqa/internal/pkg/response"
)

type sessionDeleter interface {
	Delete(ctx context.Context, sessionID string) error
}

type SessionHandler struct {
	sessions sessionDeleter
}

func NewSessionHandler(sessions sessionDeleter) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// Delete removes every document, vector, conversation and log of the session.
func (h *SessionHandler) Delete(c *gin.Context) {
	if err := h.sessions.Delete(c.Request.Context(), getSessionID(c)); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"deleted": true})
}
