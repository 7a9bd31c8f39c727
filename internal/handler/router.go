package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/docqa/internal/middleware"
)

const StreamPath = "/conversations/:id/ask/stream"

type RouterDeps struct {
	Documents     *DocumentHandler
	Conversations *ConversationHandler
	Sessions      *SessionHandler
	Toucher       middleware.SessionToucher
	AskRateLimit  time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	group := api.Group("")
	group.Use(middleware.Session(deps.Toucher))

	group.POST("/documents", deps.Documents.Upload)
	group.GET("/documents", deps.Documents.List)
	group.GET("/documents/:id", deps.Documents.Get)
	group.DELETE("/documents/:id", deps.Documents.Delete)
	group.POST("/documents/:id/reingest", deps.Documents.Reingest)

	group.POST("/conversations", deps.Conversations.Create)
	group.GET("/conversations", deps.Conversations.List)
	group.GET("/conversations/:id/messages", deps.Conversations.Messages)
	group.DELETE("/conversations/:id", deps.Conversations.Delete)

	limited := group.Group("")
	limited.Use(middleware.RateLimit(deps.AskRateLimit))
	limited.POST("/conversations/:id/ask", deps.Conversations.Ask)
	limited.POST(StreamPath, deps.Conversations.AskStream)

	group.GET("/stats", deps.Conversations.Stats)
	group.DELETE("/session", deps.Sessions.Delete)
}
