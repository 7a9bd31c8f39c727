package middleware

import (
	"context"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docqa/internal/pkg/errcode"
	"github.com/xxxsen/docqa/internal/pkg/response"
)

const (
	ContextSessionIDKey = "session_id"
	SessionHeader       = "X-Session-Id"
	sessionQueryKey     = "session_id"
)

var sessionPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{8,128}$`)

type SessionToucher interface {
	Touch(ctx context.Context, sessionID, userAgent, ip string) error
}

// Session requires a client supplied session id and records activity for it.
// Every resource is scoped to that id.
func Session(toucher SessionToucher) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := strings.TrimSpace(c.GetHeader(SessionHeader))
		if sessionID == "" {
			sessionID = strings.TrimSpace(c.Query(sessionQueryKey))
		}
		if !sessionPattern.MatchString(sessionID) {
			response.Error(c, errcode.ErrSessionRequired, "valid session id required")
			c.Abort()
			return
		}
		c.Set(ContextSessionIDKey, sessionID)
		if toucher != nil {
			if err := toucher.Touch(c.Request.Context(), sessionID, c.Request.UserAgent(), c.ClientIP()); err != nil {
				logutil.GetLogger(c.Request.Context()).Warn("touch session failed",
					zap.String("session_id", sessionID), zap.Error(err))
			}
		}
		c.Next()
	}
}

func GetSessionID(c *gin.Context) string {
	value, _ := c.Get(ContextSessionIDKey)
	id, _ := value.(string)
	return id
}
