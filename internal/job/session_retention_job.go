package job

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type inactiveSessionCleaner interface {
	CleanupInactive(ctx context.Context, maxAge time.Duration) (int, error)
}

// SessionRetentionJob deletes sessions, with all their documents and
// conversations, that have been idle longer than the retention period.
type SessionRetentionJob struct {
	sessions inactiveSessionCleaner
	maxAge   time.Duration
}

func NewSessionRetentionJob(sessions inactiveSessionCleaner, retentionDays int) *SessionRetentionJob {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	return &SessionRetentionJob{sessions: sessions, maxAge: time.Duration(retentionDays) * 24 * time.Hour}
}

func (j *SessionRetentionJob) Name() string {
	return "session_retention"
}

func (j *SessionRetentionJob) Run(ctx context.Context) error {
	n, err := j.sessions.CleanupInactive(ctx, j.maxAge)
	if n > 0 {
		logutil.GetLogger(ctx).Info("inactive sessions removed", zap.Int("count", n))
	}
	return err
}
