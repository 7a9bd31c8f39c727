package job

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type staleReaper interface {
	ReapStale(ctx context.Context) (int, error)
}

type StaleIngestJob struct {
	ingest staleReaper
}

func NewStaleIngestJob(ingest staleReaper) *StaleIngestJob {
	return &StaleIngestJob{ingest: ingest}
}

func (j *StaleIngestJob) Name() string {
	return "stale_ingest"
}

func (j *StaleIngestJob) Run(ctx context.Context) error {
	n, err := j.ingest.ReapStale(ctx)
	if n > 0 {
		logutil.GetLogger(ctx).Warn("stuck documents marked failed", zap.Int("count", n))
	}
	return err
}
