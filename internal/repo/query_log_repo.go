package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/docqa/internal/model"
	"github.com/xxxsen/docqa/internal/pkg/dbutil"
)

type QueryLogRepo struct {
	db *sql.DB
}

func NewQueryLogRepo(db *sql.DB) *QueryLogRepo {
	return &QueryLogRepo{db: db}
}

func (r *QueryLogRepo) Create(ctx context.Context, item *model.QueryLog) error {
	data := map[string]interface{}{
		"session_id":       item.SessionID,
		"query":            item.Query,
		"response_time_ms": item.ResponseTimeMs,
		"result_found":     item.ResultFound,
		"confidence":       item.Confidence,
		"outcome":          string(item.Outcome),
		"ctime":            item.Ctime,
	}
	sqlStr, args, err := builder.BuildInsert("query_logs", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr+" RETURNING id", args)
	return r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&item.ID)
}

// Stats aggregates the query log of one session. Averages are taken over the
// queries that found a result.
func (r *QueryLogRepo) Stats(ctx context.Context, sessionID string, recent uint) (*model.QueryStats, error) {
	sqlStr, args := dbutil.Finalize(`
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE result_found),
			COALESCE(AVG(response_time_ms), 0),
			COALESCE(AVG(confidence) FILTER (WHERE result_found), 0)
		FROM query_logs
		WHERE session_id=?`, []interface{}{sessionID})
	stats := &model.QueryStats{}
	if err := r.db.QueryRowContext(ctx, sqlStr, args...).Scan(
		&stats.TotalQueries, &stats.SuccessfulQueries, &stats.AvgResponseTimeMs, &stats.AvgConfidence,
	); err != nil {
		return nil, err
	}
	if stats.TotalQueries > 0 {
		stats.SuccessRate = float64(stats.SuccessfulQueries) / float64(stats.TotalQueries)
	}
	where := map[string]interface{}{
		"session_id": sessionID,
		"_orderby":   "ctime desc, id desc",
		"_limit":     []uint{0, recent},
	}
	selStr, selArgs, err := builder.BuildSelect("query_logs", where, []string{"id", "session_id", "query", "response_time_ms", "result_found", "confidence", "outcome", "ctime"})
	if err != nil {
		return nil, err
	}
	selStr, selArgs = dbutil.Finalize(selStr, selArgs)
	rows, err := r.db.QueryContext(ctx, selStr, selArgs...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	stats.Recent = make([]model.QueryLog, 0)
	for rows.Next() {
		var (
			item    model.QueryLog
			outcome string
		)
		if err := rows.Scan(&item.ID, &item.SessionID, &item.Query, &item.ResponseTimeMs, &item.ResultFound, &item.Confidence, &outcome, &item.Ctime); err != nil {
			return nil, err
		}
		item.Outcome = model.AnswerOutcome(outcome)
		stats.Recent = append(stats.Recent, item)
	}
	return stats, rows.Err()
}

func (r *QueryLogRepo) DeleteBySession(ctx context.Context, sessionID string) error {
	sqlStr, args := dbutil.Finalize("DELETE FROM query_logs WHERE session_id=?", []interface{}{sessionID})
	_, err := r.db.ExecContext(ctx, sqlStr, args...)
	return err
}
