package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/docqa/internal/model"
	"github.com/xxxsen/docqa/internal/pkg/dbutil"
)

var messageFields = []string{
	"id", "seq", "conversation_id", "role", "content", "sources", "confidence", "chart", "outcome", "response_time_ms", "ctime",
}

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

func nullableJSON(v interface{}, empty bool) (interface{}, error) {
	if empty {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Create inserts msg and fills in the server assigned sequence number.
func (r *MessageRepo) Create(ctx context.Context, msg *model.Message) error {
	sources, err := nullableJSON(msg.Sources, msg.Sources == nil)
	if err != nil {
		return err
	}
	chart, err := nullableJSON(msg.Chart, msg.Chart == nil)
	if err != nil {
		return err
	}
	var confidence interface{}
	if msg.Confidence != nil {
		confidence = *msg.Confidence
	}
	data := map[string]interface{}{
		"id":               msg.ID,
		"conversation_id":  msg.ConversationID,
		"role":             string(msg.Role),
		"content":          msg.Content,
		"sources":          sources,
		"confidence":       confidence,
		"chart":            chart,
		"outcome":          string(msg.Outcome),
		"response_time_ms": msg.ResponseTimeMs,
		"ctime":            msg.Ctime,
	}
	sqlStr, args, err := builder.BuildInsert("messages", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr+" RETURNING seq", args)
	return r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&msg.Seq)
}

func (r *MessageRepo) ListByConversation(ctx context.Context, convID string) ([]*model.Message, error) {
	return r.list(ctx, map[string]interface{}{
		"conversation_id": convID,
		"_orderby":        "seq asc",
	})
}

// ListRecent returns the last limit messages in ascending order.
func (r *MessageRepo) ListRecent(ctx context.Context, convID string, limit uint) ([]*model.Message, error) {
	items, err := r.list(ctx, map[string]interface{}{
		"conversation_id": convID,
		"_orderby":        "seq desc",
		"_limit":          []uint{0, limit},
	})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	return items, nil
}

func (r *MessageRepo) list(ctx context.Context, where map[string]interface{}) ([]*model.Message, error) {
	sqlStr, args, err := builder.BuildSelect("messages", where, messageFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*model.Message, 0)
	for rows.Next() {
		var (
			m          model.Message
			role       string
			outcome    string
			sources    []byte
			chart      []byte
			confidence sql.NullFloat64
		)
		if err := rows.Scan(&m.ID, &m.Seq, &m.ConversationID, &role, &m.Content, &sources, &confidence, &chart, &outcome, &m.ResponseTimeMs, &m.Ctime); err != nil {
			return nil, err
		}
		m.Role = model.MessageRole(role)
		m.Outcome = model.AnswerOutcome(outcome)
		if confidence.Valid {
			v := confidence.Float64
			m.Confidence = &v
		}
		if len(sources) > 0 {
			if err := json.Unmarshal(sources, &m.Sources); err != nil {
				return nil, err
			}
		}
		if len(chart) > 0 {
			m.Chart = &model.ChartData{}
			if err := json.Unmarshal(chart, m.Chart); err != nil {
				return nil, err
			}
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (r *MessageRepo) DeleteBySession(ctx context.Context, sessionID string) error {
	sqlStr, args := dbutil.Finalize("DELETE FROM messages WHERE conversation_id IN (SELECT id FROM conversations WHERE session_id=?)", []interface{}{sessionID})
	_, err := r.db.ExecContext(ctx, sqlStr, args...)
	return err
}
