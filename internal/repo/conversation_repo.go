package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/docqa/internal/model"
	"github.com/xxxsen/docqa/internal/pkg/dbutil"
	appErr "github.com/xxxsen/docqa/internal/pkg/errors"
)

type ConversationRepo struct {
	db *sql.DB
}

func NewConversationRepo(db *sql.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

func (r *ConversationRepo) Create(ctx context.Context, conv *model.Conversation) error {
	data := map[string]interface{}{
		"id":         conv.ID,
		"session_id": conv.SessionID,
		"title":      conv.Title,
		"ctime":      conv.Ctime,
		"mtime":      conv.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("conversations", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *ConversationRepo) Update(ctx context.Context, conv *model.Conversation) error {
	where := map[string]interface{}{
		"id":         conv.ID,
		"session_id": conv.SessionID,
	}
	update := map[string]interface{}{
		"title": conv.Title,
		"mtime": conv.Mtime,
	}
	sqlStr, args, err := builder.BuildUpdate("conversations", where, update)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	result, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

func (r *ConversationRepo) GetByID(ctx context.Context, sessionID, convID string) (*model.Conversation, error) {
	items, err := r.list(ctx, map[string]interface{}{
		"id":         convID,
		"session_id": sessionID,
	})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, appErr.ErrNotFound
	}
	return items[0], nil
}

func (r *ConversationRepo) List(ctx context.Context, sessionID string) ([]*model.Conversation, error) {
	return r.list(ctx, map[string]interface{}{
		"session_id": sessionID,
		"_orderby":   "mtime desc",
	})
}

func (r *ConversationRepo) list(ctx context.Context, where map[string]interface{}) ([]*model.Conversation, error) {
	sqlStr, args, err := builder.BuildSelect("conversations", where, []string{"id", "session_id", "title", "ctime", "mtime"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*model.Conversation, 0)
	for rows.Next() {
		var c model.Conversation
		if err := rows.Scan(&c.ID, &c.SessionID, &c.Title, &c.Ctime, &c.Mtime); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (r *ConversationRepo) Delete(ctx context.Context, sessionID, convID string) error {
	sqlStr, args := dbutil.Finalize("DELETE FROM conversations WHERE id=? AND session_id=?", []interface{}{convID, sessionID})
	result, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

func (r *ConversationRepo) DeleteBySession(ctx context.Context, sessionID string) error {
	sqlStr, args := dbutil.Finalize("DELETE FROM conversations WHERE session_id=?", []interface{}{sessionID})
	_, err := r.db.ExecContext(ctx, sqlStr, args...)
	return err
}
