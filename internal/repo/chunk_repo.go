package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/docqa/internal/model"
	"github.com/xxxsen/docqa/internal/pkg/dbutil"
)

const chunkInsertBatch = 200

type ChunkRepo struct {
	db *sql.DB
}

func NewChunkRepo(db *sql.DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

// ReplaceForDocument swaps every chunk row of the document in one transaction,
// so readers see either the old ordinals or the complete new set.
func (r *ChunkRepo) ReplaceForDocument(ctx context.Context, docID string, chunks []*model.Chunk) error {
	return dbutil.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		sqlDelete, deleteArgs := dbutil.Finalize("DELETE FROM chunks WHERE document_id=?", []interface{}{docID})
		if _, err := tx.ExecContext(ctx, sqlDelete, deleteArgs...); err != nil {
			return err
		}
		for start := 0; start < len(chunks); start += chunkInsertBatch {
			end := start + chunkInsertBatch
			if end > len(chunks) {
				end = len(chunks)
			}
			data := make([]map[string]interface{}, 0, end-start)
			for _, c := range chunks[start:end] {
				data = append(data, map[string]interface{}{
					"id":           c.ID,
					"document_id":  docID,
					"session_id":   c.SessionID,
					"chunk_index":  c.Index,
					"content":      c.Content,
					"start_offset": c.StartOffset,
					"overlap":      c.Overlap,
					"page":         c.Page,
					"ctime":        c.Ctime,
				})
			}
			sqlStr, args, err := builder.BuildInsert("chunks", data)
			if err != nil {
				return err
			}
			sqlStr, args = dbutil.Finalize(sqlStr, args)
			if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *ChunkRepo) ListByDocument(ctx context.Context, docID string) ([]*model.Chunk, error) {
	where := map[string]interface{}{
		"document_id": docID,
		"_orderby":    "chunk_index asc",
	}
	sqlStr, args, err := builder.BuildSelect("chunks", where, []string{"id", "document_id", "session_id", "chunk_index", "content", "start_offset", "overlap", "page", "ctime"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*model.Chunk, 0)
	for rows.Next() {
		var c model.Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.SessionID, &c.Index, &c.Content, &c.StartOffset, &c.Overlap, &c.Page, &c.Ctime); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (r *ChunkRepo) CountByDocument(ctx context.Context, docID string) (int, error) {
	sqlStr, args := dbutil.Finalize("SELECT COUNT(*) FROM chunks WHERE document_id=?", []interface{}{docID})
	var n int
	if err := r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *ChunkRepo) DeleteByDocument(ctx context.Context, docID string) error {
	sqlStr, args := dbutil.Finalize("DELETE FROM chunks WHERE document_id=?", []interface{}{docID})
	_, err := r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *ChunkRepo) DeleteBySession(ctx context.Context, sessionID string) error {
	sqlStr, args := dbutil.Finalize("DELETE FROM chunks WHERE session_id=?", []interface{}{sessionID})
	_, err := r.db.ExecContext(ctx, sqlStr, args...)
	return err
}
