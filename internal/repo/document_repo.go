package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/docqa/internal/model"
	"github.com/xxxsen/docqa/internal/pkg/dbutil"
	appErr "github.com/xxxsen/docqa/internal/pkg/errors"
)

var documentFields = []string{
	"id", "session_id", "filename", "file_type", "file_size", "storage_key", "status",
	"error_message", "chunk_count", "metadata", "indexed_at", "ctime", "mtime",
}

type DocumentRepo struct {
	db *sql.DB
}

func NewDocumentRepo(db *sql.DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

func encodeMetadata(m map[string]interface{}) (string, error) {
	if m == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (r *DocumentRepo) Create(ctx context.Context, doc *model.Document) error {
	meta, err := encodeMetadata(doc.Metadata)
	if err != nil {
		return err
	}
	data := map[string]interface{}{
		"id":            doc.ID,
		"session_id":    doc.SessionID,
		"filename":      doc.Filename,
		"file_type":     doc.FileType,
		"file_size":     doc.FileSize,
		"storage_key":   doc.StorageKey,
		"status":        string(doc.Status),
		"error_message": doc.ErrorMessage,
		"chunk_count":   doc.ChunkCount,
		"metadata":      meta,
		"indexed_at":    doc.IndexedAt,
		"ctime":         doc.Ctime,
		"mtime":         doc.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("documents", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	if dbutil.IsConflict(err) {
		return appErr.ErrConflict
	}
	return err
}

func (r *DocumentRepo) update(ctx context.Context, where, update map[string]interface{}) error {
	sqlStr, args, err := builder.BuildUpdate("documents", where, update)
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

// Settle records the outcome of an ingestion. Only a document that is still
// processing is updated; otherwise ErrNotFound is returned.
func (r *DocumentRepo) Settle(ctx context.Context, doc *model.Document) error {
	return r.update(ctx, map[string]interface{}{
		"id":     doc.ID,
		"status": string(model.DocumentStatusProcessing),
	}, map[string]interface{}{
		"status":        string(doc.Status),
		"error_message": doc.ErrorMessage,
		"chunk_count":   doc.ChunkCount,
		"indexed_at":    doc.IndexedAt,
		"mtime":         doc.Mtime,
	})
}

// TouchProcessing bumps mtime of a processing document when a worker picks
// it up, so queue wait does not count towards staleness.
func (r *DocumentRepo) TouchProcessing(ctx context.Context, docID string, mtime int64) error {
	return r.update(ctx, map[string]interface{}{
		"id":     docID,
		"status": string(model.DocumentStatusProcessing),
	}, map[string]interface{}{
		"mtime": mtime,
	})
}

func (r *DocumentRepo) UpdateMetadata(ctx context.Context, docID string, metadata map[string]interface{}, mtime int64) error {
	meta, err := encodeMetadata(metadata)
	if err != nil {
		return err
	}
	return r.update(ctx, map[string]interface{}{
		"id": docID,
	}, map[string]interface{}{
		"metadata": meta,
		"mtime":    mtime,
	})
}

// MarkProcessing moves a settled document back to processing. It fails with
// ErrConflict when the document is already being ingested.
func (r *DocumentRepo) MarkProcessing(ctx context.Context, sessionID, docID string, mtime int64) error {
	err := r.update(ctx, map[string]interface{}{
		"id":         docID,
		"session_id": sessionID,
		"status !=":  string(model.DocumentStatusProcessing),
	}, map[string]interface{}{
		"status":        string(model.DocumentStatusProcessing),
		"error_message": "",
		"chunk_count":   0,
		"indexed_at":    0,
		"mtime":         mtime,
	})
	if appErr.IsNotFound(err) {
		if _, getErr := r.GetByID(ctx, sessionID, docID); getErr != nil {
			return getErr
		}
		return appErr.ErrConflict
	}
	return err
}

func (r *DocumentRepo) GetByID(ctx context.Context, sessionID, docID string) (*model.Document, error) {
	docs, err := r.list(ctx, map[string]interface{}{
		"id":         docID,
		"session_id": sessionID,
	})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, appErr.ErrNotFound
	}
	return docs[0], nil
}

func (r *DocumentRepo) List(ctx context.Context, sessionID string) ([]*model.Document, error) {
	return r.list(ctx, map[string]interface{}{
		"session_id": sessionID,
		"_orderby":   "ctime desc",
	})
}

// ListStale returns processing documents untouched since before.
func (r *DocumentRepo) ListStale(ctx context.Context, before int64, limit uint) ([]*model.Document, error) {
	return r.list(ctx, map[string]interface{}{
		"status":   string(model.DocumentStatusProcessing),
		"mtime <":  before,
		"_orderby": "mtime asc",
		"_limit":   []uint{0, limit},
	})
}

func (r *DocumentRepo) ListBySession(ctx context.Context, sessionID string) ([]*model.Document, error) {
	return r.List(ctx, sessionID)
}

func (r *DocumentRepo) list(ctx context.Context, where map[string]interface{}) ([]*model.Document, error) {
	sqlStr, args, err := builder.BuildSelect("documents", where, documentFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	docs := make([]*model.Document, 0)
	for rows.Next() {
		var (
			doc    model.Document
			status string
			meta   []byte
		)
		if err := rows.Scan(&doc.ID, &doc.SessionID, &doc.Filename, &doc.FileType, &doc.FileSize, &doc.StorageKey,
			&status, &doc.ErrorMessage, &doc.ChunkCount, &meta, &doc.IndexedAt, &doc.Ctime, &doc.Mtime); err != nil {
			return nil, err
		}
		doc.Status = model.DocumentStatus(status)
		doc.Metadata = map[string]interface{}{}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &doc.Metadata); err != nil {
				return nil, err
			}
		}
		docs = append(docs, &doc)
	}
	return docs, rows.Err()
}

func (r *DocumentRepo) Delete(ctx context.Context, sessionID, docID string) error {
	sqlStr, args, err := builder.BuildDelete("documents", map[string]interface{}{
		"id":         docID,
		"session_id": sessionID,
	})
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

func (r *DocumentRepo) DeleteBySession(ctx context.Context, sessionID string) error {
	sqlStr, args := dbutil.Finalize("DELETE FROM documents WHERE session_id=?", []interface{}{sessionID})
	_, err := r.db.ExecContext(ctx, sqlStr, args...)
	return err
}
