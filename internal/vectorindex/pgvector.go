package vectorindex

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docqa/internal/pkg/dbutil"
	appErr "github.com/xxxsen/docqa/internal/pkg/errors"
)

type pgIndex struct {
	db  *sql.DB
	dim int
}

// NewPGVector returns an index stored in the chunk_vectors table. The table is
// created on first use with a vector column of the configured dimension; an
// existing table with another dimension is reported as an inconsistency.
// Queries scan the session's rows exactly, so no ANN index is created.
func NewPGVector(ctx context.Context, db *sql.DB, dimension int) (Index, error) {
	idx := &pgIndex{db: db, dim: dimension}
	if err := idx.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return idx, nil
}

func (p *pgIndex) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunk_vectors (
			chunk_id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			filename TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			page INTEGER NOT NULL DEFAULT 0,
			content TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			ctime BIGINT NOT NULL DEFAULT 0
		)`, p.dim),
		`CREATE INDEX IF NOT EXISTS idx_chunk_vectors_session ON chunk_vectors (session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_chunk_vectors_document ON chunk_vectors (document_id)`,
	}
	for _, stmt := range stmts {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("prepare vector index: %w", err)
		}
	}
	var dim int
	row := p.db.QueryRowContext(ctx, `SELECT atttypmod FROM pg_attribute WHERE attrelid = 'chunk_vectors'::regclass AND attname = 'embedding'`)
	if err := row.Scan(&dim); err != nil {
		return fmt.Errorf("inspect vector index: %w", err)
	}
	if dim != p.dim {
		return fmt.Errorf("chunk_vectors.embedding has %d dimensions, configured %d: %w", dim, p.dim, appErr.ErrIndexInconsistency)
	}
	return nil
}

func (p *pgIndex) wrap(err error) error {
	if err == nil {
		return nil
	}
	if dbutil.IsUndefined(err) {
		return fmt.Errorf("vector index missing: %w: %w", appErr.ErrIndexInconsistency, err)
	}
	return err
}

func (p *pgIndex) Upsert(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	for _, e := range entries {
		if err := checkDimension(p.dim, e.Vector); err != nil {
			return err
		}
	}
	const query = `
		INSERT INTO chunk_vectors (chunk_id, document_id, session_id, filename, chunk_index, page, content, embedding, ctime)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, EXTRACT(EPOCH FROM NOW())::BIGINT)
		ON CONFLICT (chunk_id) DO UPDATE SET
			document_id = EXCLUDED.document_id,
			session_id = EXCLUDED.session_id,
			filename = EXCLUDED.filename,
			chunk_index = EXCLUDED.chunk_index,
			page = EXCLUDED.page,
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			ctime = EXCLUDED.ctime
	`
	err := dbutil.WithTx(ctx, p.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, e := range entries {
			if _, err := stmt.ExecContext(ctx,
				e.ChunkID,
				e.Meta.DocumentID,
				e.Meta.SessionID,
				e.Meta.Filename,
				e.Meta.ChunkIndex,
				e.Meta.Page,
				e.Meta.Text,
				pgvector.NewVector(e.Vector),
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		logutil.GetLogger(ctx).Error("upsert vectors failed", zap.Int("count", len(entries)), zap.Error(err))
	}
	return p.wrap(err)
}

func (p *pgIndex) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM chunk_vectors WHERE document_id = $1`, documentID)
	return p.wrap(err)
}

func (p *pgIndex) DeleteBySession(ctx context.Context, sessionID string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM chunk_vectors WHERE session_id = $1`, sessionID)
	return p.wrap(err)
}

func buildWhere(filter Filter, args []interface{}) (string, []interface{}) {
	clauses := []string{fmt.Sprintf("session_id = $%d", len(args)+1)}
	args = append(args, filter.SessionID)
	if len(filter.DocumentIDs) > 0 {
		clauses = append(clauses, fmt.Sprintf("document_id = ANY($%d)", len(args)+1))
		args = append(args, pq.Array(filter.DocumentIDs))
	}
	return strings.Join(clauses, " AND "), args
}

func (p *pgIndex) Query(ctx context.Context, vector []float32, topK int, filter Filter) ([]Hit, error) {
	if err := validateFilter(filter); err != nil {
		return nil, err
	}
	if err := checkDimension(p.dim, vector); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return []Hit{}, nil
	}
	where, args := buildWhere(filter, []interface{}{pgvector.NewVector(vector)})
	args = append(args, topK)
	// The tenant filter runs before ranking. An approximate index scan would
	// filter after the fact and can return fewer than topK rows.
	query := fmt.Sprintf(`
		WITH candidates AS MATERIALIZED (
			SELECT chunk_id, document_id, session_id, filename, chunk_index, page, content, embedding <=> $1 AS distance
			FROM chunk_vectors
			WHERE %s
		)
		SELECT chunk_id, document_id, session_id, filename, chunk_index, page, content, distance
		FROM candidates
		ORDER BY distance, document_id, chunk_index, chunk_id
		LIMIT $%d
	`, where, len(args))
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, p.wrap(err)
	}
	defer rows.Close()
	hits := make([]Hit, 0, topK)
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.ChunkID, &h.Meta.DocumentID, &h.Meta.SessionID, &h.Meta.Filename,
			&h.Meta.ChunkIndex, &h.Meta.Page, &h.Meta.Text, &h.Distance); err != nil {
			return nil, err
		}
		h.Similarity = Similarity(h.Distance)
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (p *pgIndex) Count(ctx context.Context, filter Filter) (int, error) {
	if err := validateFilter(filter); err != nil {
		return 0, err
	}
	where, args := buildWhere(filter, nil)
	var n int
	if err := p.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM chunk_vectors WHERE "+where, args...).Scan(&n); err != nil {
		return 0, p.wrap(err)
	}
	return n, nil
}
