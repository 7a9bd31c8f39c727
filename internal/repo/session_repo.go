package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/docqa/internal/model"
	"github.com/xxxsen/docqa/internal/pkg/dbutil"
)

type SessionRepo struct {
	db *sql.DB
}

func NewSessionRepo(db *sql.DB) *SessionRepo {
	return &SessionRepo{db: db}
}

// Touch creates the session on first sight and refreshes last_active after.
func (r *SessionRepo) Touch(ctx context.Context, s *model.Session) error {
	const query = `
		INSERT INTO sessions (id, user_agent, ip, ctime, last_active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			user_agent = EXCLUDED.user_agent,
			ip = EXCLUDED.ip,
			last_active = EXCLUDED.last_active
	`
	_, err := r.db.ExecContext(ctx, query, s.ID, s.UserAgent, s.IP, s.Ctime, s.LastActive)
	return err
}

// ListInactive returns ids of sessions idle since before cutoff.
func (r *SessionRepo) ListInactive(ctx context.Context, cutoff int64, limit uint) ([]string, error) {
	where := map[string]interface{}{
		"last_active <": cutoff,
		"_orderby":      "last_active asc",
		"_limit":        []uint{0, limit},
	}
	sqlStr, args, err := builder.BuildSelect("sessions", where, []string{"id"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *SessionRepo) Delete(ctx context.Context, sessionID string) error {
	sqlStr, args := dbutil.Finalize("DELETE FROM sessions WHERE id=?", []interface{}{sessionID})
	_, err := r.db.ExecContext(ctx, sqlStr, args...)
	return err
}
