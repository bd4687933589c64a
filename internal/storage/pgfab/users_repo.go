package pgfab

import (
	"context"

	"github.com/BearBump/FabTrack/internal/apperr"
	"github.com/BearBump/FabTrack/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

func (s *Storage) GetUser(ctx context.Context, id int64) (*models.User, error) {
	var u models.User
	var level int
	err := s.db.QueryRow(ctx, `
SELECT id, username, full_name, permission_level, company, is_active
FROM users
WHERE id = $1
`, id).Scan(&u.ID, &u.Username, &u.FullName, &level, &u.Company, &u.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("user %d", id)
	}
	if err != nil {
		return nil, apperr.Persistence(err, "select user")
	}
	u.PermissionLevel = models.PermissionLevel(level)
	return &u, nil
}

func (s *Storage) ListRollbackReasons(ctx context.Context) ([]models.RollbackReason, error) {
	rows, err := s.db.Query(ctx, `SELECT id, reason_text, display_order FROM rollback_reasons ORDER BY display_order, id`)
	if err != nil {
		return nil, apperr.Persistence(err, "select rollback reasons")
	}
	defer rows.Close()

	var out []models.RollbackReason
	for rows.Next() {
		var r models.RollbackReason
		if err := rows.Scan(&r.ID, &r.Text, &r.DisplayOrder); err != nil {
			return nil, apperr.Persistence(err, "scan rollback reason")
		}
		out = append(out, r)
	}
	if rows.Err() != nil {
		return nil, apperr.Persistence(rows.Err(), "rows")
	}
	return out, nil
}
