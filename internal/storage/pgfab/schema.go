package pgfab

import (
	"context"

	"github.com/BearBump/FabTrack/internal/models"
	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS users (
  id BIGSERIAL PRIMARY KEY,
  username TEXT NOT NULL UNIQUE,
  full_name TEXT NOT NULL DEFAULT '',
  permission_level INT NOT NULL DEFAULT 1,
  company TEXT NOT NULL DEFAULT '',
  is_active BOOLEAN NOT NULL DEFAULT TRUE,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		`
CREATE TABLE IF NOT EXISTS assemblies (
  assembly_code TEXT PRIMARY KEY,
  pipeline TEXT NOT NULL,
  zone TEXT NOT NULL DEFAULT '',
  item TEXT NOT NULL DEFAULT '',
  company TEXT NOT NULL DEFAULT '',
  weight_gross DOUBLE PRECISION NULL,
  fit_up_date DATE NULL,
  nde_date DATE NULL,
  vidi_date DATE NULL,
  final_date DATE NULL,
  arup_final_date DATE NULL,
  galv_date DATE NULL,
  arup_galv_date DATE NULL,
  shot_date DATE NULL,
  paint_date DATE NULL,
  arup_paint_date DATE NULL,
  packing_date DATE NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL,
  CHECK (pipeline IN ('PIPELINE_7', 'PIPELINE_8'))
)`,
		`CREATE INDEX IF NOT EXISTS idx_assemblies_company ON assemblies(company)`,
		`
CREATE TABLE IF NOT EXISTS rollback_reasons (
  id INT PRIMARY KEY,
  reason_text TEXT NOT NULL,
  display_order INT NOT NULL
)`,
		`
CREATE TABLE IF NOT EXISTS inspection_requests (
  id BIGSERIAL PRIMARY KEY,
  assembly_code TEXT NOT NULL REFERENCES assemblies(assembly_code),
  stage TEXT NOT NULL,
  status TEXT NOT NULL,
  requested_by BIGINT NOT NULL,
  requested_by_name TEXT NOT NULL,
  request_date DATE NOT NULL,
  approved_by BIGINT NULL,
  approved_by_name TEXT NULL,
  approved_at TIMESTAMPTZ NULL,
  confirmed_by BIGINT NULL,
  confirmed_by_name TEXT NULL,
  confirmed_date DATE NULL,
  rejected_by BIGINT NULL,
  rejected_by_name TEXT NULL,
  reject_reason TEXT NULL,
  cancelled_by BIGINT NULL,
  cancelled_at TIMESTAMPTZ NULL,
  rollback_reason_id INT NULL REFERENCES rollback_reasons(id),
  rollback_note TEXT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_inspection_requests_status ON inspection_requests(status)`,
		`CREATE INDEX IF NOT EXISTS idx_inspection_requests_requested_by ON inspection_requests(requested_by)`,
		// Не больше одной активной заявки на (сборка, стадия).
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_inspection_requests_active ON inspection_requests(assembly_code, stage) WHERE status <> 'CANCELLED'`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return s.seedRollbackReasons(ctx)
}

func (s *Storage) seedRollbackReasons(ctx context.Context) error {
	for _, r := range models.RollbackReasons {
		_, err := s.db.Exec(ctx, `
INSERT INTO rollback_reasons (id, reason_text, display_order)
VALUES ($1,$2,$3)
ON CONFLICT (id) DO UPDATE SET reason_text = EXCLUDED.reason_text, display_order = EXCLUDED.display_order
`, r.ID, r.Text, r.DisplayOrder)
		if err != nil {
			return errors.Wrap(err, "seed rollback reasons")
		}
	}
	return nil
}
