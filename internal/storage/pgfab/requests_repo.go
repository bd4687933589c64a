package pgfab

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/BearBump/FabTrack/internal/apperr"
	"github.com/BearBump/FabTrack/internal/models"
	"github.com/BearBump/FabTrack/internal/stages"
	"github.com/BearBump/FabTrack/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const requestColumns = `
  id, assembly_code, stage, status,
  requested_by, requested_by_name, request_date,
  approved_by, approved_by_name, approved_at,
  confirmed_by, confirmed_by_name, confirmed_date,
  rejected_by, rejected_by_name, reject_reason,
  cancelled_by, cancelled_at,
  rollback_reason_id, rollback_note,
  created_at, updated_at`

func scanRequest(row pgx.Row) (*models.InspectionRequest, error) {
	var r models.InspectionRequest
	var stage, status string
	if err := row.Scan(
		&r.ID, &r.AssemblyCode, &stage, &status,
		&r.RequestedBy, &r.RequestedByName, &r.RequestDate,
		&r.ApprovedBy, &r.ApprovedByName, &r.ApprovedAt,
		&r.ConfirmedBy, &r.ConfirmedByName, &r.ConfirmedDate,
		&r.RejectedBy, &r.RejectedByName, &r.RejectReason,
		&r.CancelledBy, &r.CancelledAt,
		&r.RollbackReasonID, &r.RollbackNote,
		&r.CreatedAt, &r.UpdatedAt,
	); err != nil {
		return nil, err
	}
	r.Stage = stages.ID(stage)
	r.Status = models.RequestStatus(status)
	return &r, nil
}

// ClaimStage opens Pending requests for every claim in one transaction.
// The partial unique index decides conflicts, including duplicates inside
// the same batch. Inserts go in (assembly_code, stage) order so overlapping
// batches lock index entries in the same order; outcomes keep input order.
func (s *Storage) ClaimStage(ctx context.Context, claims []storage.Claim) ([]storage.ClaimOutcome, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, apperr.Persistence(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	order := make([]int, len(claims))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ca, cb := claims[order[a]], claims[order[b]]
		if ca.AssemblyCode != cb.AssemblyCode {
			return ca.AssemblyCode < cb.AssemblyCode
		}
		return ca.Stage < cb.Stage
	})

	out := make([]storage.ClaimOutcome, len(claims))
	for _, i := range order {
		c := claims[i]
		res := storage.ClaimOutcome{Claim: c}

		var pipeline string
		err := tx.QueryRow(ctx, `SELECT pipeline FROM assemblies WHERE assembly_code = $1`, c.AssemblyCode).Scan(&pipeline)
		if errors.Is(err, pgx.ErrNoRows) {
			res.Kind = storage.ClaimAssemblyNotFound
			out[i] = res
			continue
		}
		if err != nil {
			return nil, apperr.Persistence(err, "select assembly pipeline")
		}
		if seq, ok := stages.SequenceFor(stages.Pipeline(pipeline)); !ok || !seq.Contains(c.Stage) {
			res.Kind = storage.ClaimStageNotInPipeline
			out[i] = res
			continue
		}

		req, err := scanRequest(tx.QueryRow(ctx, `
INSERT INTO inspection_requests (
  assembly_code, stage, status, requested_by, requested_by_name, request_date, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$7)
ON CONFLICT (assembly_code, stage) WHERE status <> 'CANCELLED' DO NOTHING
RETURNING `+requestColumns,
			c.AssemblyCode, string(c.Stage), string(models.RequestPending),
			c.RequestedBy, c.RequestedByName, c.RequestDate.UTC(), now))
		switch {
		case err == nil:
			res.Kind = storage.ClaimAccepted
			res.Request = req
		case errors.Is(err, pgx.ErrNoRows):
			res.Kind = storage.ClaimConflict
			err = tx.QueryRow(ctx, `
SELECT requested_by_name, request_date
FROM inspection_requests
WHERE assembly_code = $1 AND stage = $2 AND status <> 'CANCELLED'
`, c.AssemblyCode, string(c.Stage)).Scan(&res.ExistingRequester, &res.ExistingDate)
			if err != nil {
				return nil, apperr.Persistence(err, "select active request")
			}
		default:
			return nil, apperr.Persistence(err, "insert inspection request")
		}
		out[i] = res
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperr.Persistence(err, "commit tx")
	}
	return out, nil
}

// MutateRequest locks the request row, runs fn and persists the result,
// all in one transaction.
func (s *Storage) MutateRequest(ctx context.Context, id uint64, fn storage.RequestMutation) (*models.InspectionRequest, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, apperr.Persistence(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	req, err := scanRequest(tx.QueryRow(ctx, `SELECT `+requestColumns+` FROM inspection_requests WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("inspection request %d", id)
	}
	if err != nil {
		return nil, apperr.Persistence(err, "lock inspection request")
	}

	if err := fn(ctx, req, assemblyRepo{q: tx}); err != nil {
		return nil, err
	}

	err = tx.QueryRow(ctx, `
UPDATE inspection_requests
SET
  status = $2,
  approved_by = $3, approved_by_name = $4, approved_at = $5,
  confirmed_by = $6, confirmed_by_name = $7, confirmed_date = $8,
  rejected_by = $9, rejected_by_name = $10, reject_reason = $11,
  cancelled_by = $12, cancelled_at = $13,
  rollback_reason_id = $14, rollback_note = $15,
  updated_at = now()
WHERE id = $1
RETURNING updated_at
`, req.ID, string(req.Status),
		req.ApprovedBy, req.ApprovedByName, req.ApprovedAt,
		req.ConfirmedBy, req.ConfirmedByName, req.ConfirmedDate,
		req.RejectedBy, req.RejectedByName, req.RejectReason,
		req.CancelledBy, req.CancelledAt,
		req.RollbackReasonID, req.RollbackNote,
	).Scan(&req.UpdatedAt)
	if err != nil {
		return nil, apperr.Persistence(err, "update inspection request")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperr.Persistence(err, "commit tx")
	}
	return req, nil
}

func (s *Storage) GetRequest(ctx context.Context, id uint64) (*models.InspectionRequest, error) {
	req, err := scanRequest(s.db.QueryRow(ctx, `SELECT `+requestColumns+` FROM inspection_requests WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("inspection request %d", id)
	}
	if err != nil {
		return nil, apperr.Persistence(err, "select inspection request")
	}
	return req, nil
}

func (s *Storage) ListRequests(ctx context.Context, f models.RequestFilter) ([]*models.InspectionRequest, error) {
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Status != "" {
		where = append(where, "status = "+arg(string(f.Status)))
	}
	if f.Stage != "" {
		where = append(where, "stage = "+arg(string(f.Stage)))
	}
	if f.AssemblyCode != "" {
		where = append(where, "assembly_code = "+arg(f.AssemblyCode))
	}
	if f.RequestedBy != nil {
		where = append(where, "requested_by = "+arg(*f.RequestedBy))
	}
	if len(f.ExcludeStatuses) > 0 {
		ex := make([]string, 0, len(f.ExcludeStatuses))
		for _, st := range f.ExcludeStatuses {
			ex = append(ex, string(st))
		}
		where = append(where, "NOT (status = ANY("+arg(ex)+"))")
	}

	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	offset := max(f.Offset, 0)

	q := `SELECT ` + requestColumns + ` FROM inspection_requests`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC, id DESC LIMIT " + arg(limit) + " OFFSET " + arg(offset)

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, apperr.Persistence(err, "select inspection requests")
	}
	defer rows.Close()

	out := []*models.InspectionRequest{}
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, apperr.Persistence(err, "scan inspection request")
		}
		out = append(out, r)
	}
	if rows.Err() != nil {
		return nil, apperr.Persistence(rows.Err(), "rows")
	}
	return out, nil
}

// DeleteRequest physically removes a request (administrative purge).
func (s *Storage) DeleteRequest(ctx context.Context, id uint64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM inspection_requests WHERE id = $1`, id)
	if err != nil {
		return apperr.Persistence(err, "delete inspection request")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("inspection request %d", id)
	}
	return nil
}
