package pgfab

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/BearBump/FabTrack/internal/apperr"
	"github.com/BearBump/FabTrack/internal/models"
	"github.com/BearBump/FabTrack/internal/stages"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// assemblyRepo works on either the pool or a request transaction.
type assemblyRepo struct {
	q querier
}

var (
	allStages     = stages.All()
	assemblyQuery = `
SELECT
  assembly_code, pipeline, zone, item, company, weight_gross,
  ` + strings.Join(stages.Columns(), ", ") + `,
  created_at, updated_at
FROM assemblies
WHERE assembly_code = $1
`
)

func (r assemblyRepo) GetAssembly(ctx context.Context, code string) (*models.AssemblyRecord, error) {
	var a models.AssemblyRecord
	var pipeline string
	dates := make([]*time.Time, len(allStages))

	dest := []any{&a.AssemblyCode, &pipeline, &a.Zone, &a.Item, &a.Company, &a.WeightGross}
	for i := range dates {
		dest = append(dest, &dates[i])
	}
	dest = append(dest, &a.CreatedAt, &a.UpdatedAt)

	err := r.q.QueryRow(ctx, assemblyQuery, code).Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("assembly %s", code)
	}
	if err != nil {
		return nil, apperr.Persistence(err, "select assembly")
	}

	a.Pipeline = stages.Pipeline(pipeline)
	a.Stages = make(stages.Values, len(allStages))
	for i, st := range allStages {
		if dates[i] != nil {
			a.Stages[st.ID] = dates[i]
		}
	}
	return &a, nil
}

func (r assemblyRepo) SetStageDate(ctx context.Context, code string, stage stages.ID, date *time.Time) (int64, error) {
	col, err := stageColumn(stage)
	if err != nil {
		return 0, err
	}

	var arg any
	if date != nil {
		arg = date.UTC()
	}
	tag, err := r.q.Exec(ctx,
		`UPDATE assemblies SET `+col+` = $2, updated_at = now() WHERE assembly_code = $1`,
		code, arg)
	if err != nil {
		return 0, apperr.Persistence(err, "update stage date")
	}
	return tag.RowsAffected(), nil
}

// stageColumn returns the quoted column for a stage; only whitelisted columns reach SQL.
func stageColumn(stage stages.ID) (string, error) {
	st, ok := stages.Lookup(stage)
	if !ok || !slices.Contains(stages.Columns(), st.Field) {
		return "", apperr.Validation("unknown stage %q", stage)
	}
	return pgx.Identifier{st.Field}.Sanitize(), nil
}

func (s *Storage) GetAssembly(ctx context.Context, code string) (*models.AssemblyRecord, error) {
	return assemblyRepo{q: s.db}.GetAssembly(ctx, code)
}

func (s *Storage) SetStageDate(ctx context.Context, code string, stage stages.ID, date *time.Time) (int64, error) {
	return assemblyRepo{q: s.db}.SetStageDate(ctx, code, stage, date)
}

var upsertAssemblySQL = func() string {
	cols := stages.Columns()
	placeholders := make([]string, 0, len(cols))
	updates := make([]string, 0, len(cols))
	for i, c := range cols {
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+7))
		// пустая дата в импорте не затирает уже подтверждённую стадию
		updates = append(updates, fmt.Sprintf("  %s = COALESCE(EXCLUDED.%s, assemblies.%s),", c, c, c))
	}
	nowArg := len(cols) + 7

	return fmt.Sprintf(`
INSERT INTO assemblies (
  assembly_code, pipeline, zone, item, company, weight_gross, %s, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,%s,$%d,$%d)
ON CONFLICT (assembly_code) DO UPDATE SET
  pipeline = EXCLUDED.pipeline,
  zone = EXCLUDED.zone,
  item = EXCLUDED.item,
  company = EXCLUDED.company,
  weight_gross = COALESCE(EXCLUDED.weight_gross, assemblies.weight_gross),
%s
  updated_at = EXCLUDED.updated_at
`, strings.Join(cols, ", "), strings.Join(placeholders, ","), nowArg, nowArg, strings.Join(updates, "\n"))
}()

// UpsertAssemblies creates or refreshes assemblies by code in one transaction.
func (s *Storage) UpsertAssemblies(ctx context.Context, items []models.AssemblyInput) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, apperr.Persistence(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, it := range items {
		args := []any{it.AssemblyCode, string(it.Pipeline), it.Zone, it.Item, it.Company, it.WeightGross}
		for _, st := range allStages {
			var d any
			if v := it.Stages[st.ID]; v != nil {
				d = v.UTC()
			}
			args = append(args, d)
		}
		args = append(args, now)

		if _, err := tx.Exec(ctx, upsertAssemblySQL, args...); err != nil {
			return 0, apperr.Persistence(err, "upsert assembly "+it.AssemblyCode)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, apperr.Persistence(err, "commit tx")
	}
	return len(items), nil
}
