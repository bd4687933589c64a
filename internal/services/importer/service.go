package importer

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/BearBump/FabTrack/internal/apperr"
	"github.com/BearBump/FabTrack/internal/broker/messages"
	"github.com/BearBump/FabTrack/internal/models"
	"github.com/BearBump/FabTrack/internal/stages"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const DefaultBatchSize = 500

type Repository interface {
	UpsertAssemblies(ctx context.Context, items []models.AssemblyInput) (int, error)
}

// ProgressInvalidator drops cached progress of re-imported assemblies.
type ProgressInvalidator interface {
	Invalidate(ctx context.Context, codes ...string) error
}

type Service struct {
	repo     Repository
	progress ProgressInvalidator
}

func New(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) WithProgress(p ProgressInvalidator) *Service {
	s.progress = p
	return s
}

// Batches splits items into import messages of at most size assemblies.
func Batches(items []messages.AssemblyItem, size int, source string, now time.Time) []messages.AssemblyImported {
	if size <= 0 {
		size = DefaultBatchSize
	}
	var out []messages.AssemblyImported
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, messages.AssemblyImported{
			BatchID:    uuid.NewString(),
			Source:     source,
			ImportedAt: now.UTC(),
			Assemblies: items[start:end],
		})
	}
	return out
}

// ToInput validates one wire item.
func ToInput(it messages.AssemblyItem) (models.AssemblyInput, error) {
	code := strings.TrimSpace(it.AssemblyCode)
	if code == "" {
		return models.AssemblyInput{}, apperr.Validation("assembly code is empty")
	}
	p, ok := stages.ParsePipeline(it.Pipeline)
	if !ok {
		return models.AssemblyInput{}, apperr.Validation("assembly %s: unknown pipeline %q", code, it.Pipeline)
	}
	seq, _ := stages.SequenceFor(p)

	in := models.AssemblyInput{
		AssemblyCode: code,
		Pipeline:     p,
		Zone:         it.Zone,
		Item:         it.Item,
		Company:      it.Company,
		WeightGross:  it.WeightGross,
	}
	for k, v := range it.StageDates {
		id, ok := stages.ParseID(k)
		if !ok || !seq.Contains(id) {
			return models.AssemblyInput{}, apperr.Validation("assembly %s: stage %s is not in %s", code, k, p)
		}
		d, err := time.Parse(messages.DateLayout, v)
		if err != nil {
			return models.AssemblyInput{}, apperr.Validation("assembly %s: bad %s date %q", code, k, v)
		}
		if in.Stages == nil {
			in.Stages = stages.Values{}
		}
		in.Stages[id] = &d
	}
	return in, nil
}

// Apply upserts a batch; invalid items are logged and left out.
func (s *Service) Apply(ctx context.Context, batch messages.AssemblyImported) (int, error) {
	inputs := make([]models.AssemblyInput, 0, len(batch.Assemblies))
	for _, it := range batch.Assemblies {
		in, err := ToInput(it)
		if err != nil {
			slog.WarnContext(ctx, "import item skipped", "batch_id", batch.BatchID, "err", err)
			continue
		}
		inputs = append(inputs, in)
	}
	if len(inputs) == 0 {
		return 0, nil
	}

	n, err := s.repo.UpsertAssemblies(ctx, inputs)
	if err != nil {
		return 0, errors.Wrapf(err, "apply batch %s", batch.BatchID)
	}
	if s.progress != nil {
		codes := make([]string, 0, len(inputs))
		for _, in := range inputs {
			codes = append(codes, in.AssemblyCode)
		}
		// кэш только ускоряет чтение, строки уже записаны
		if err := s.progress.Invalidate(ctx, codes...); err != nil {
			slog.WarnContext(ctx, "progress invalidate failed", "batch_id", batch.BatchID, "err", err)
		}
	}
	slog.InfoContext(ctx, "import batch applied",
		"batch_id", batch.BatchID, "source", batch.Source, "received", len(batch.Assemblies), "upserted", n)
	return n, nil
}
