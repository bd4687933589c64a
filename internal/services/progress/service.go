package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BearBump/FabTrack/internal/apperr"
	"github.com/BearBump/FabTrack/internal/cache"
	"github.com/BearBump/FabTrack/internal/models"
	"github.com/BearBump/FabTrack/internal/stages"
)

type Repository interface {
	GetAssembly(ctx context.Context, code string) (*models.AssemblyRecord, error)
}

type StageView struct {
	ID          stages.ID  `json:"id"`
	DisplayName string     `json:"display_name"`
	State       string     `json:"state"`
	Date        *time.Time `json:"date,omitempty"`
}

// View is the cached, presentation-neutral progress of one assembly.
type View struct {
	AssemblyCode      string          `json:"assembly_code"`
	Pipeline          stages.Pipeline `json:"pipeline"`
	Status            stages.Status   `json:"status"`
	LastCompleted     stages.ID       `json:"last_completed_stage"`
	LastCompletedDate *time.Time      `json:"last_completed_date,omitempty"`
	Next              stages.ID       `json:"next_stage"`
	CompletedCount    int             `json:"completed_count"`
	SkippedCount      int             `json:"skipped_count"`
	RequiredCount     int             `json:"required_count"`
	Stages            []StageView     `json:"stages"`
}

func NewView(code string, seq stages.Sequence, p stages.Progress) *View {
	v := &View{
		AssemblyCode:      code,
		Pipeline:          seq.Pipeline(),
		Status:            p.Status,
		LastCompleted:     p.LastCompleted,
		LastCompletedDate: p.LastCompletedDate,
		Next:              p.Next,
		CompletedCount:    p.CompletedCount,
		SkippedCount:      p.SkippedCount,
		RequiredCount:     p.RequiredCount,
		Stages:            make([]StageView, 0, len(p.Stages)),
	}
	for _, ss := range p.Stages {
		v.Stages = append(v.Stages, StageView{
			ID:          ss.Stage.ID,
			DisplayName: ss.Stage.DisplayName,
			State:       ss.State.String(),
			Date:        ss.Date,
		})
	}
	return v
}

// FromAssembly derives the view straight from a record.
func FromAssembly(a *models.AssemblyRecord) (*View, error) {
	seq, ok := a.Sequence()
	if !ok {
		return nil, apperr.Conflict("assembly %s has unknown pipeline %q", a.AssemblyCode, a.Pipeline)
	}
	return NewView(a.AssemblyCode, seq, stages.Compute(a.Stages, seq)), nil
}

type Service struct {
	repo  Repository
	cache cache.BytesCache
	ttl   time.Duration
}

func New(repo Repository, c cache.BytesCache, ttl time.Duration) *Service {
	return &Service{repo: repo, cache: c, ttl: ttl}
}

func (s *Service) cacheEnabled() bool {
	return s.cache != nil && s.ttl > 0
}

func (s *Service) GetProgress(ctx context.Context, code string) (*View, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, apperr.Validation("assembly code is required")
	}

	if s.cacheEnabled() {
		b, ok, err := s.cache.Get(ctx, progressKey(code))
		if err != nil {
			slog.WarnContext(ctx, "progress cache get failed", "assembly_code", code, "err", err)
		}
		if err == nil && ok {
			var v View
			if json.Unmarshal(b, &v) == nil {
				return &v, nil
			}
		}
	}

	return s.load(ctx, code)
}

// Refresh recomputes the cached progress after a stage change.
func (s *Service) Refresh(ctx context.Context, code string) error {
	if !s.cacheEnabled() {
		return nil
	}
	_, err := s.load(ctx, code)
	return err
}

// Invalidate drops cached views so the next read re-derives them.
func (s *Service) Invalidate(ctx context.Context, codes ...string) error {
	if !s.cacheEnabled() {
		return nil
	}
	var firstErr error
	for _, code := range codes {
		if err := s.cache.Delete(ctx, progressKey(code)); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Service) load(ctx context.Context, code string) (*View, error) {
	a, err := s.repo.GetAssembly(ctx, code)
	if err != nil {
		return nil, err
	}
	v, err := FromAssembly(a)
	if err != nil {
		return nil, err
	}
	if s.cacheEnabled() {
		s.put(ctx, v)
	}
	return v, nil
}

func (s *Service) put(ctx context.Context, v *View) {
	b, _ := json.Marshal(v)
	if err := s.cache.Set(ctx, progressKey(v.AssemblyCode), b, s.ttl); err != nil {
		slog.WarnContext(ctx, "progress cache set failed", "assembly_code", v.AssemblyCode, "err", err)
	}
}

func progressKey(code string) string {
	return fmt.Sprintf("assembly:%s:progress", code)
}
