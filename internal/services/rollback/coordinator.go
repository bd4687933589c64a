package rollback

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BearBump/FabTrack/internal/apperr"
	"github.com/BearBump/FabTrack/internal/models"
	"github.com/BearBump/FabTrack/internal/stages"
	"github.com/BearBump/FabTrack/internal/storage"
)

type Repository interface {
	MutateRequest(ctx context.Context, id uint64, fn storage.RequestMutation) (*models.InspectionRequest, error)
}

// Coordinator writes and reverts the stage date tied to a confirmed request.
// Commit and Revert run inside a request transaction owned by the caller.
type Coordinator struct {
	repo Repository
	now  func() time.Time
}

func New(repo Repository) *Coordinator {
	return &Coordinator{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock подменяет источник времени (для тестов).
func (c *Coordinator) WithClock(now func() time.Time) *Coordinator {
	c.now = now
	return c
}

// Commit writes date into the request's stage column and flips the request
// to Confirmed. A write that touches no row aborts without a status change.
func (c *Coordinator) Commit(ctx context.Context, w storage.AssemblyWriter, req *models.InspectionRequest, actor models.Actor, date time.Time) (stages.Progress, error) {
	d := date.UTC()
	n, err := w.SetStageDate(ctx, req.AssemblyCode, req.Stage, &d)
	if err != nil {
		return stages.Progress{}, err
	}
	if n != 1 {
		return stages.Progress{}, apperr.RowsAffected(fmt.Sprintf("set %s of %s", req.Stage, req.AssemblyCode), n)
	}

	req.Status = models.RequestConfirmed
	req.ConfirmedBy = &actor.UserID
	req.ConfirmedByName = &actor.Name
	req.ConfirmedDate = &d

	return derive(ctx, w, req.AssemblyCode)
}

// Revert clears the request's stage column and flips a Confirmed request
// to Cancelled with the rollback reason.
func (c *Coordinator) Revert(ctx context.Context, w storage.AssemblyWriter, req *models.InspectionRequest, actor models.Actor, reasonID int, note string) (stages.Progress, error) {
	if req.Status != models.RequestConfirmed {
		return stages.Progress{}, apperr.Conflict("request %d is %s, only CONFIRMED can be rolled back", req.ID, req.Status)
	}
	if _, ok := models.LookupRollbackReason(reasonID); !ok {
		return stages.Progress{}, apperr.Validation("unknown rollback reason %d", reasonID)
	}

	n, err := w.SetStageDate(ctx, req.AssemblyCode, req.Stage, nil)
	if err != nil {
		return stages.Progress{}, err
	}
	if n != 1 {
		return stages.Progress{}, apperr.RowsAffected(fmt.Sprintf("clear %s of %s", req.Stage, req.AssemblyCode), n)
	}

	now := c.now()
	req.Status = models.RequestCancelled
	req.CancelledBy = &actor.UserID
	req.CancelledAt = &now
	req.RollbackReasonID = &reasonID
	if note = strings.TrimSpace(note); note != "" {
		req.RollbackNote = &note
	} else {
		req.RollbackNote = nil
	}

	return derive(ctx, w, req.AssemblyCode)
}

// CancelConfirmed is the standalone rollback of a confirmed request.
func (c *Coordinator) CancelConfirmed(ctx context.Context, id uint64, actor models.Actor, reasonID int, note string) (*models.InspectionRequest, stages.Progress, error) {
	if id == 0 {
		return nil, stages.Progress{}, apperr.Validation("request id is required")
	}
	if _, ok := models.LookupRollbackReason(reasonID); !ok {
		return nil, stages.Progress{}, apperr.Validation("unknown rollback reason %d", reasonID)
	}

	var progress stages.Progress
	req, err := c.repo.MutateRequest(ctx, id, func(ctx context.Context, req *models.InspectionRequest, w storage.AssemblyWriter) error {
		if !actor.Level.AtLeast(models.LevelConfirmer) {
			return apperr.Permission("rollback requires level %d, actor has %d", models.LevelConfirmer, actor.Level)
		}
		p, err := c.Revert(ctx, w, req, actor, reasonID, note)
		if err != nil {
			return err
		}
		progress = p
		return nil
	})
	if err != nil {
		return nil, stages.Progress{}, err
	}
	return req, progress, nil
}

func derive(ctx context.Context, w storage.AssemblyWriter, code string) (stages.Progress, error) {
	a, err := w.GetAssembly(ctx, code)
	if err != nil {
		return stages.Progress{}, err
	}
	seq, ok := a.Sequence()
	if !ok {
		return stages.Progress{}, apperr.Conflict("assembly %s has unknown pipeline %q", code, a.Pipeline)
	}
	return stages.Compute(a.Stages, seq), nil
}
