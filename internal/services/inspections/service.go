package inspections

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/BearBump/FabTrack/internal/apperr"
	"github.com/BearBump/FabTrack/internal/broker/messages"
	"github.com/BearBump/FabTrack/internal/models"
	"github.com/BearBump/FabTrack/internal/services/rollback"
	"github.com/BearBump/FabTrack/internal/stages"
	"github.com/BearBump/FabTrack/internal/storage"
	"github.com/google/uuid"
)

const (
	MaxBatchSize        = 1000
	DefaultRejectReason = "rejected"
)

type Repository interface {
	ClaimStage(ctx context.Context, claims []storage.Claim) ([]storage.ClaimOutcome, error)
	MutateRequest(ctx context.Context, id uint64, fn storage.RequestMutation) (*models.InspectionRequest, error)
	GetRequest(ctx context.Context, id uint64) (*models.InspectionRequest, error)
	ListRequests(ctx context.Context, f models.RequestFilter) ([]*models.InspectionRequest, error)
	DeleteRequest(ctx context.Context, id uint64) error
}

type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type ProgressRefresher interface {
	Refresh(ctx context.Context, code string) error
}

type Service struct {
	repo     Repository
	coord    *rollback.Coordinator
	pub      Publisher
	topic    string
	progress ProgressRefresher
	now      func() time.Time
}

func New(repo Repository, coord *rollback.Coordinator) *Service {
	return &Service{
		repo:  repo,
		coord: coord,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) WithPublisher(p Publisher, topic string) *Service {
	s.pub = p
	s.topic = topic
	return s
}

func (s *Service) WithProgress(r ProgressRefresher) *Service {
	s.progress = r
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type Duplicate struct {
	AssemblyCode      string
	ExistingRequester string
	ExistingDate      time.Time
}

type Skipped struct {
	AssemblyCode string
	Reason       string
}

type CreateResult struct {
	InsertedCount  int
	Inserted       []*models.InspectionRequest
	DuplicateItems []Duplicate
	SkippedItems   []Skipped
}

// CreateRequests opens one Pending request per code. Duplicates, also those
// repeated inside codes, are reported in the result and never fail the call.
func (s *Service) CreateRequests(ctx context.Context, codes []string, stage stages.ID, requestDate time.Time, actor models.Actor) (*CreateResult, error) {
	clean := make([]string, 0, len(codes))
	for _, c := range codes {
		if c = strings.TrimSpace(c); c != "" {
			clean = append(clean, c)
		}
	}
	if len(clean) == 0 {
		return nil, apperr.Validation("assembly codes are required")
	}
	if len(clean) > MaxBatchSize {
		return nil, apperr.Validation("too many assembly codes (max %d)", MaxBatchSize)
	}
	if _, ok := stages.Lookup(stage); !ok {
		return nil, apperr.Validation("unknown stage %q", stage)
	}
	if requestDate.IsZero() {
		return nil, apperr.Validation("request date is required")
	}
	if !actor.Level.AtLeast(models.LevelRequester) {
		return nil, apperr.Permission("user %d may not create inspection requests", actor.UserID)
	}

	day := truncateDay(requestDate)
	claims := make([]storage.Claim, 0, len(clean))
	for _, c := range clean {
		claims = append(claims, storage.Claim{
			AssemblyCode:    c,
			Stage:           stage,
			RequestedBy:     actor.UserID,
			RequestedByName: actor.Name,
			RequestDate:     day,
		})
	}

	outcomes, err := s.repo.ClaimStage(ctx, claims)
	if err != nil {
		return nil, err
	}

	res := &CreateResult{
		Inserted:       []*models.InspectionRequest{},
		DuplicateItems: []Duplicate{},
		SkippedItems:   []Skipped{},
	}
	for _, o := range outcomes {
		switch o.Kind {
		case storage.ClaimAccepted:
			res.Inserted = append(res.Inserted, o.Request)
		case storage.ClaimConflict:
			res.DuplicateItems = append(res.DuplicateItems, Duplicate{
				AssemblyCode:      o.Claim.AssemblyCode,
				ExistingRequester: o.ExistingRequester,
				ExistingDate:      o.ExistingDate,
			})
		default:
			res.SkippedItems = append(res.SkippedItems, Skipped{AssemblyCode: o.Claim.AssemblyCode, Reason: o.Kind.String()})
		}
	}
	res.InsertedCount = len(res.Inserted)

	slog.InfoContext(ctx, "inspection requests created",
		"stage", stage, "actor", actor.UserID,
		"inserted", res.InsertedCount, "duplicates", len(res.DuplicateItems), "skipped", len(res.SkippedItems))
	return res, nil
}

func (s *Service) Approve(ctx context.Context, id uint64, actor models.Actor) (*models.InspectionRequest, error) {
	if id == 0 {
		return nil, apperr.Validation("request id is required")
	}
	req, err := s.repo.MutateRequest(ctx, id, func(ctx context.Context, req *models.InspectionRequest, _ storage.AssemblyWriter) error {
		if err := requireLevel(actor, models.LevelApprover, "approve"); err != nil {
			return err
		}
		if req.Status != models.RequestPending {
			return apperr.Conflict("request %d is %s, only PENDING can be approved", req.ID, req.Status)
		}
		now := s.now()
		req.Status = models.RequestApproved
		req.ApprovedBy = &actor.UserID
		req.ApprovedByName = &actor.Name
		req.ApprovedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "inspection request approved", "id", id, "actor", actor.UserID)
	return req, nil
}

func (s *Service) Reject(ctx context.Context, id uint64, reason string, actor models.Actor) (*models.InspectionRequest, error) {
	if id == 0 {
		return nil, apperr.Validation("request id is required")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = DefaultRejectReason
	}
	req, err := s.repo.MutateRequest(ctx, id, func(ctx context.Context, req *models.InspectionRequest, _ storage.AssemblyWriter) error {
		if err := requireLevel(actor, models.LevelApprover, "reject"); err != nil {
			return err
		}
		if req.Status != models.RequestPending && req.Status != models.RequestApproved {
			return apperr.Conflict("request %d is %s, only PENDING or APPROVED can be rejected", req.ID, req.Status)
		}
		req.Status = models.RequestRejected
		req.RejectedBy = &actor.UserID
		req.RejectedByName = &actor.Name
		req.RejectReason = &reason
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "inspection request rejected", "id", id, "actor", actor.UserID)
	return req, nil
}

func (s *Service) Confirm(ctx context.Context, id uint64, confirmedDate time.Time, actor models.Actor) (*models.InspectionRequest, error) {
	if id == 0 {
		return nil, apperr.Validation("request id is required")
	}
	if confirmedDate.IsZero() {
		return nil, apperr.Validation("confirmed date is required")
	}
	day := truncateDay(confirmedDate)
	if stages.IsSentinel(day) {
		return nil, apperr.Validation("confirmed date %s is reserved", day.Format(messages.DateLayout))
	}

	var p stages.Progress
	req, err := s.repo.MutateRequest(ctx, id, func(ctx context.Context, req *models.InspectionRequest, w storage.AssemblyWriter) error {
		if err := requireLevel(actor, models.LevelConfirmer, "confirm"); err != nil {
			return err
		}
		if req.Status != models.RequestApproved {
			return apperr.Conflict("request %d is %s, only APPROVED can be confirmed", req.ID, req.Status)
		}
		var err error
		p, err = s.coord.Commit(ctx, w, req, actor, day)
		return err
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "inspection request confirmed",
		"id", id, "assembly_code", req.AssemblyCode, "stage", req.Stage, "actor", actor.UserID)
	s.stageChanged(ctx, messages.StageChangeConfirmed, req, actor, p)
	return req, nil
}

// Cancel withdraws a request. A Confirmed request is rolled back: its stage
// date is cleared in the same transaction and rollbackReasonID is required.
func (s *Service) Cancel(ctx context.Context, id uint64, actor models.Actor, rollbackReasonID *int, note string) (*models.InspectionRequest, error) {
	if id == 0 {
		return nil, apperr.Validation("request id is required")
	}
	if rollbackReasonID != nil {
		if _, ok := models.LookupRollbackReason(*rollbackReasonID); !ok {
			return nil, apperr.Validation("unknown rollback reason %d", *rollbackReasonID)
		}
	}

	var (
		rolledBack bool
		p          stages.Progress
	)
	req, err := s.repo.MutateRequest(ctx, id, func(ctx context.Context, req *models.InspectionRequest, w storage.AssemblyWriter) error {
		switch req.Status {
		case models.RequestPending:
			if req.RequestedBy != actor.UserID && !actor.Level.AtLeast(models.LevelConfirmer) {
				return apperr.Permission("only the requester or level %d may cancel a pending request", models.LevelConfirmer)
			}
		case models.RequestApproved:
			if err := requireLevel(actor, models.LevelConfirmer, "cancel an approved request"); err != nil {
				return err
			}
		case models.RequestConfirmed:
			if err := requireLevel(actor, models.LevelConfirmer, "cancel a confirmed request"); err != nil {
				return err
			}
			if rollbackReasonID == nil {
				return apperr.Validation("rollback reason is required to cancel a confirmed request")
			}
			var err error
			p, err = s.coord.Revert(ctx, w, req, actor, *rollbackReasonID, note)
			if err != nil {
				return err
			}
			rolledBack = true
			return nil
		default:
			return apperr.Conflict("request %d is %s and cannot be cancelled", req.ID, req.Status)
		}

		now := s.now()
		req.Status = models.RequestCancelled
		req.CancelledBy = &actor.UserID
		req.CancelledAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "inspection request cancelled", "id", id, "actor", actor.UserID, "rolled_back", rolledBack)
	if rolledBack {
		s.stageChanged(ctx, messages.StageChangeRolledBack, req, actor, p)
	}
	return req, nil
}

// Rollback cancels a request that must currently be Confirmed.
func (s *Service) Rollback(ctx context.Context, id uint64, actor models.Actor, rollbackReasonID int, note string) (*models.InspectionRequest, error) {
	req, p, err := s.coord.CancelConfirmed(ctx, id, actor, rollbackReasonID, note)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "inspection request rolled back",
		"id", id, "assembly_code", req.AssemblyCode, "stage", req.Stage, "actor", actor.UserID)
	s.stageChanged(ctx, messages.StageChangeRolledBack, req, actor, p)
	return req, nil
}

func (s *Service) Get(ctx context.Context, id uint64, actor models.Actor) (*models.InspectionRequest, error) {
	if id == 0 {
		return nil, apperr.Validation("request id is required")
	}
	req, err := s.repo.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Level.AtLeast(models.LevelApprover) && req.RequestedBy != actor.UserID {
		return nil, apperr.Permission("request %d belongs to another user", id)
	}
	return req, nil
}

// List applies the visibility rule: requester-level users only see their own
// requests that are still open or rejected.
func (s *Service) List(ctx context.Context, f models.RequestFilter, actor models.Actor) ([]*models.InspectionRequest, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, apperr.Validation("unknown status %q", f.Status)
	}
	if f.Stage != "" {
		if _, ok := stages.Lookup(f.Stage); !ok {
			return nil, apperr.Validation("unknown stage %q", f.Stage)
		}
	}
	if !actor.Level.AtLeast(models.LevelRequester) {
		return nil, apperr.Permission("user %d may not list inspection requests", actor.UserID)
	}
	if !actor.Level.AtLeast(models.LevelApprover) {
		uid := actor.UserID
		f.RequestedBy = &uid
		f.ExcludeStatuses = []models.RequestStatus{models.RequestConfirmed, models.RequestCancelled}
	}
	return s.repo.ListRequests(ctx, f)
}

// Purge physically deletes a request. Admin only.
func (s *Service) Purge(ctx context.Context, id uint64, actor models.Actor) error {
	if id == 0 {
		return apperr.Validation("request id is required")
	}
	if err := requireLevel(actor, models.LevelAdmin, "purge"); err != nil {
		return err
	}
	if err := s.repo.DeleteRequest(ctx, id); err != nil {
		return err
	}
	slog.WarnContext(ctx, "inspection request purged", "id", id, "actor", actor.UserID)
	return nil
}

// stageChanged runs after commit; failures are logged only.
func (s *Service) stageChanged(ctx context.Context, change string, req *models.InspectionRequest, actor models.Actor, p stages.Progress) {
	if s.progress != nil {
		if err := s.progress.Refresh(ctx, req.AssemblyCode); err != nil {
			slog.WarnContext(ctx, "progress refresh failed", "assembly_code", req.AssemblyCode, "err", err)
		}
	}
	if s.pub == nil || s.topic == "" {
		return
	}

	msg := messages.StageChanged{
		EventID:          uuid.NewString(),
		Change:           change,
		RequestID:        req.ID,
		AssemblyCode:     req.AssemblyCode,
		Stage:            string(req.Stage),
		ActorID:          actor.UserID,
		RollbackReasonID: req.RollbackReasonID,
		Status:           string(p.Status),
		LastCompleted:    string(p.LastCompleted),
		NextStage:        string(p.Next),
		OccurredAt:       s.now(),
	}
	if change == messages.StageChangeConfirmed {
		msg.StageDate = req.ConfirmedDate
	}

	b, err := json.Marshal(msg)
	if err != nil {
		slog.ErrorContext(ctx, "marshal stage changed", "err", err)
		return
	}
	if err := s.pub.Publish(ctx, s.topic, []byte(req.AssemblyCode), b); err != nil {
		slog.WarnContext(ctx, "publish stage changed failed",
			"assembly_code", req.AssemblyCode, "request_id", req.ID, "err", err)
	}
}

func requireLevel(actor models.Actor, min models.PermissionLevel, op string) error {
	if !actor.Level.AtLeast(min) {
		return apperr.Permission("%s requires level %d, user %d has %d", op, min, actor.UserID, actor.Level)
	}
	return nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
