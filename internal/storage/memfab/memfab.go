// Package memfab is an in-process store with the same semantics as pgfab:
// per-request serialization, all-or-nothing mutations and at most one
// active request per (assembly, stage).
package memfab

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BearBump/FabTrack/internal/apperr"
	"github.com/BearBump/FabTrack/internal/models"
	"github.com/BearBump/FabTrack/internal/stages"
	"github.com/BearBump/FabTrack/internal/storage"
)

type activeKey struct {
	code  string
	stage stages.ID
}

type Storage struct {
	mu sync.Mutex

	assemblies map[string]*models.AssemblyRecord
	requests   map[uint64]*models.InspectionRequest
	active     map[activeKey]uint64
	users      map[int64]*models.User
	nextID     uint64

	now func() time.Time
}

func New() *Storage {
	return &Storage{
		assemblies: make(map[string]*models.AssemblyRecord),
		requests:   make(map[uint64]*models.InspectionRequest),
		active:     make(map[activeKey]uint64),
		users:      make(map[int64]*models.User),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *Storage) Ping(ctx context.Context) error { return nil }

func (s *Storage) Close() {}

func (s *Storage) AddUser(u models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := u
	s.users[u.ID] = &cp
}

func (s *Storage) GetUser(ctx context.Context, id int64) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, apperr.NotFound("user %d", id)
	}
	cp := *u
	return &cp, nil
}

func (s *Storage) ListRollbackReasons(ctx context.Context) ([]models.RollbackReason, error) {
	out := make([]models.RollbackReason, len(models.RollbackReasons))
	copy(out, models.RollbackReasons)
	return out, nil
}

func copyAssembly(a *models.AssemblyRecord) *models.AssemblyRecord {
	cp := *a
	cp.Stages = make(stages.Values, len(a.Stages))
	for k, v := range a.Stages {
		if v != nil {
			d := *v
			cp.Stages[k] = &d
		}
	}
	return &cp
}

func copyRequest(r *models.InspectionRequest) *models.InspectionRequest {
	cp := *r
	return &cp
}

func (s *Storage) GetAssembly(ctx context.Context, code string) (*models.AssemblyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assemblies[code]
	if !ok {
		return nil, apperr.NotFound("assembly %s", code)
	}
	return copyAssembly(a), nil
}

func (s *Storage) SetStageDate(ctx context.Context, code string, stage stages.ID, date *time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return setStageDate(s.assemblies, code, stage, date, s.now())
}

func setStageDate(m map[string]*models.AssemblyRecord, code string, stage stages.ID, date *time.Time, now time.Time) (int64, error) {
	if _, ok := stages.Lookup(stage); !ok {
		return 0, apperr.Validation("unknown stage %q", stage)
	}
	a, ok := m[code]
	if !ok {
		return 0, nil
	}
	if a.Stages == nil {
		a.Stages = stages.Values{}
	}
	if date == nil {
		delete(a.Stages, stage)
	} else {
		d := date.UTC()
		a.Stages[stage] = &d
	}
	a.UpdatedAt = now
	return 1, nil
}

func (s *Storage) UpsertAssemblies(ctx context.Context, items []models.AssemblyInput) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, it := range items {
		a, ok := s.assemblies[it.AssemblyCode]
		if !ok {
			a = &models.AssemblyRecord{AssemblyCode: it.AssemblyCode, Stages: stages.Values{}, CreatedAt: now}
			s.assemblies[it.AssemblyCode] = a
		}
		a.Pipeline = it.Pipeline
		a.Zone = it.Zone
		a.Item = it.Item
		a.Company = it.Company
		if it.WeightGross != nil {
			w := *it.WeightGross
			a.WeightGross = &w
		}
		for id, v := range it.Stages {
			if v != nil {
				d := v.UTC()
				a.Stages[id] = &d
			}
		}
		a.UpdatedAt = now
	}
	return len(items), nil
}

func (s *Storage) ClaimStage(ctx context.Context, claims []storage.Claim) ([]storage.ClaimOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	out := make([]storage.ClaimOutcome, 0, len(claims))
	for _, c := range claims {
		res := storage.ClaimOutcome{Claim: c}

		a, ok := s.assemblies[c.AssemblyCode]
		if !ok {
			res.Kind = storage.ClaimAssemblyNotFound
			out = append(out, res)
			continue
		}
		if seq, ok := a.Sequence(); !ok || !seq.Contains(c.Stage) {
			res.Kind = storage.ClaimStageNotInPipeline
			out = append(out, res)
			continue
		}

		key := activeKey{code: c.AssemblyCode, stage: c.Stage}
		if id, ok := s.active[key]; ok {
			existing := s.requests[id]
			res.Kind = storage.ClaimConflict
			res.ExistingRequester = existing.RequestedByName
			res.ExistingDate = existing.RequestDate
			out = append(out, res)
			continue
		}

		s.nextID++
		req := &models.InspectionRequest{
			ID:              s.nextID,
			AssemblyCode:    c.AssemblyCode,
			Stage:           c.Stage,
			Status:          models.RequestPending,
			RequestedBy:     c.RequestedBy,
			RequestedByName: c.RequestedByName,
			RequestDate:     c.RequestDate.UTC(),
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		s.requests[req.ID] = req
		s.active[key] = req.ID

		res.Kind = storage.ClaimAccepted
		res.Request = copyRequest(req)
		out = append(out, res)
	}
	return out, nil
}

// txWriter stages assembly writes until the mutation succeeds.
type txWriter struct {
	base   map[string]*models.AssemblyRecord
	staged map[string]*models.AssemblyRecord
	now    time.Time
}

func (w *txWriter) view(code string) (*models.AssemblyRecord, bool) {
	if a, ok := w.staged[code]; ok {
		return a, true
	}
	a, ok := w.base[code]
	if !ok {
		return nil, false
	}
	cp := copyAssembly(a)
	w.staged[code] = cp
	return cp, true
}

func (w *txWriter) GetAssembly(ctx context.Context, code string) (*models.AssemblyRecord, error) {
	a, ok := w.view(code)
	if !ok {
		return nil, apperr.NotFound("assembly %s", code)
	}
	return copyAssembly(a), nil
}

func (w *txWriter) SetStageDate(ctx context.Context, code string, stage stages.ID, date *time.Time) (int64, error) {
	if _, ok := w.view(code); !ok {
		return 0, nil
	}
	return setStageDate(w.staged, code, stage, date, w.now)
}

func (s *Storage) MutateRequest(ctx context.Context, id uint64, fn storage.RequestMutation) (*models.InspectionRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.requests[id]
	if !ok {
		return nil, apperr.NotFound("inspection request %d", id)
	}

	now := s.now()
	req := copyRequest(cur)
	w := &txWriter{base: s.assemblies, staged: map[string]*models.AssemblyRecord{}, now: now}
	if err := fn(ctx, req, w); err != nil {
		return nil, err
	}

	key := activeKey{code: cur.AssemblyCode, stage: cur.Stage}
	if req.Active() && !cur.Active() {
		if other, taken := s.active[key]; taken && other != id {
			return nil, apperr.Conflict("assembly %s stage %s already has an active request", cur.AssemblyCode, cur.Stage)
		}
	}

	for code, a := range w.staged {
		s.assemblies[code] = a
	}
	req.UpdatedAt = now
	s.requests[id] = req
	switch {
	case req.Active():
		s.active[key] = id
	case s.active[key] == id:
		delete(s.active, key)
	}
	return copyRequest(req), nil
}

func (s *Storage) GetRequest(ctx context.Context, id uint64) (*models.InspectionRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return nil, apperr.NotFound("inspection request %d", id)
	}
	return copyRequest(r), nil
}

func (s *Storage) ListRequests(ctx context.Context, f models.RequestFilter) ([]*models.InspectionRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	excluded := make(map[models.RequestStatus]struct{}, len(f.ExcludeStatuses))
	for _, st := range f.ExcludeStatuses {
		excluded[st] = struct{}{}
	}

	out := []*models.InspectionRequest{}
	for _, r := range s.requests {
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if f.Stage != "" && r.Stage != f.Stage {
			continue
		}
		if f.AssemblyCode != "" && r.AssemblyCode != f.AssemblyCode {
			continue
		}
		if f.RequestedBy != nil && r.RequestedBy != *f.RequestedBy {
			continue
		}
		if _, ok := excluded[r.Status]; ok {
			continue
		}
		out = append(out, copyRequest(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })

	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	offset := max(f.Offset, 0)
	if offset >= len(out) {
		return []*models.InspectionRequest{}, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Storage) DeleteRequest(ctx context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return apperr.NotFound("inspection request %d", id)
	}
	key := activeKey{code: r.AssemblyCode, stage: r.Stage}
	if s.active[key] == id {
		delete(s.active, key)
	}
	delete(s.requests, id)
	return nil
}
