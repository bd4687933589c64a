package fabapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/BearBump/FabTrack/internal/cache/rediscache"
	"github.com/BearBump/FabTrack/internal/models"
	"github.com/BearBump/FabTrack/internal/services/inspections"
	"github.com/BearBump/FabTrack/internal/services/progress"
	"github.com/BearBump/FabTrack/internal/services/rollback"
	"github.com/BearBump/FabTrack/internal/stages"
	"github.com/BearBump/FabTrack/internal/storage/memfab"
	"github.com/alicebob/miniredis/v2"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
)

const (
	requesterID int64 = 1
	approverID  int64 = 2
	confirmerID int64 = 3
	adminID     int64 = 5
	inactiveID  int64 = 8
	otherID     int64 = 9
)

type APISuite struct {
	suite.Suite

	mr     *miniredis.Miniredis
	rdb    *redis.Client
	st     *memfab.Storage
	api    *API
	router http.Handler
}

func (s *APISuite) SetupTest() {
	s.mr = miniredis.RunT(s.T())
	s.rdb = redis.NewClient(&redis.Options{Addr: s.mr.Addr()})
	s.T().Cleanup(func() { _ = s.rdb.Close() })

	s.st = memfab.New()
	for _, u := range []models.User{
		{ID: requesterID, Username: "lee", PermissionLevel: models.LevelRequester, IsActive: true},
		{ID: otherID, Username: "jung", PermissionLevel: models.LevelRequester, IsActive: true},
		{ID: approverID, Username: "choi", PermissionLevel: models.LevelApprover, IsActive: true},
		{ID: confirmerID, Username: "park", PermissionLevel: models.LevelConfirmer, IsActive: true},
		{ID: adminID, Username: "admin", PermissionLevel: models.LevelAdmin, IsActive: true},
		{ID: inactiveID, Username: "gone", PermissionLevel: models.LevelAdmin, IsActive: false},
	} {
		s.st.AddUser(u)
	}
	_, err := s.st.UpsertAssemblies(context.Background(), []models.AssemblyInput{
		{AssemblyCode: "A1", Pipeline: stages.Pipeline7},
		{AssemblyCode: "A2", Pipeline: stages.Pipeline7},
	})
	s.Require().NoError(err)

	prog := progress.New(s.st, rediscache.NewWithClient(s.rdb), time.Minute)
	svc := inspections.New(s.st, rollback.New(s.st)).WithProgress(prog)
	s.api = New(svc, prog, s.st, s.st)
	s.router = s.api.Routes()
}

func (s *APISuite) do(method, path string, user int64, body any) (*httptest.ResponseRecorder, map[string]any) {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != 0 {
		req.Header.Set(UserHeader, strconv.FormatInt(user, 10))
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
	}
	return rec, out
}

func (s *APISuite) createOne(code, stage string) uint64 {
	rec, out := s.do(http.MethodPost, "/api/v1/inspection-requests", requesterID, map[string]any{
		"assembly_codes": []string{code},
		"stage":          stage,
		"request_date":   "2024-01-10",
	})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	inserted := out["inserted"].([]any)
	return uint64(inserted[0].(map[string]any)["id"].(float64))
}

func reqPath(id uint64, action string) string {
	p := "/api/v1/inspection-requests/" + strconv.FormatUint(id, 10)
	if action != "" {
		p += "/" + action
	}
	return p
}

func (s *APISuite) TestHealthAndReady() {
	rec, _ := s.do(http.MethodGet, "/healthz", 0, nil)
	s.Equal(http.StatusOK, rec.Code)

	rec, _ = s.do(http.MethodGet, "/readyz", 0, nil)
	s.Equal(http.StatusOK, rec.Code)

	s.api.WithReadyCheck("postgres", func(context.Context) error { return errors.New("down") })
	rec, out := s.do(http.MethodGet, "/readyz", 0, nil)
	s.Equal(http.StatusServiceUnavailable, rec.Code)
	s.Equal("down", out["checks"].(map[string]any)["postgres"])
}

func (s *APISuite) TestAuthentication() {
	rec, _ := s.do(http.MethodGet, "/api/v1/rollback-reasons", 0, nil)
	s.Equal(http.StatusUnauthorized, rec.Code)

	rec, _ = s.do(http.MethodGet, "/api/v1/rollback-reasons", 777, nil)
	s.Equal(http.StatusUnauthorized, rec.Code)

	rec, out := s.do(http.MethodGet, "/api/v1/rollback-reasons", inactiveID, nil)
	s.Equal(http.StatusForbidden, rec.Code)
	s.Equal("permission", out["code"])

	req := httptest.NewRequest(http.MethodGet, "/api/v1/rollback-reasons", nil)
	req.Header.Set(UserHeader, "abc")
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	s.Equal(http.StatusUnauthorized, rr.Code)
}

func (s *APISuite) TestRollbackReasons() {
	rec, out := s.do(http.MethodGet, "/api/v1/rollback-reasons", requesterID, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Len(out["items"], len(models.RollbackReasons))
}

func (s *APISuite) TestFullLifecycle() {
	id := s.createOne("A1", "FIT_UP")

	// повторная заявка на ту же стадию
	rec, out := s.do(http.MethodPost, "/api/v1/inspection-requests", otherID, map[string]any{
		"assembly_codes": []string{"A1", "NOPE"},
		"stage":          "fit-up",
		"request_date":   "2024-01-11",
	})
	s.Require().Equal(http.StatusOK, rec.Code)
	s.EqualValues(0, out["inserted_count"])
	dups := out["duplicate_items"].([]any)
	s.Require().Len(dups, 1)
	s.Equal("2024-01-10", dups[0].(map[string]any)["existing_date"])
	s.Len(out["skipped_items"], 1)

	rec, out = s.do(http.MethodPut, reqPath(id, "approve"), approverID, nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.Equal("APPROVED", out["status"])

	rec, out = s.do(http.MethodPut, reqPath(id, "confirm")+"?lang=ko", confirmerID, map[string]any{"confirmed_date": "2024-01-15"})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.Equal("CONFIRMED", out["status"])
	s.Equal("확정됨", out["status_label"])
	s.Equal("2024-01-15", out["confirmed_date"])

	rec, out = s.do(http.MethodGet, "/api/v1/assemblies/A1/progress?lang=ko", requesterID, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal("IN_PROGRESS", out["status"])
	s.Equal("진행중", out["status_label"])
	s.Equal("FIT_UP", out["last_completed_stage"])
	s.Equal("NDE", out["next_stage"])

	rec, _ = s.do(http.MethodPut, reqPath(id, "rollback"), confirmerID, map[string]any{})
	s.Equal(http.StatusBadRequest, rec.Code)

	rec, out = s.do(http.MethodPut, reqPath(id, "rollback"), confirmerID, map[string]any{"rollback_reason_id": 1, "note": "bad weld"})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.Equal("CANCELLED", out["status"])
	s.EqualValues(1, out["rollback_reason_id"])

	rec, out = s.do(http.MethodGet, "/api/v1/assemblies/A1/progress", requesterID, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal("WAITING", out["status"])
	s.Equal("Waiting", out["status_label"])

	// после отмены стадию можно запросить снова
	s.createOne("A1", "FIT_UP")
}

func (s *APISuite) TestErrorMapping() {
	id := s.createOne("A2", "NDE")

	cases := []struct {
		name   string
		method string
		path   string
		user   int64
		body   any
		status int
	}{
		{"unknown stage", http.MethodPost, "/api/v1/inspection-requests", requesterID,
			map[string]any{"assembly_codes": []string{"A2"}, "stage": "WELD", "request_date": "2024-01-01"}, http.StatusBadRequest},
		{"bad date", http.MethodPost, "/api/v1/inspection-requests", requesterID,
			map[string]any{"assembly_codes": []string{"A2"}, "stage": "NDE", "request_date": "10.01.2024"}, http.StatusBadRequest},
		{"no codes", http.MethodPost, "/api/v1/inspection-requests", requesterID,
			map[string]any{"assembly_codes": []string{}, "stage": "NDE", "request_date": "2024-01-01"}, http.StatusBadRequest},
		{"bad id", http.MethodGet, "/api/v1/inspection-requests/x", requesterID, nil, http.StatusBadRequest},
		{"not found", http.MethodGet, reqPath(999, ""), approverID, nil, http.StatusNotFound},
		{"approve as requester", http.MethodPut, reqPath(id, "approve"), requesterID, nil, http.StatusForbidden},
		{"confirm pending", http.MethodPut, reqPath(id, "confirm"), confirmerID,
			map[string]any{"confirmed_date": "2024-01-12"}, http.StatusConflict},
		{"foreign request", http.MethodGet, reqPath(id, ""), otherID, nil, http.StatusForbidden},
		{"bad status filter", http.MethodGet, "/api/v1/inspection-requests?status=LOST", approverID, nil, http.StatusBadRequest},
		{"unknown assembly", http.MethodGet, "/api/v1/assemblies/ZZZ/progress", requesterID, nil, http.StatusNotFound},
		{"purge as requester", http.MethodDelete, reqPath(id, ""), requesterID, nil, http.StatusForbidden},
	}
	for _, tc := range cases {
		rec, _ := s.do(tc.method, tc.path, tc.user, tc.body)
		s.Equal(tc.status, rec.Code, "%s: %s", tc.name, rec.Body.String())
	}
}

func (s *APISuite) TestCancelAndReject() {
	id := s.createOne("A1", "FIT_UP")
	rec, out := s.do(http.MethodPut, reqPath(id, "reject"), approverID, nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.Equal("REJECTED", out["status"])
	s.Equal("rejected", out["reject_reason"])

	id = s.createOne("A2", "FIT_UP")
	rec, out = s.do(http.MethodPut, reqPath(id, "cancel"), requesterID, nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.Equal("CANCELLED", out["status"])
}

func (s *APISuite) TestListVisibility() {
	mine := s.createOne("A1", "FIT_UP")
	_, err := s.api.requests.CreateRequests(context.Background(), []string{"A2"}, stages.FitUp,
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), models.Actor{UserID: otherID, Level: models.LevelRequester})
	s.Require().NoError(err)

	rec, out := s.do(http.MethodGet, "/api/v1/inspection-requests", requesterID, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	items := out["items"].([]any)
	s.Require().Len(items, 1)
	s.EqualValues(mine, items[0].(map[string]any)["id"])

	rec, out = s.do(http.MethodGet, "/api/v1/inspection-requests?stage=fit_up&status=pending", approverID, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Len(out["items"], 2)

	rec, out = s.do(http.MethodGet, "/api/v1/inspection-requests?assembly_code=A2", approverID, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Len(out["items"], 1)
}

func (s *APISuite) TestPurge() {
	id := s.createOne("A1", "FIT_UP")

	rec, _ := s.do(http.MethodDelete, reqPath(id, ""), adminID, nil)
	s.Equal(http.StatusNoContent, rec.Code)

	rec, _ = s.do(http.MethodGet, reqPath(id, ""), adminID, nil)
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *APISuite) TestWriteRateLimit() {
	s.api.WithRateLimit(rediscache.NewRateLimiterWithClient(s.rdb), 2)

	body := map[string]any{"assembly_codes": []string{"A1"}, "stage": "FIT_UP", "request_date": "2024-01-10"}
	rec, _ := s.do(http.MethodPost, "/api/v1/inspection-requests", requesterID, body)
	s.Equal(http.StatusCreated, rec.Code)
	rec, _ = s.do(http.MethodPost, "/api/v1/inspection-requests", requesterID, body)
	s.Equal(http.StatusOK, rec.Code)

	rec, out := s.do(http.MethodPost, "/api/v1/inspection-requests", requesterID, body)
	s.Equal(http.StatusTooManyRequests, rec.Code)
	s.Equal("rate_limited", out["code"])
	s.Equal("60", rec.Header().Get("Retry-After"))

	// чтение не лимитируется, другой пользователь тоже
	rec, _ = s.do(http.MethodGet, "/api/v1/inspection-requests", requesterID, nil)
	s.Equal(http.StatusOK, rec.Code)
	rec, _ = s.do(http.MethodPost, "/api/v1/inspection-requests", otherID, body)
	s.Equal(http.StatusOK, rec.Code)

	s.mr.FastForward(time.Minute + time.Second)
	rec, _ = s.do(http.MethodPost, "/api/v1/inspection-requests", requesterID, body)
	s.Equal(http.StatusOK, rec.Code)
}

func (s *APISuite) TestRateLimiterDownFailsOpen() {
	s.api.WithRateLimit(rediscache.NewRateLimiterWithClient(s.rdb), 1)
	s.mr.Close()

	body := map[string]any{"assembly_codes": []string{"A1"}, "stage": "FIT_UP", "request_date": "2024-01-10"}
	rec, _ := s.do(http.MethodPost, "/api/v1/inspection-requests", requesterID, body)
	s.Equal(http.StatusCreated, rec.Code)
}

func TestAPISuite(t *testing.T) {
	suite.Run(t, new(APISuite))
}
