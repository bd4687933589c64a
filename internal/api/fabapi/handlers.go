package fabapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BearBump/FabTrack/internal/apperr"
	"github.com/BearBump/FabTrack/internal/models"
	"github.com/BearBump/FabTrack/internal/stages"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

func lang(r *http.Request) string {
	if l := r.URL.Query().Get("lang"); l != "" {
		return strings.ToLower(l)
	}
	return "en"
}

func requestID(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.Validation("bad request id %q", chi.URLParam(r, "id"))
	}
	return id, nil
}

func decode(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return apperr.Validation("bad json body: %v", err)
	}
	return nil
}

func parseDay(field, v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, apperr.Validation("%s is required", field)
	}
	if t, err := time.Parse(dateLayout, v); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Time{}, apperr.Validation("%s: bad date %q, want YYYY-MM-DD", field, v)
}

func (a *API) createRequests(w http.ResponseWriter, r *http.Request) {
	var body createRequestsBody
	if err := decode(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	stage, ok := stages.ParseID(body.Stage)
	if !ok {
		writeError(w, r, apperr.Validation("unknown stage %q", body.Stage))
		return
	}
	day, err := parseDay("request_date", body.RequestDate)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := a.requests.CreateRequests(r.Context(), body.AssemblyCodes, stage, day, actorFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusCreated
	if res.InsertedCount == 0 {
		status = http.StatusOK
	}
	writeJSON(w, status, toCreateResultDTO(res, lang(r)))
}

func (a *API) listRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f models.RequestFilter

	if v := q.Get("status"); v != "" {
		st, ok := models.ParseRequestStatus(v)
		if !ok {
			writeError(w, r, apperr.Validation("unknown status %q", v))
			return
		}
		f.Status = st
	}
	if v := q.Get("stage"); v != "" {
		id, ok := stages.ParseID(v)
		if !ok {
			writeError(w, r, apperr.Validation("unknown stage %q", v))
			return
		}
		f.Stage = id
	}
	f.AssemblyCode = strings.TrimSpace(q.Get("assembly_code"))
	for name, dst := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
		if v := q.Get(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				writeError(w, r, apperr.Validation("bad %s %q", name, v))
				return
			}
			*dst = n
		}
	}

	rs, err := a.requests.List(r.Context(), f, actorFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": toRequestDTOs(rs, lang(r))})
}

func (a *API) getRequest(w http.ResponseWriter, r *http.Request) {
	id, err := requestID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req, err := a.requests.Get(r.Context(), id, actorFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(req, lang(r)))
}

func (a *API) approveRequest(w http.ResponseWriter, r *http.Request) {
	id, err := requestID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req, err := a.requests.Approve(r.Context(), id, actorFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(req, lang(r)))
}

func (a *API) rejectRequest(w http.ResponseWriter, r *http.Request) {
	id, err := requestID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var body rejectBody
	if err := decode(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	req, err := a.requests.Reject(r.Context(), id, body.Reason, actorFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(req, lang(r)))
}

func (a *API) confirmRequest(w http.ResponseWriter, r *http.Request) {
	id, err := requestID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var body confirmBody
	if err := decode(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	day, err := parseDay("confirmed_date", body.ConfirmedDate)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req, err := a.requests.Confirm(r.Context(), id, day, actorFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(req, lang(r)))
}

func (a *API) cancelRequest(w http.ResponseWriter, r *http.Request) {
	id, err := requestID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var body cancelBody
	if err := decode(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	req, err := a.requests.Cancel(r.Context(), id, actorFrom(r.Context()), body.RollbackReasonID, body.Note)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(req, lang(r)))
}

func (a *API) rollbackRequest(w http.ResponseWriter, r *http.Request) {
	id, err := requestID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var body cancelBody
	if err := decode(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	if body.RollbackReasonID == nil {
		writeError(w, r, apperr.Validation("rollback_reason_id is required"))
		return
	}
	req, err := a.requests.Rollback(r.Context(), id, actorFrom(r.Context()), *body.RollbackReasonID, body.Note)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(req, lang(r)))
}

func (a *API) purgeRequest(w http.ResponseWriter, r *http.Request) {
	id, err := requestID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := a.requests.Purge(r.Context(), id, actorFrom(r.Context())); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) getProgress(w http.ResponseWriter, r *http.Request) {
	v, err := a.progress.GetProgress(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, progressDTO{View: v, StatusLabel: v.Status.Label(lang(r))})
}

func (a *API) listRollbackReasons(w http.ResponseWriter, r *http.Request) {
	rs, err := a.reasons.ListRollbackReasons(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]rollbackReasonDTO, 0, len(rs))
	for _, rr := range rs {
		out = append(out, rollbackReasonDTO(rr))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}
