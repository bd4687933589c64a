package fabapi

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/BearBump/FabTrack/internal/apperr"
	"github.com/BearBump/FabTrack/internal/models"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
)

// UserHeader is set by the auth gateway in front of the API.
const UserHeader = "X-User-ID"

type actorKey struct{}

func actorFrom(ctx context.Context) models.Actor {
	a, _ := ctx.Value(actorKey{}).(models.Actor)
	return a
}

func (a *API) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(UserHeader)
		if raw == "" {
			writeError(w, r, errUnauthenticated)
			return
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			writeError(w, r, errUnauthenticated)
			return
		}

		u, err := a.users.GetUser(r.Context(), id)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				writeError(w, r, errUnauthenticated)
				return
			}
			writeError(w, r, err)
			return
		}
		if !u.IsActive {
			writeError(w, r, apperr.Permission("user %d is inactive", id))
			return
		}

		ctx := context.WithValue(r.Context(), actorKey{}, u.Actor())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// limitWrites fails open: if Redis is down the write goes through.
func (a *API) limitWrites(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.limiter == nil || a.writeLimit <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		actor := actorFrom(r.Context())
		key := "write:" + strconv.FormatInt(actor.UserID, 10)

		ok, n, err := a.limiter.Allow(r.Context(), key, a.writeLimit, time.Minute)
		if err != nil {
			slog.WarnContext(r.Context(), "rate limiter unavailable", "err", err)
			next.ServeHTTP(w, r)
			return
		}
		if !ok {
			w.Header().Set("Retry-After", "60")
			writeError(w, r, errRateLimited)
			slog.InfoContext(r.Context(), "write rate limited", "actor", actor.UserID, "count", n)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.InfoContext(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
