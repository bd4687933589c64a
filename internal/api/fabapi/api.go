package fabapi

import (
	"context"
	"net/http"
	"time"

	"github.com/BearBump/FabTrack/internal/models"
	"github.com/BearBump/FabTrack/internal/services/inspections"
	"github.com/BearBump/FabTrack/internal/services/progress"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type UserRepository interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
}

type ReasonRepository interface {
	ListRollbackReasons(ctx context.Context) ([]models.RollbackReason, error)
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

// ReadyCheck is one dependency probe for /readyz.
type ReadyCheck func(ctx context.Context) error

type API struct {
	requests *inspections.Service
	progress *progress.Service
	users    UserRepository
	reasons  ReasonRepository

	limiter    RateLimiter
	writeLimit int64

	ready map[string]ReadyCheck
}

func New(requests *inspections.Service, prog *progress.Service, users UserRepository, reasons ReasonRepository) *API {
	return &API{
		requests: requests,
		progress: prog,
		users:    users,
		reasons:  reasons,
		ready:    map[string]ReadyCheck{},
	}
}

// WithRateLimit limits write calls per user and minute; perMinute <= 0 disables it.
func (a *API) WithRateLimit(l RateLimiter, perMinute int) *API {
	a.limiter = l
	a.writeLimit = int64(perMinute)
	return a
}

func (a *API) WithReadyCheck(name string, c ReadyCheck) *API {
	a.ready[name] = c
	return a
}

func (a *API) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", a.healthz)
	r.Get("/readyz", a.readyz)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(a.authenticate)

		r.Get("/rollback-reasons", a.listRollbackReasons)
		r.Get("/assemblies/{code}/progress", a.getProgress)

		r.Route("/inspection-requests", func(r chi.Router) {
			r.Get("/", a.listRequests)
			r.With(a.limitWrites).Post("/", a.createRequests)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", a.getRequest)

				r.Group(func(r chi.Router) {
					r.Use(a.limitWrites)
					r.Put("/approve", a.approveRequest)
					r.Put("/reject", a.rejectRequest)
					r.Put("/confirm", a.confirmRequest)
					r.Put("/cancel", a.cancelRequest)
					r.Put("/rollback", a.rollbackRequest)
					r.Delete("/", a.purgeRequest)
				})
			})
		})
	})
	return r
}

func (a *API) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(a.ready))
	for name, c := range a.ready {
		if err := c(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	writeJSON(w, status, map[string]any{"checks": checks})
}
