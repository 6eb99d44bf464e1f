// Package httpapi exposes the hypothesis lifecycle service over a JSON HTTP
// API rooted at /api/v1.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"hadilab/internal/core"
	"hadilab/pkg/domain"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ActorHeader carries the acting user ID on every request. Authentication is
// handled upstream; the header only names an already authenticated user.
const ActorHeader = "X-Actor-ID"

// UserLookup resolves stored users by ID.
type UserLookup interface {
	GetUser(ctx context.Context, id string) (core.User, error)
}

// ActorResolver maps a request onto the acting user. A nil user with a nil
// error means the request is anonymous and the service rejects it.
type ActorResolver interface {
	ResolveActor(r *http.Request) (*core.User, error)
}

// HeaderActorResolver reads the actor ID from a request header.
type HeaderActorResolver struct {
	Users  UserLookup
	Header string
}

// ResolveActor implements ActorResolver. Unknown IDs resolve to no actor.
func (h HeaderActorResolver) ResolveActor(r *http.Request) (*core.User, error) {
	header := h.Header
	if header == "" {
		header = ActorHeader
	}
	id := r.Header.Get(header)
	if id == "" {
		return nil, nil
	}
	user, err := h.Users.GetUser(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Handler serves the HTTP API.
type Handler struct {
	Service  *core.Service
	Actors   ActorResolver
	Gatherer prometheus.Gatherer
	Logger   core.Logger

	router chi.Router
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithActorResolver replaces the default header resolver.
func WithActorResolver(r ActorResolver) HandlerOption {
	return func(h *Handler) { h.Actors = r }
}

// WithGatherer exposes the gatherer on GET /metrics.
func WithGatherer(g prometheus.Gatherer) HandlerOption {
	return func(h *Handler) { h.Gatherer = g }
}

// WithHandlerLogger enables access logging and reports resolution failures.
func WithHandlerLogger(l core.Logger) HandlerOption {
	return func(h *Handler) { h.Logger = l }
}

// NewHandler constructs the API handler for svc.
func NewHandler(svc *core.Service, opts ...HandlerOption) *Handler {
	h := &Handler{Service: svc}
	for _, opt := range opts {
		opt(h)
	}
	if h.Actors == nil {
		h.Actors = HeaderActorResolver{Users: svc}
	}
	h.router = h.routes()
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if h.Logger != nil {
		r.Use(h.accessLog)
	}
	r.Use(middleware.Recoverer)

	if h.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(h.Gatherer, promhttp.HandlerOpts{}))
	}
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(h.resolveActor)

		api.Get("/openapi.yaml", handleOpenAPI)
		api.Get("/users", h.handleListUsers)
		api.Post("/users", h.handleCreateUser)

		api.Get("/ideas", h.handleListIdeas)
		api.Post("/ideas", h.handleCreateIdea)
		api.Get("/ideas/{id}", h.handleGetIdea)
		api.Delete("/ideas/{id}", h.handleDeleteIdea)

		api.Route("/hypotheses", func(hr chi.Router) {
			hr.Get("/", h.handleListHypotheses)
			hr.Post("/", h.handleCreateHypothesis)
			hr.Get("/{id}", h.handleGetHypothesis)
			hr.Delete("/{id}", h.handleDeleteHypothesis)

			hr.Get("/{id}/transitions", h.handleListTransitions)
			hr.Post("/{id}/transitions", h.handleRequestTransition)

			hr.Get("/{id}/ice-scores", h.handleListIceScores)
			hr.Post("/{id}/ice-scores", h.handleAddIceScore)
			hr.Get("/{id}/ice-summary", h.handleIceSummary)
			hr.Put("/{id}/rice", h.handleUpdateRice)
			hr.Put("/{id}/desk-research", h.handleUpdateDeskResearch)
			hr.Get("/{id}/success-criteria", h.handleListCriteria(domain.OwnerHypothesis))
			hr.Put("/{id}/success-criteria", h.handleReplaceCriteria(domain.OwnerHypothesis))

			hr.Get("/{id}/experiments", h.handleListExperiments)
			hr.Post("/{id}/experiments", h.handleCreateExperiment)

			hr.Get("/{id}/history-exports", h.handleListHistoryExports)
			hr.Post("/{id}/history-exports", h.handleExportHistory)
		})

		api.Route("/experiments/{id}", func(er chi.Router) {
			er.Get("/", h.handleGetExperiment)
			er.Post("/status", h.handleExperimentStatus)
			er.Get("/results", h.handleListExperimentResults)
			er.Post("/results", h.handleRecordExperimentResult)
			er.Get("/success-criteria", h.handleListCriteria(domain.OwnerExperiment))
			er.Put("/success-criteria", h.handleReplaceCriteria(domain.OwnerExperiment))
		})

		api.Get("/activities", h.handleListActivities)
		api.Get("/history-exports/*", h.handleGetHistoryExport)
	})
	return r
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.Logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

type actorKey struct{}

func (h *Handler) resolveActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, err := h.Actors.ResolveActor(r)
		if err != nil {
			if h.Logger != nil {
				h.Logger.Error("actor resolution failed", "request_id", middleware.GetReqID(r.Context()), "error", err)
			}
			writeError(w, http.StatusInternalServerError, "actor resolution failed")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey{}, actor)))
	})
}

// actorFrom returns the resolved actor, nil when anonymous.
func actorFrom(r *http.Request) *core.User {
	u, _ := r.Context().Value(actorKey{}).(*core.User)
	return u
}

const emptyBodySentinel = "EOF"

// decode reads a JSON body. An empty body leaves dst untouched.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst)
	if err != nil && err.Error() != emptyBodySentinel {
		writeError(w, http.StatusBadRequest, "invalid request payload")
		return false
	}
	return true
}

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
