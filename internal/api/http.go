// Package api exposes the REST surface of the vault: bundle uploads, asset
// metadata, and the streaming path.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/your-org/streamvault/internal/asset"
	"github.com/your-org/streamvault/internal/auth"
	"github.com/your-org/streamvault/internal/ingest"
	"github.com/your-org/streamvault/internal/stream"
	"github.com/your-org/streamvault/pkg/metrics"
	"github.com/your-org/streamvault/pkg/storage/objectstore"
)

// Handler exposes REST endpoints for the vault.
type Handler struct {
	service *ingest.Service
	streams *stream.Server
	store   asset.Store
	mirror  objectstore.Client
	logger  *zap.Logger
	metrics *metrics.Metrics

	maxBundleBytes int64
	formMemBytes   int64
	jwtSecret      []byte

	router chi.Router
}

// Params wires the handler's collaborators. Mirror may be nil.
type Params struct {
	Service        *ingest.Service
	Streams        *stream.Server
	Store          asset.Store
	Mirror         objectstore.Client
	Logger         *zap.Logger
	Metrics        *metrics.Metrics
	MaxBundleBytes int64
	FormMemBytes   int64
	JWTSecret      []byte
}

// NewHandler constructs the HTTP handler and wires routes.
func NewHandler(p Params) *Handler {
	h := &Handler{
		service:        p.Service,
		streams:        p.Streams,
		store:          p.Store,
		mirror:         p.Mirror,
		logger:         p.Logger,
		metrics:        p.Metrics,
		maxBundleBytes: p.MaxBundleBytes,
		formMemBytes:   p.FormMemBytes,
		jwtSecret:      p.JWTSecret,
	}
	h.buildRouter()
	return h
}

func (h *Handler) buildRouter() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))

	r.Get("/health", h.handleHealth)

	r.Route("/api/v1/videos", func(r chi.Router) {
		// The streaming path carries no credentials: players fetch playlist
		// and segments with plain GETs.
		r.With(h.metrics.Middleware("stream")).
			Get("/{id}/stream/{filename}", h.handleStream)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(h.jwtSecret))
			r.With(h.metrics.Middleware("upload")).Post("/", h.handleUpload)
			r.With(h.metrics.Middleware("videos")).Get("/", h.handleList)
			r.With(h.metrics.Middleware("videos")).Get("/{id}", h.handleGet)
			r.With(h.metrics.Middleware("videos")).Put("/{id}", h.handleUpdate)
			r.With(h.metrics.Middleware("videos")).Delete("/{id}", h.handleDelete)
			r.With(h.metrics.Middleware("thumbnail")).Get("/{id}/thumbnail", h.handleThumbnail)
		})
	})

	h.router = r
}

// Router exposes the configured chi router.
func (h *Handler) Router() http.Handler {
	return h.router
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "down",
			"metadata": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
