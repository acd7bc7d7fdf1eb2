// Package backend serves a local data source over HTTP using the same
// parameter and response contract the server data source consumes.
package backend

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cristianoliveira/tablesource/internal/logging"
	"github.com/cristianoliveira/tablesource/internal/metrics"
	"github.com/cristianoliveira/tablesource/internal/row"
	"github.com/cristianoliveira/tablesource/internal/search"
	"github.com/cristianoliveira/tablesource/internal/source"
)

// Response is the JSON body of GET/POST /rows.
type Response struct {
	Data  []row.Row `json:"data"`
	Total int       `json:"total"`
}

// Config configures the handler.
type Config struct {
	// Params names the request parameters. Only the key fields are used.
	Params source.ServerConfig
	// Match is the filter predicate. Defaults to search.DefaultPredicate().
	Match search.Predicate
	// Gatherer enables GET /metrics when set.
	Gatherer prometheus.Gatherer
	// Metrics counts served requests. nil disables counting.
	Metrics *metrics.Metrics
	Logger  logging.Logger
}

type handler struct {
	src     *source.Local
	params  source.ServerConfig
	match   search.Predicate
	metrics *metrics.Metrics
	logger  logging.Logger
}

// NewRouter returns the HTTP routes serving src.
func NewRouter(src *source.Local, cfg Config) http.Handler {
	params := cfg.Params
	defaults := source.DefaultServerConfig()
	if params.SortFieldKey == "" {
		params.SortFieldKey = defaults.SortFieldKey
	}
	if params.SortDirKey == "" {
		params.SortDirKey = defaults.SortDirKey
	}
	if params.FilterFieldKey == "" {
		params.FilterFieldKey = defaults.FilterFieldKey
	}
	if params.PagerPageKey == "" {
		params.PagerPageKey = defaults.PagerPageKey
	}
	if params.PagerLimitKey == "" {
		params.PagerLimitKey = defaults.PagerLimitKey
	}

	h := &handler{
		src:     src,
		params:  params,
		match:   cfg.Match,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}
	if h.match == nil {
		h.match = search.DefaultPredicate()
	}
	if h.logger == nil {
		h.logger = logging.Noop()
	}
	h.logger = h.logger.With("component", "backend")

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.Recoverer,
		h.logRequests,
	)

	r.Get("/healthz", h.healthz)
	r.Get("/rows", h.rows)
	r.Post("/rows", h.rows)
	if cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func (h *handler) rows(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	snap, err := ParseQuery(h.params, r.Form, h.match)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	page, total := h.src.Query(snap)
	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	h.writeJSON(w, http.StatusOK, Response{Data: page, Total: total})
}

func (h *handler) healthz(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *handler) writeError(w http.ResponseWriter, status int, err error) {
	msg := err.Error()
	if errors.Is(err, ErrBadRequest) {
		h.logger.Debug("rejected request", "error", msg)
	}
	h.writeJSON(w, status, map[string]string{"error": msg})
}

func (h *handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		h.metrics.ObserveRequest(route, ww.Status())
		h.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
