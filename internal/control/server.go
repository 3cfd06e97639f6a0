// Package control serves the HTTP control API over an engine.Orchestrator.
//
// Routes:
//
//	GET    /health
//	GET    /status
//	POST   /sync
//	POST   /network/{state}            state: online | offline
//	POST   /mutations
//	GET    /records/{table}
//	POST   /records/{table}/refresh
//	GET    /quarantine
//	DELETE /quarantine
//	POST   /quarantine/{id}/retry
//	DELETE /quarantine/{id}
//	GET    /metrics                    when metrics are configured
package control

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/roach88/fieldsync/internal/engine"
	"github.com/roach88/fieldsync/internal/metrics"
	"github.com/roach88/fieldsync/internal/remote"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Router wraps the mux router and the orchestrator it controls.
type Router struct {
	*mux.Router
	orch    *engine.Orchestrator
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithMetrics serves m at /metrics and refreshes its gauges on /status.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Router) {
		r.metrics = m
	}
}

// WithLogger sets the request logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) {
		r.logger = l
	}
}

// NewRouter creates the control API router.
func NewRouter(o *engine.Orchestrator, opts ...Option) *Router {
	r := &Router{
		Router: mux.NewRouter(),
		orch:   o,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.HandleFunc("/health", r.health).Methods(http.MethodGet)
	r.HandleFunc("/status", r.status).Methods(http.MethodGet)
	r.HandleFunc("/sync", r.sync).Methods(http.MethodPost)
	r.HandleFunc("/network/{state:online|offline}", r.network).Methods(http.MethodPost)
	r.HandleFunc("/mutations", r.enqueue).Methods(http.MethodPost)

	records := r.PathPrefix("/records").Subrouter()
	records.HandleFunc("/{table}", r.readRecords).Methods(http.MethodGet)
	records.HandleFunc("/{table}/refresh", r.refreshRecords).Methods(http.MethodPost)

	q := r.PathPrefix("/quarantine").Subrouter()
	q.HandleFunc("", r.listQuarantine).Methods(http.MethodGet)
	q.HandleFunc("", r.clearQuarantine).Methods(http.MethodDelete)
	q.HandleFunc("/{id}/retry", r.retryQuarantined).Methods(http.MethodPost)
	q.HandleFunc("/{id}", r.deleteQuarantined).Methods(http.MethodDelete)

	if r.metrics != nil {
		r.Handle("/metrics", r.metrics.Handler()).Methods(http.MethodGet)
	}
	r.Use(r.logRequests)
	return r
}

func (r *Router) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		r.logger.Debug("control request", "method", req.Method, "path", req.URL.Path)
		next.ServeHTTP(w, req)
	})
}

func (r *Router) health(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (r *Router) status(w http.ResponseWriter, req *http.Request) {
	st, err := r.orch.Status(req.Context())
	if err != nil {
		r.respondErr(w, err)
		return
	}
	if r.metrics != nil {
		r.metrics.ObserveStatus(st)
	}
	respondJSON(w, http.StatusOK, st)
}

func (r *Router) sync(w http.ResponseWriter, req *http.Request) {
	result, err := r.orch.TriggerSync(req.Context())
	if err != nil {
		r.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, passResponse(result))
}

func (r *Router) network(w http.ResponseWriter, req *http.Request) {
	online := mux.Vars(req)["state"] == "online"
	result, err := r.orch.SetOnline(req.Context(), online)
	if err != nil {
		r.respondErr(w, err)
		return
	}
	body := map[string]any{"online": online}
	if result != nil {
		body["pass"] = passResponse(result)
	}
	respondJSON(w, http.StatusOK, body)
}

func (r *Router) enqueue(w http.ResponseWriter, req *http.Request) {
	var m engine.Mutation
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		respondError(w, http.StatusBadRequest, "invalid mutation body: "+err.Error())
		return
	}
	entry, err := r.orch.Enqueue(req.Context(), m)
	if err != nil {
		r.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, entry)
}

func (r *Router) readRecords(w http.ResponseWriter, req *http.Request) {
	items, err := r.orch.CombinedRead(req.Context(), mux.Vars(req)["table"])
	if err != nil {
		r.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, items)
}

func (r *Router) refreshRecords(w http.ResponseWriter, req *http.Request) {
	table := mux.Vars(req)["table"]
	n, err := r.orch.RefreshCache(req.Context(), table)
	if err != nil {
		r.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"table": table, "rows": n})
}

func (r *Router) listQuarantine(w http.ResponseWriter, req *http.Request) {
	entries, err := r.orch.ListQuarantined(req.Context())
	if err != nil {
		r.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

func (r *Router) clearQuarantine(w http.ResponseWriter, req *http.Request) {
	n, err := r.orch.ClearQuarantine(req.Context())
	if err != nil {
		r.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"removed": n})
}

func (r *Router) retryQuarantined(w http.ResponseWriter, req *http.Request) {
	result, err := r.orch.RetryQuarantined(req.Context(), mux.Vars(req)["id"])
	if err != nil {
		r.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, passResponse(result))
}

func (r *Router) deleteQuarantined(w http.ResponseWriter, req *http.Request) {
	if err := r.orch.DeleteQuarantined(req.Context(), mux.Vars(req)["id"]); err != nil {
		r.respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// passBody adds the auth error text, which PassResult omits from JSON.
type passBody struct {
	*engine.PassResult
	AuthError string `json:"auth_error,omitempty"`
}

func passResponse(r *engine.PassResult) passBody {
	b := passBody{PassResult: r}
	if r.AuthError != nil {
		b.AuthError = r.AuthError.Error()
	}
	return b
}

func (r *Router) respondErr(w http.ResponseWriter, err error) {
	var re *remote.Error
	switch {
	case engine.IsInvalidMutationError(err):
		respondError(w, http.StatusBadRequest, err.Error())
	case engine.IsNotFoundError(err):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &re):
		respondError(w, http.StatusBadGateway, err.Error())
	default:
		r.logger.Error("control request failed", "error", err)
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
