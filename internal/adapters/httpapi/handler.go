// Package httpapi exposes the record service over JSON HTTP.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"pokedex/pkg/domain"
)

// Response messages.
const (
	MessageNotFound       = "Pokemon not found"
	MessageDeleteNotFound = "The pokemon you want to delete does not exist"
	MessageDeleted        = "Pokemon deleted successfully"
	MessageUpdated        = "Pokemon updated successfully"
	MessageInternal       = "internal error"
)

// Prefixes under which the record routes are mounted.
var Prefixes = []string{"/records", "/pokemons"}

// RecordService is the subset of core.Service the handlers call.
type RecordService interface {
	List(ctx context.Context, filter domain.Filter) (domain.Collection, error)
	Get(ctx context.Context, id int) (domain.Pokemon, error)
	Create(ctx context.Context, candidate domain.Pokemon) (domain.Entry, error)
	Update(ctx context.Context, id int, replacement domain.Pokemon) (domain.Entry, error)
	Delete(ctx context.Context, id int) error
}

// Handler routes record requests to a RecordService.
type Handler struct {
	svc      RecordService
	logger   *zap.Logger
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	mux      *http.ServeMux
	root     http.Handler
}

// Option customizes a Handler.
type Option func(*Handler)

// WithLogger sets the access and error logger.
func WithLogger(logger *zap.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithRegistry serves /metrics from registry and counts requests into it.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(h *Handler) { h.registry = registry }
}

// NewHandler builds the routing table.
func NewHandler(svc RecordService, opts ...Option) (*Handler, error) {
	h := &Handler{svc: svc, logger: zap.NewNop(), mux: http.NewServeMux()}
	for _, opt := range opts {
		opt(h)
	}
	if h.registry != nil {
		requests, err := registerRequests(h.registry)
		if err != nil {
			return nil, err
		}
		h.requests = requests
		h.mux.Handle("GET /metrics", promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{}))
	}
	h.mux.HandleFunc("GET /healthz", h.handleHealth)
	for _, prefix := range Prefixes {
		h.mux.HandleFunc("GET "+prefix, h.handleList)
		h.mux.HandleFunc("GET "+prefix+"/{$}", h.handleList)
		h.mux.HandleFunc("POST "+prefix, h.handleCreate)
		h.mux.HandleFunc("POST "+prefix+"/{$}", h.handleCreate)
		h.mux.HandleFunc("GET "+prefix+"/{id}", h.handleGet)
		h.mux.HandleFunc("PUT "+prefix+"/update/{id}", h.handleUpdate)
		h.mux.HandleFunc("DELETE "+prefix+"/delete/{id}", h.handleDelete)
	}
	h.root = h.accessLog(h.mux)
	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.root.ServeHTTP(w, r)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	var filter domain.Filter
	q := r.URL.Query()
	// A repeated parameter takes its last value.
	if v, ok := q["name"]; ok {
		filter.Name = &v[len(v)-1]
	}
	if v, ok := q["category"]; ok {
		filter.Category = &v[len(v)-1]
	}
	records, err := h.svc.List(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeServiceError(w, r, err, MessageNotFound)
		return
	}
	record, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err, MessageNotFound)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	candidate, err := decodePokemon(w, r)
	if err != nil {
		h.writeServiceError(w, r, err, "")
		return
	}
	created, err := h.svc.Create(r.Context(), candidate)
	if err != nil {
		h.writeServiceError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

type updateResponse struct {
	Message string         `json:"message"`
	Record  domain.Pokemon `json:"record"`
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeServiceError(w, r, err, MessageNotFound)
		return
	}
	replacement, err := decodePokemon(w, r)
	if err != nil {
		h.writeServiceError(w, r, err, MessageNotFound)
		return
	}
	updated, err := h.svc.Update(r.Context(), id, replacement)
	if err != nil {
		h.writeServiceError(w, r, err, MessageNotFound)
		return
	}
	writeJSON(w, http.StatusOK, updateResponse{Message: MessageUpdated, Record: updated.Pokemon})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeServiceError(w, r, err, MessageDeleteNotFound)
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		h.writeServiceError(w, r, err, MessageDeleteNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": MessageDeleted})
}

func pathID(r *http.Request) (int, error) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		return 0, domain.ValidationError{Fields: []domain.FieldError{{
			Location: []string{"path", "id"},
			Message:  "Input should be a valid integer, unable to parse string as an integer",
			Type:     "int_parsing",
		}}}
	}
	return id, nil
}

// writeServiceError maps err onto a status code. notFound is the detail used
// for domain.ErrNotFound; when it is empty the route has no missing-record
// case and the error is treated as internal.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error, notFound string) {
	var ve domain.ValidationError
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": ve.Fields})
	case notFound != "" && errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, notFound)
	case errors.As(err, &tooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
	default:
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", RequestID(r.Context())),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, MessageInternal)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		http.Error(w, `{"detail":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
