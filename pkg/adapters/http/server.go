package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/aretw0/espalier"
	"github.com/aretw0/espalier/internal/logging"
	"github.com/aretw0/espalier/internal/presentation/graph"
	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/policy"
	"github.com/aretw0/espalier/pkg/ports"
)

// ActorHeader carries the caller identity when the request body does not.
const ActorHeader = "X-Actor"

// maxBodyBytes bounds command payloads.
const maxBodyBytes = 1 << 20

// Service is the subset of *espalier.Service served over HTTP.
type Service interface {
	Execute(ctx context.Context, cmd domain.Command) (*domain.TransitionResult, error)
	Query(ctx context.Context, entityType, entityID string) (*domain.EntityState, error)
	List(ctx context.Context, entityType string, filter domain.Filter) ([]*domain.EntityState, error)
	History(ctx context.Context, entityType, entityID string, limit, offset int) ([]*domain.AuditEntry, error)
	CanTransition(ctx context.Context, entityType, entityID, event string, data domain.Context) (domain.Verdict, error)
	Specification(id string) (*domain.Specification, error)
	Specifications() []*domain.Specification
}

var _ Service = (*espalier.Service)(nil)

// Server holds the HTTP handlers.
type Server struct {
	Service Service
	Policy  ports.PolicyProvider
	Streams *StreamManager
	logger  *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithPolicy enforces p on every command and dry run. The default allows everything.
func WithPolicy(p ports.PolicyProvider) Option {
	return func(s *Server) {
		s.Policy = p
	}
}

// WithStreams serves the state diffs published by sm. Register sm.Hooks() on the Service.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) {
		s.Streams = sm
	}
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewHandler creates a new HTTP handler for the service.
func NewHandler(svc Service, opts ...Option) http.Handler {
	s := &Server{Service: svc}
	for _, opt := range opts {
		opt(s)
	}
	if s.Policy == nil {
		s.Policy = policy.AllowAll()
	}
	if s.logger == nil {
		s.logger = logging.NewNop()
	}
	if s.Streams == nil {
		s.Streams = NewStreamManager(s.logger)
	}

	r := chi.NewRouter()
	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)

	r.Route("/specs", func(r chi.Router) {
		r.Get("/", s.ListSpecs)
		r.Get("/{spec}", s.GetSpec)
		r.Get("/{spec}/graph", s.GetGraph)
	})

	r.Route("/entities/{type}", func(r chi.Router) {
		r.Get("/", s.ListEntities)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.GetEntity)
			r.Get("/history", s.GetHistory)
			r.Get("/stream", s.SubscribeEvents)
			r.Post("/events/{event}", s.Execute)
			r.Get("/events/{event}", s.CanTransition)
		})
	})

	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+ActorHeader)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// CommandRequest is the body of an execute or dry-run request.
type CommandRequest struct {
	Data  domain.Context `json:"data,omitempty"`
	Actor string         `json:"actor,omitempty"`
}

// CommandResponse is returned by a successful execute.
type CommandResponse struct {
	Result  *domain.TransitionResult `json:"result"`
	Changes domain.Context           `json:"changes,omitempty"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// SpecSummary describes a registered specification.
type SpecSummary struct {
	ID           string   `json:"id"`
	InitialState string   `json:"initial_state"`
	States       []string `json:"states"`
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"app":     "espalier-http",
		"version": strings.TrimSpace(espalier.Version),
	})
}

// ListSpecs handles the GET /specs request.
func (s *Server) ListSpecs(w http.ResponseWriter, r *http.Request) {
	specs := s.Service.Specifications()
	out := make([]SpecSummary, 0, len(specs))
	for _, spec := range specs {
		out = append(out, SpecSummary{ID: spec.ID, InitialState: spec.InitialState, States: spec.StateNames()})
	}
	s.writeJSON(w, http.StatusOK, out)
}

// GetSpec handles the GET /specs/{spec} request.
func (s *Server) GetSpec(w http.ResponseWriter, r *http.Request) {
	spec, err := s.Service.Specification(chi.URLParam(r, "spec"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, spec)
}

// GetGraph handles the GET /specs/{spec}/graph request.
// With ?entity=id the entity's current and visited states are highlighted.
func (s *Server) GetGraph(w http.ResponseWriter, r *http.Request) {
	spec, err := s.Service.Specification(chi.URLParam(r, "spec"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var overlay *graph.GraphOverlay
	if id := r.URL.Query().Get("entity"); id != "" {
		state, err := s.Service.Query(r.Context(), spec.ID, id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		history, err := s.Service.History(r.Context(), spec.ID, id, 0, 0)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		overlay = graph.OverlayFor(state, history)
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, graph.GenerateMermaid(spec, overlay))
}

// ListEntities handles the GET /entities/{type} request.
func (s *Server) ListEntities(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := paging(r)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	filter := domain.Filter{State: r.URL.Query().Get("state"), Limit: limit, Offset: offset}

	entities, err := s.Service.List(r.Context(), chi.URLParam(r, "type"), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, entities)
}

// GetEntity handles the GET /entities/{type}/{id} request.
func (s *Server) GetEntity(w http.ResponseWriter, r *http.Request) {
	state, err := s.Service.Query(r.Context(), chi.URLParam(r, "type"), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, state)
}

// GetHistory handles the GET /entities/{type}/{id}/history request.
func (s *Server) GetHistory(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := paging(r)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	entries, err := s.Service.History(r.Context(), chi.URLParam(r, "type"), chi.URLParam(r, "id"), limit, offset)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, entries)
}

// Execute handles the POST /entities/{type}/{id}/events/{event} request.
func (s *Server) Execute(w http.ResponseWriter, r *http.Request) {
	var body CommandRequest
	if err := decodeBody(r, &body); err != nil {
		s.writeBadRequest(w, err)
		return
	}

	cmd := domain.Command{
		EntityType: chi.URLParam(r, "type"),
		EntityID:   chi.URLParam(r, "id"),
		Event:      chi.URLParam(r, "event"),
		Data:       body.Data,
		Actor:      actor(r, body.Actor),
	}
	if err := s.authorize(r.Context(), cmd.Actor, cmd.EntityType, cmd.Event); err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.Service.Execute(r.Context(), cmd)
	if err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			advice := s.Policy.Advice(cmd.EntityType, cmd.Event)
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(advice)))
		}
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, CommandResponse{Result: result, Changes: result.Changes()})
}

// CanTransition handles the GET /entities/{type}/{id}/events/{event} request.
// Command data may be passed as a JSON object in the "data" query parameter.
func (s *Server) CanTransition(w http.ResponseWriter, r *http.Request) {
	var data domain.Context
	if raw := r.URL.Query().Get("data"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			s.writeBadRequest(w, fmt.Errorf("data: %w", err))
			return
		}
	}

	entityType, event := chi.URLParam(r, "type"), chi.URLParam(r, "event")
	if err := s.authorize(r.Context(), actor(r, r.URL.Query().Get("actor")), entityType, event); err != nil {
		s.writeError(w, r, err)
		return
	}

	verdict, err := s.Service.CanTransition(r.Context(), entityType, chi.URLParam(r, "id"), event, data)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, verdict)
}

func (s *Server) authorize(ctx context.Context, actor, entityType, event string) error {
	ok, err := s.Policy.CanExecute(ctx, actor, entityType, event)
	if err != nil {
		return err
	}
	if !ok {
		return &domain.PolicyError{Actor: actor, EntityType: entityType, Event: event}
	}
	return nil
}

func actor(r *http.Request, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}
	return r.Header.Get(ActorHeader)
}

func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func paging(r *http.Request) (limit, offset int, err error) {
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil {
			return 0, 0, fmt.Errorf("limit: %w", err)
		}
	}
	if v := q.Get("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil {
			return 0, 0, fmt.Errorf("offset: %w", err)
		}
	}
	return limit, offset, nil
}

func retryAfterSeconds(advice domain.RetryAdvice) int {
	secs := int(advice.Backoff.Seconds())
	if secs < 1 {
		return 1
	}
	return secs
}

// StatusFor maps an error kind to an HTTP status.
func StatusFor(kind string) int {
	switch kind {
	case domain.KindSpecNotFound, domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindTransitionNotAllowed, domain.KindVersionConflict, domain.KindInvalidState:
		return http.StatusConflict
	case domain.KindGuardFailed, domain.KindValidation:
		return http.StatusUnprocessableEntity
	case domain.KindPolicy:
		return http.StatusForbidden
	case domain.KindStorage:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	status := StatusFor(kind)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "kind", kind, "err", err)
	} else {
		s.logger.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "kind", kind, "err", err)
	}
	s.writeJSON(w, status, ErrorResponse{Error: err.Error(), Kind: kind})
}

func (s *Server) writeBadRequest(w http.ResponseWriter, err error) {
	s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Kind: "bad_request"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "err", err)
	}
}
