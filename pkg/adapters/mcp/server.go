package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aretw0/espalier"
	"github.com/aretw0/espalier/internal/logging"
	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/policy"
	"github.com/aretw0/espalier/pkg/ports"
)

// SpecsURI is the resource listing the registered specifications.
const SpecsURI = "espalier://specs"

// Service is the subset of *espalier.Service exposed as MCP tools.
type Service interface {
	Execute(ctx context.Context, cmd domain.Command) (*domain.TransitionResult, error)
	Query(ctx context.Context, entityType, entityID string) (*domain.EntityState, error)
	History(ctx context.Context, entityType, entityID string, limit, offset int) ([]*domain.AuditEntry, error)
	CanTransition(ctx context.Context, entityType, entityID, event string, data domain.Context) (domain.Verdict, error)
	Specifications() []*domain.Specification
}

var _ Service = (*espalier.Service)(nil)

// ExecuteResponse is the payload of a successful execute call.
type ExecuteResponse struct {
	Result  *domain.TransitionResult `json:"result"`
	Changes domain.Context           `json:"changes,omitempty"`
}

// SpecSummary describes a registered specification.
type SpecSummary struct {
	ID           string              `json:"id"`
	InitialState string              `json:"initial_state"`
	States       map[string][]string `json:"states"`
}

// Server wraps the espalier Service and exposes it as an MCP Server.
type Server struct {
	service   Service
	policy    ports.PolicyProvider
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// Option configures the Server.
type Option func(*Server)

// WithPolicy enforces p on execute and can_transition.
func WithPolicy(p ports.PolicyProvider) Option {
	return func(s *Server) {
		s.policy = p
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(svc Service, opts ...Option) *Server {
	s := &Server{
		service:   svc,
		mcpServer: server.NewMCPServer("espalier-mcp", strings.TrimSpace(espalier.Version)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.policy == nil {
		s.policy = policy.AllowAll()
	}
	if s.logger == nil {
		s.logger = logging.NewNop()
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the MCP protocol over SSE on addr until ctx is cancelled.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("execute",
		mcp.WithDescription("Send an event to an entity, moving it along its lifecycle. Unknown entities start at the initial state."),
		mcp.WithString("entity_type", mcp.Required(), mcp.Description("Specification id of the entity")),
		mcp.WithString("entity_id", mcp.Required(), mcp.Description("Entity identifier")),
		mcp.WithString("event", mcp.Required(), mcp.Description("Event name")),
		mcp.WithObject("data", mcp.Description("Command data merged over the entity context")),
		mcp.WithString("actor", mcp.Description("Who sends the command, recorded in the audit trail")),
	), s.handleExecute)

	s.mcpServer.AddTool(mcp.NewTool("query",
		mcp.WithDescription("Get the current state of an entity."),
		mcp.WithString("entity_type", mcp.Required(), mcp.Description("Specification id of the entity")),
		mcp.WithString("entity_id", mcp.Required(), mcp.Description("Entity identifier")),
	), s.handleQuery)

	s.mcpServer.AddTool(mcp.NewTool("history",
		mcp.WithDescription("Get the audit trail of an entity, newest first."),
		mcp.WithString("entity_type", mcp.Required(), mcp.Description("Specification id of the entity")),
		mcp.WithString("entity_id", mcp.Required(), mcp.Description("Entity identifier")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of entries (0 for all)")),
		mcp.WithNumber("offset", mcp.Description("Number of entries to skip")),
	), s.handleHistory)

	s.mcpServer.AddTool(mcp.NewTool("can_transition",
		mcp.WithDescription("Check whether an event would be accepted, without changing anything."),
		mcp.WithString("entity_type", mcp.Required(), mcp.Description("Specification id of the entity")),
		mcp.WithString("entity_id", mcp.Required(), mcp.Description("Entity identifier")),
		mcp.WithString("event", mcp.Required(), mcp.Description("Event name")),
		mcp.WithObject("data", mcp.Description("Command data merged over the entity context")),
		mcp.WithString("actor", mcp.Description("Who would send the command")),
	), s.handleCanTransition)

	s.mcpServer.AddTool(mcp.NewTool("list_specs",
		mcp.WithDescription("List the registered specifications with their states and events."),
	), s.handleListSpecs)
}

func (s *Server) handleExecute(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	cmd := domain.Command{
		EntityType: stringArg(args, "entity_type"),
		EntityID:   stringArg(args, "entity_id"),
		Event:      stringArg(args, "event"),
		Actor:      stringArg(args, "actor"),
	}
	if cmd.EntityType == "" || cmd.EntityID == "" || cmd.Event == "" {
		return mcp.NewToolResultError("entity_type, entity_id and event are required"), nil
	}
	data, err := dataArg(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	cmd.Data = data

	if res := s.authorize(ctx, cmd.Actor, cmd.EntityType, cmd.Event); res != nil {
		return res, nil
	}

	result, err := s.service.Execute(ctx, cmd)
	if err != nil {
		return s.failure(err), nil
	}
	return jsonResult(ExecuteResponse{Result: result, Changes: result.Changes()})
}

func (s *Server) handleQuery(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	state, err := s.service.Query(ctx, stringArg(args, "entity_type"), stringArg(args, "entity_id"))
	if err != nil {
		return s.failure(err), nil
	}
	return jsonResult(state)
}

func (s *Server) handleHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	entries, err := s.service.History(ctx,
		stringArg(args, "entity_type"), stringArg(args, "entity_id"),
		intArg(args, "limit"), intArg(args, "offset"),
	)
	if err != nil {
		return s.failure(err), nil
	}
	return jsonResult(entries)
}

func (s *Server) handleCanTransition(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	entityType, event := stringArg(args, "entity_type"), stringArg(args, "event")
	data, err := dataArg(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if res := s.authorize(ctx, stringArg(args, "actor"), entityType, event); res != nil {
		return res, nil
	}

	verdict, err := s.service.CanTransition(ctx, entityType, stringArg(args, "entity_id"), event, data)
	if err != nil {
		return s.failure(err), nil
	}
	return jsonResult(verdict)
}

func (s *Server) handleListSpecs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.summaries())
}

func (s *Server) summaries() []SpecSummary {
	specs := s.service.Specifications()
	out := make([]SpecSummary, 0, len(specs))
	for _, spec := range specs {
		states := make(map[string][]string, len(spec.States))
		for _, st := range spec.States {
			states[st.Name] = st.Events()
		}
		out = append(out, SpecSummary{ID: spec.ID, InitialState: spec.InitialState, States: states})
	}
	return out
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(SpecsURI, "Registered specifications",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		jsonBytes, err := json.Marshal(s.summaries())
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      SpecsURI,
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}

// authorize returns an error result when the policy denies the command.
func (s *Server) authorize(ctx context.Context, actor, entityType, event string) *mcp.CallToolResult {
	ok, err := s.policy.CanExecute(ctx, actor, entityType, event)
	if err == nil && !ok {
		err = &domain.PolicyError{Actor: actor, EntityType: entityType, Event: event}
	}
	if err != nil {
		return s.failure(err)
	}
	return nil
}

func (s *Server) failure(err error) *mcp.CallToolResult {
	kind := domain.KindOf(err)
	s.logger.Debug("MCP tool failed", "kind", kind, "err", err)
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", kind, err))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

// dataArg accepts the command data as an object or as a JSON string.
func dataArg(args map[string]any) (domain.Context, error) {
	switch v := args["data"].(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return domain.Context(v), nil
	case string:
		if v == "" {
			return nil, nil
		}
		var data domain.Context
		if err := json.Unmarshal([]byte(v), &data); err != nil {
			return nil, fmt.Errorf("data: %w", err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("data: expected an object, got %T", args["data"])
}
