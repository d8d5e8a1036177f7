package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/aretw0/espalier/internal/logging"
	"github.com/aretw0/espalier/pkg/domain"
)

// StreamManager handles active SSE connections, keyed by entity.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan<- string]struct{}
	logger      *slog.Logger
}

// NewStreamManager creates a StreamManager. A nil logger discards output.
func NewStreamManager(logger *slog.Logger) *StreamManager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &StreamManager{
		subscribers: make(map[string]map[chan<- string]struct{}),
		logger:      logger,
	}
}

func streamKey(entityType, entityID string) string {
	return entityType + "/" + entityID
}

// Subscribe registers a buffered channel for an entity. The returned function
// unsubscribes and closes the channel.
func (sm *StreamManager) Subscribe(entityType, entityID string) (chan string, func()) {
	key := streamKey(entityType, entityID)
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 10)
	if _, ok := sm.subscribers[key]; !ok {
		sm.subscribers[key] = make(map[chan<- string]struct{})
	}
	sm.subscribers[key][ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if subs, ok := sm.subscribers[key]; ok {
			if _, live := subs[ch]; !live {
				return
			}
			delete(subs, ch)
			close(ch)
			if len(subs) == 0 {
				delete(sm.subscribers, key)
			}
		}
	}
}

// Broadcast sends msg to every subscriber of the entity, dropping it for slow clients.
func (sm *StreamManager) Broadcast(entityType, entityID, msg string) {
	key := streamKey(entityType, entityID)
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers[key] {
		select {
		case ch <- msg:
		default:
			sm.logger.Warn("SSE: Client buffer full, dropping message", "entity", key)
		}
	}
}

// Hooks returns lifecycle hooks broadcasting the diff of every committed command.
func (sm *StreamManager) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnCommitted: func(_ context.Context, e *domain.CommittedEvent) {
			prev := e.State.Clone()
			prev.StateName = e.Result.From
			prev.Context = e.Result.OldContext
			prev.Version--

			diff := domain.Diff(prev, e.State)
			if diff == nil {
				return
			}
			payload, err := json.Marshal(diff)
			if err != nil {
				sm.logger.Error("SSE: diff encode failed", "err", err)
				return
			}
			sm.Broadcast(e.State.EntityType, e.State.ID, string(payload))
		},
	}
}

// SubscribeEvents handles the GET /entities/{type}/{id}/stream request (SSE).
// The optional "watch" parameter (state, version, context) filters the diffs.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	entityType, entityID := chi.URLParam(r, "type"), chi.URLParam(r, "id")
	if _, err := s.Service.Specification(entityType); err != nil {
		s.writeError(w, r, err)
		return
	}

	var watchList []string
	if v := r.URL.Query().Get("watch"); v != "" {
		watchList = strings.Split(v, ",")
	}

	ch, cancel := s.Streams.Subscribe(entityType, entityID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if len(watchList) > 0 && !watched(msg, watchList) {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

func watched(msg string, fields []string) bool {
	var diff domain.StateDiff
	if err := json.Unmarshal([]byte(msg), &diff); err != nil {
		return true
	}
	for _, field := range fields {
		switch strings.TrimSpace(field) {
		case "state":
			if diff.StateName != nil {
				return true
			}
		case "version":
			if diff.Version != nil {
				return true
			}
		case "context":
			if len(diff.Context) > 0 {
				return true
			}
		}
	}
	return false
}
