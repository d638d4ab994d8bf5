// Package server exposes the chat backend over HTTP. Chat requests are
// answered as NDJSON event streams; sessions and the MCP tool inventory get
// small JSON endpoints.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/smallnest/atlaschat/internal/agent"
	"github.com/smallnest/atlaschat/internal/bridge"
	"github.com/smallnest/atlaschat/internal/history"
	"github.com/smallnest/atlaschat/internal/log"
	"github.com/smallnest/atlaschat/internal/render"
	"github.com/smallnest/atlaschat/internal/timex"
)

// Dispatcher hands chat requests to the agent loop. *bridge.Bridge
// satisfies it.
type Dispatcher interface {
	Stream(ctx context.Context, input string, hist []history.Message) (<-chan agent.Event, error)
	Ready() bool
}

// Options configures a Server.
type Options struct {
	Dispatcher Dispatcher

	// ToolDocs returns the cached MCP tool inventory as a JSON document.
	// Nil disables GET /tools.
	ToolDocs func() (string, error)

	// Store persists chat history per session. Nil disables the session
	// endpoints and the "session" request field.
	Store      history.Store
	MaxHistory int

	Logger log.Logger
}

// Server is the HTTP front of the backend.
type Server struct {
	opts Options
	mux  *http.ServeMux
}

// New builds the server and its routes.
func New(opts Options) *Server {
	if opts.MaxHistory <= 0 {
		opts.MaxHistory = 50
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	s := &Server{opts: opts, mux: http.NewServeMux()}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /mcp", s.handleChat)
	if opts.ToolDocs != nil {
		s.mux.HandleFunc("GET /tools", s.handleTools)
	}
	if opts.Store != nil {
		s.mux.HandleFunc("POST /sessions", s.handleCreateSession)
		s.mux.HandleFunc("GET /sessions/{id}", s.handleGetSession)
		s.mux.HandleFunc("DELETE /sessions/{id}", s.handleClearSession)
	}
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// chatRequest is the POST /mcp body.
type chatRequest struct {
	Input   string            `json:"input"`
	History []history.Message `json:"history,omitempty"`
	Session string            `json:"session,omitempty"`
	HTML    bool              `json:"html,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Input == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing 'input'"})
		return
	}

	hist, err := s.loadHistory(r.Context(), req)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	events, err := s.opts.Dispatcher.Stream(r.Context(), req.Input, hist)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, bridge.ErrNotReady) {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	enc := json.NewEncoder(w)
	for ev := range events {
		if ev.Type == agent.EventFinal {
			ev.Output = timex.ReplaceISO8601WithRelative(ev.Output)
			if req.HTML {
				ev.OutputHTML = render.MarkdownHTML(ev.Output)
			}
			s.saveTurn(r.Context(), req, ev.Output)
		}
		if err := enc.Encode(ev); err != nil {
			s.opts.Logger.Warn("client went away mid-stream: %v", err)
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// loadHistory resolves the effective history: stored session messages
// first, then any inline history from the request.
func (s *Server) loadHistory(ctx context.Context, req chatRequest) ([]history.Message, error) {
	if req.Session == "" || s.opts.Store == nil {
		return req.History, nil
	}
	stored, err := s.opts.Store.Get(ctx, req.Session)
	if err != nil && !errors.Is(err, history.ErrSessionNotFound) {
		return nil, fmt.Errorf("loading session %s: %w", req.Session, err)
	}
	return history.Truncate(append(stored, req.History...), s.opts.MaxHistory), nil
}

// saveTurn appends the completed exchange to the session, best-effort.
func (s *Server) saveTurn(ctx context.Context, req chatRequest, output string) {
	if req.Session == "" || s.opts.Store == nil {
		return
	}
	err := s.opts.Store.Append(ctx, req.Session,
		history.Message{Role: history.RoleHuman, Content: req.Input},
		history.Message{Role: history.RoleAI, Content: output},
	)
	if err != nil {
		s.opts.Logger.Warn("saving session %s: %v", req.Session, err)
	}
}

func (s *Server) handleTools(w http.ResponseWriter, _ *http.Request) {
	docs, err := s.opts.ToolDocs()
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(docs))
}

func (s *Server) handleCreateSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusCreated, map[string]string{"session": uuid.NewString()})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	msgs, err := s.opts.Store.Get(r.Context(), id)
	if errors.Is(err, history.ErrSessionNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": id, "messages": msgs})
}

func (s *Server) handleClearSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.opts.Store.Clear(r.Context(), id); err != nil && !errors.Is(err, history.ErrSessionNotFound) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"session": id, "status": "cleared"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, addr string, handler http.Handler, logger log.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
