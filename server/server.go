package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"book_ghostwriter/prompts"
	"book_ghostwriter/storage"
	"book_ghostwriter/workflow"
)

const maxBodyBytes = 1 << 20

// Engine runs conversational turns. *workflow.Engine implements it.
type Engine interface {
	Turn(ctx context.Context, req workflow.TurnRequest, events workflow.EventSink) (workflow.TurnResult, error)
	Load(ctx context.Context, id string) (workflow.State, error)
}

// PromptAdmin lists and publishes specialist prompts.
type PromptAdmin interface {
	List(ctx context.Context) ([]prompts.Specialist, error)
	Publish(ctx context.Context, sp prompts.Specialist) (int, error)
}

// ProjectReader exposes the stored artifacts of a book project.
type ProjectReader interface {
	Project(ctx context.Context, id string) (storage.Project, error)
	Chapters(ctx context.Context, projectID string) ([]storage.Chapter, error)
}

// ConversationLister lists stored conversations.
type ConversationLister interface {
	List(ctx context.Context, stage workflow.Stage, limit int) ([]storage.ConversationSummary, error)
}

type Server struct {
	engine        Engine
	prompts       PromptAdmin
	projects      ProjectReader
	conversations ConversationLister
	logger        *zap.Logger
	turnTimeout   time.Duration
}

type Option func(*Server)

func WithPromptAdmin(p PromptAdmin) Option { return func(s *Server) { s.prompts = p } }

func WithProjects(p ProjectReader) Option { return func(s *Server) { s.projects = p } }

func WithConversations(c ConversationLister) Option { return func(s *Server) { s.conversations = c } }

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTurnTimeout bounds each chat turn. Zero disables the bound.
func WithTurnTimeout(d time.Duration) Option { return func(s *Server) { s.turnTimeout = d } }

func New(engine Engine, opts ...Option) (*Server, error) {
	if engine == nil {
		return nil, errors.New("workflow engine required")
	}
	s := &Server{engine: engine, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/chat/stream", s.handleChatStream)
	mux.HandleFunc("GET /api/conversations", s.handleConversationList)
	mux.HandleFunc("GET /api/conversations/{id}", s.handleConversation)
	mux.HandleFunc("GET /api/prompts", s.handlePromptList)
	mux.HandleFunc("PUT /api/prompts/{name}", s.handlePromptPut)
	mux.HandleFunc("GET /api/projects/{id}/chapters", s.handleChapters)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return s.logMiddleware(mux)
}

func (s *Server) turnContext(parent context.Context) (context.Context, context.CancelFunc) {
	if s.turnTimeout > 0 {
		return context.WithTimeout(parent, s.turnTimeout)
	}
	return context.WithCancel(parent)
}

// --- Helpers ---

type errorResp struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// statusFor maps workflow failures to HTTP responses.
func statusFor(err error) (int, string) {
	var (
		corrupt    *workflow.StateCorruptionError
		completion *workflow.CompletionError
	)
	switch {
	case errors.Is(err, workflow.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.As(err, &corrupt):
		return http.StatusConflict, "state_corrupted"
	case errors.As(err, &completion):
		return http.StatusBadGateway, "completion_failed"
	case errors.Is(err, workflow.ErrCheckpointNotFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "canceled"
	}
	return http.StatusInternalServerError, "internal"
}

func writeError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	writeJSON(w, status, errorResp{Error: err.Error(), Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", workflow.ErrInvalidInput, err)
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the Flusher underneath.
func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", reqID),
		)
	})
}
