// Package server exposes session control over HTTP and streams live
// narrative events over WebSocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	apperrors "github.com/GriffinCanCode/cinescribe/internal/errors"
	"github.com/GriffinCanCode/cinescribe/internal/orchestrator"
	"github.com/GriffinCanCode/cinescribe/internal/orchestrator/narrative"
	"github.com/GriffinCanCode/cinescribe/internal/orchestrator/transcript"
	"github.com/GriffinCanCode/cinescribe/internal/screen"
	"github.com/GriffinCanCode/cinescribe/internal/trace"
)

// Controller is the session surface the server drives.
type Controller interface {
	StartSession(ctx context.Context, target screen.Target, interval time.Duration) (string, error)
	StopSession() error
	Status() orchestrator.Status
	Report() (narrative.Report, bool)
}

// Message types.
type Message struct {
	Type string `json:"type"`
}

// StartRequest starts a session. Interval is in seconds; zero keeps the configured cadence.
type StartRequest struct {
	Type string `json:"type,omitempty"`
	screen.Target
	Interval float64 `json:"interval,omitempty"`
	TraceID  string  `json:"trace_id,omitempty"`
}

type StartedMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

type StatusMessage struct {
	Type   string              `json:"type"`
	Status orchestrator.Status `json:"status"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// rateLimiter tracks message timestamps using a sliding window.
type rateLimiter struct {
	timestamps []time.Time
	mu         sync.Mutex
}

// allow checks if a message is allowed and records the timestamp if so.
func (r *rateLimiter) allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-RateLimitWindow)

	valid := r.timestamps[:0]
	for _, t := range r.timestamps {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	r.timestamps = valid

	if len(r.timestamps) >= RateLimitMessages {
		return false
	}

	r.timestamps = append(r.timestamps, now)
	return true
}

// Server handles HTTP and WebSocket connections.
type Server struct {
	ctl   Controller
	base  context.Context // sessions outlive the request that started them
	mu    sync.RWMutex
	conns map[*websocket.Conn]*rateLimiter

	unsubscribe func()
}

// New creates a server. Sessions it starts are bound to base. When bus is
// non-nil its events are broadcast to websocket clients until Close.
func New(base context.Context, ctl Controller, bus *transcript.Bus) *Server {
	s := &Server{
		ctl:         ctl,
		base:        base,
		conns:       make(map[*websocket.Conn]*rateLimiter),
		unsubscribe: func() {},
	}
	if bus != nil {
		events, unsubscribe := bus.Subscribe(BroadcastBuffer)
		s.unsubscribe = unsubscribe
		go s.broadcast(events)
	}
	return s
}

// Close stops broadcasting.
func (s *Server) Close() { s.unsubscribe() }

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", s.handleWebSocket)

	mux.HandleFunc("POST /api/session/start", s.handleStart)
	mux.HandleFunc("POST /api/session/stop", s.handleStop)
	mux.HandleFunc("GET /api/session/status", s.handleStatus)
	mux.HandleFunc("GET /api/session/report", s.handleReport)

	// Apply middleware: trace -> CORS
	return corsMiddleware(trace.Middleware(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) start(ctx context.Context, req StartRequest) (string, error) {
	interval := time.Duration(req.Interval * float64(time.Second))
	// keep the caller's trace id, drop its cancellation
	sessCtx := s.base
	if tc, ok := trace.FromContext(ctx); ok {
		sessCtx = trace.WithContext(sessCtx, tc)
	}
	return s.ctl.StartSession(sessCtx, req.Target, interval)
}

// stop stops the running session. A caller that names a session, through
// the x-session-id header or a command's session_id, only stops that one.
func (s *Server) stop(ctx context.Context) error {
	if id := trace.SessionID(ctx); id != "" {
		if cur := s.ctl.Status().SessionID; cur != id {
			return apperrors.Newf(apperrors.CodeSessionIdle, "session %s is not running", id).
				WithMetadata("current_session", cur)
		}
	}
	return s.ctl.StopSession()
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes))
	if err == nil {
		err = json.Unmarshal(body, &req)
	}
	if err != nil {
		writeError(w, apperrors.Wrap(err, apperrors.CodeInvalidArgument, "invalid start request"))
		return
	}

	id, err := s.start(r.Context(), req)
	if err != nil {
		trace.Logger(r.Context()).Warn("session start rejected", "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, StartedMessage{Type: "started", SessionID: id})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.stop(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.ctl.Status())
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ctl.Status())
}

func (s *Server) handleReport(w http.ResponseWriter, _ *http.Request) {
	report, ok := s.ctl.Report()
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorMessage{Type: "error", Message: "no final report yet"})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)
	writeJSON(w, httpStatus(code), ErrorMessage{Type: "error", Code: code.String(), Message: err.Error()})
}

func httpStatus(c apperrors.Code) int {
	switch c {
	case apperrors.CodeInvalidArgument, apperrors.CodeConfigMissing, apperrors.CodeConfigInvalid:
		return http.StatusBadRequest
	case apperrors.CodeSessionActive, apperrors.CodeSessionIdle:
		return http.StatusConflict
	case apperrors.CodeCaptureFailed:
		return http.StatusUnprocessableEntity
	case apperrors.CodeInferenceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	rl := &rateLimiter{}
	s.mu.Lock()
	s.conns[conn] = rl
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	baseCtx := r.Context()
	log := trace.Logger(baseCtx)
	log.Info("websocket connected", "remote", r.RemoteAddr)

	for {
		var msg json.RawMessage
		if err := wsjson.Read(baseCtx, conn, &msg); err != nil {
			log.Debug("websocket read error", "error", err)
			return
		}

		if !rl.allow() {
			log.Warn("rate limit exceeded", "remote", r.RemoteAddr)
			_ = wsjson.Write(baseCtx, conn, ErrorMessage{Type: "error", Message: "rate limit exceeded"})
			continue
		}

		var base Message
		if err := json.Unmarshal(msg, &base); err != nil {
			continue
		}

		ctx := baseCtx
		if tc, ok := trace.ExtractFromJSON(msg); ok {
			ctx = trace.WithContext(ctx, tc)
		}
		_ = wsjson.Write(ctx, conn, s.command(ctx, base.Type, msg))
	}
}

// command runs one websocket command and returns the reply.
func (s *Server) command(ctx context.Context, typ string, raw json.RawMessage) any {
	switch typ {
	case "start":
		var req StartRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return errorMessage(apperrors.Wrap(err, apperrors.CodeInvalidArgument, "invalid start command"))
		}
		id, err := s.start(ctx, req)
		if err != nil {
			return errorMessage(err)
		}
		return StartedMessage{Type: "started", SessionID: id}
	case "stop":
		if err := s.stop(ctx); err != nil {
			return errorMessage(err)
		}
		return StatusMessage{Type: "status", Status: s.ctl.Status()}
	case "status":
		return StatusMessage{Type: "status", Status: s.ctl.Status()}
	default:
		return ErrorMessage{Type: "error", Code: apperrors.CodeInvalidArgument.String(), Message: "unknown command " + typ}
	}
}

func errorMessage(err error) ErrorMessage {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return ErrorMessage{Type: "error", Code: appErr.Code.String(), Message: appErr.Message}
	}
	return ErrorMessage{Type: "error", Message: err.Error()}
}

func (s *Server) broadcast(events <-chan transcript.Event) {
	for ev := range events {
		s.mu.RLock()
		for conn := range s.conns {
			go func(c *websocket.Conn) {
				ctx, cancel := context.WithTimeout(context.Background(), WriteTimeout)
				defer cancel()
				_ = wsjson.Write(ctx, c, ev)
			}(conn)
		}
		s.mu.RUnlock()
	}
}
