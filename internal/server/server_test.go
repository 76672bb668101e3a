package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
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

// mockController for testing.
type mockController struct {
	mu       sync.Mutex
	running  bool
	target   screen.Target
	interval time.Duration
	traceID  string
	report   *narrative.Report
}

func (m *mockController) StartSession(ctx context.Context, target screen.Target, interval time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !target.Valid() {
		return "", apperrors.New(apperrors.CodeConfigMissing, "no capture target selected")
	}
	if m.running {
		return "", apperrors.New(apperrors.CodeSessionActive, "a session is already running")
	}
	if tc, ok := trace.FromContext(ctx); ok {
		m.traceID = tc.TraceID
	}
	m.running, m.target, m.interval = true, target, interval
	return "session-1", nil
}

func (m *mockController) StopSession() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return apperrors.New(apperrors.CodeSessionIdle, "no running session")
	}
	m.running = false
	return nil
}

func (m *mockController) Status() orchestrator.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	state := "idle"
	if m.running {
		state = "running"
	}
	st := orchestrator.Status{State: state, Entries: 3}
	if m.running {
		st.SessionID = "session-1"
	}
	return st
}

func (m *mockController) Report() (narrative.Report, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.report == nil {
		return narrative.Report{}, false
	}
	return *m.report, true
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCORSMiddleware(t *testing.T) {
	handler := corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("OPTIONS", "/test", http.NoBody)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("OPTIONS status = %d, want %d", rec.Code, http.StatusOK)
	}
	if v := rec.Header().Get("Access-Control-Allow-Origin"); v != "*" {
		t.Errorf("CORS origin = %q, want %q", v, "*")
	}
	if v := rec.Header().Get("Access-Control-Allow-Methods"); v != "GET, POST, OPTIONS" {
		t.Errorf("CORS methods = %q, want %q", v, "GET, POST, OPTIONS")
	}
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	ctl := &mockController{}
	srv := New(context.Background(), ctl, nil)
	defer srv.Close()
	h := srv.Handler()

	rec := do(t, h, "POST", "/api/session/start", `{"window": "mpv", "interval": 1.5}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("start status = %d, body %s", rec.Code, rec.Body)
	}
	var started StartedMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &started); err != nil || started.SessionID != "session-1" {
		t.Errorf("start reply = %s", rec.Body)
	}
	if ctl.target.Window != "mpv" || ctl.interval != 1500*time.Millisecond {
		t.Errorf("started with %+v every %v", ctl.target, ctl.interval)
	}
	if ctl.traceID == "" || ctl.traceID != rec.Header().Get(trace.TraceIDKey) {
		t.Errorf("session trace id = %q, response header %q", ctl.traceID, rec.Header().Get(trace.TraceIDKey))
	}

	if rec := do(t, h, "POST", "/api/session/start", `{"window": "mpv"}`); rec.Code != http.StatusConflict {
		t.Errorf("second start status = %d, want 409", rec.Code)
	}

	rec = do(t, h, "GET", "/api/session/status", "")
	var st orchestrator.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil || st.State != "running" || st.Entries != 3 {
		t.Errorf("status = %s", rec.Body)
	}

	if rec := do(t, h, "POST", "/api/session/stop", ""); rec.Code != http.StatusAccepted {
		t.Errorf("stop status = %d, want 202", rec.Code)
	}
	if rec := do(t, h, "POST", "/api/session/stop", ""); rec.Code != http.StatusConflict {
		t.Errorf("second stop status = %d, want 409", rec.Code)
	}
}

func TestStartRejections(t *testing.T) {
	h := New(context.Background(), &mockController{}, nil).Handler()

	tests := []struct {
		name string
		body string
		code string
	}{
		{"malformed", `{"window":`, "INVALID_ARGUMENT"},
		{"no target", `{"interval": 2}`, "CONFIG_MISSING"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, "POST", "/api/session/start", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			var msg ErrorMessage
			if err := json.Unmarshal(rec.Body.Bytes(), &msg); err != nil || msg.Code != tt.code {
				t.Errorf("error body = %s, want code %s", rec.Body, tt.code)
			}
		})
	}
}

func TestReport(t *testing.T) {
	ctl := &mockController{}
	h := New(context.Background(), ctl, nil).Handler()

	if rec := do(t, h, "GET", "/api/session/report", ""); rec.Code != http.StatusNotFound {
		t.Errorf("report before finish = %d, want 404", rec.Code)
	}

	ctl.report = &narrative.Report{Text: "A heist goes wrong.", Summaries: 2, Entries: 12}
	rec := do(t, h, "GET", "/api/session/report", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "A heist goes wrong.") {
		t.Errorf("report = %d %s", rec.Code, rec.Body)
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code apperrors.Code
		want int
	}{
		{apperrors.CodeConfigMissing, http.StatusBadRequest},
		{apperrors.CodeSessionActive, http.StatusConflict},
		{apperrors.CodeInferenceUnavailable, http.StatusServiceUnavailable},
		{apperrors.CodeInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := httpStatus(tt.code); got != tt.want {
			t.Errorf("httpStatus(%v) = %d, want %d", tt.code, got, tt.want)
		}
	}
}

func TestRateLimiter(t *testing.T) {
	rl := &rateLimiter{}
	for i := 0; i < RateLimitMessages; i++ {
		if !rl.allow() {
			t.Fatalf("message %d rejected inside the limit", i)
		}
	}
	if rl.allow() {
		t.Error("message over the limit allowed")
	}
}

func TestStopNamingAnotherSessionIsRejected(t *testing.T) {
	ctl := &mockController{}
	srv := New(context.Background(), ctl, nil)
	defer srv.Close()
	h := srv.Handler()

	if rec := do(t, h, "POST", "/api/session/start", `{"window": "mpv"}`); rec.Code != http.StatusCreated {
		t.Fatalf("start status = %d", rec.Code)
	}

	req := httptest.NewRequest("POST", "/api/session/stop", http.NoBody)
	req.Header.Set(trace.SessionIDKey, "session-0")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict {
		t.Errorf("stale stop status = %d, want 409", rec.Code)
	}
	if ctl.Status().State != "running" {
		t.Fatal("a stop naming an older session stopped the current one")
	}

	req = httptest.NewRequest("POST", "/api/session/stop", http.NoBody)
	req.Header.Set(trace.SessionIDKey, "session-1")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Errorf("stop status = %d, want 202", rec.Code)
	}
}

func TestWebSocketCommandsAndEvents(t *testing.T) {
	ctl := &mockController{}
	bus := transcript.NewBus()
	srv := New(context.Background(), ctl, bus)
	defer srv.Close()

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	if err := wsjson.Write(ctx, conn, map[string]any{"type": "start", "frames": "/tmp/frames"}); err != nil {
		t.Fatal(err)
	}
	var started StartedMessage
	if err := wsjson.Read(ctx, conn, &started); err != nil || started.Type != "started" {
		t.Fatalf("start reply = %+v, %v", started, err)
	}
	if ctl.target.Frames != "/tmp/frames" {
		t.Errorf("target = %+v", ctl.target)
	}

	if err := wsjson.Write(ctx, conn, Message{Type: "rewind"}); err != nil {
		t.Fatal(err)
	}
	var bad ErrorMessage
	if err := wsjson.Read(ctx, conn, &bad); err != nil || bad.Type != "error" {
		t.Errorf("unknown command reply = %+v, %v", bad, err)
	}

	// wait until the connection is registered with the broadcaster
	deadline := time.Now().Add(time.Second)
	for {
		srv.mu.RLock()
		n := len(srv.conns)
		srv.mu.RUnlock()
		if n == 1 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	bus.Summary(narrative.Summary{Seq: 1, From: 1, To: 6, Text: "They escape."})
	var ev struct {
		Type string                  `json:"type"`
		Data transcript.SummaryEvent `json:"data"`
	}
	if err := wsjson.Read(ctx, conn, &ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if ev.Type != "summary" || ev.Data.Text != "They escape." {
		t.Errorf("event = %+v", ev)
	}
}
