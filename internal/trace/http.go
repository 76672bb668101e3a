package trace

import (
	"encoding/json"
	"net/http"
)

// Middleware extracts or creates a trace for each control request and echoes
// the trace and session ids back to the caller.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tc := extractFromHeaders(r)
		w.Header().Set(TraceIDKey, tc.TraceID)
		if tc.SessionID != "" {
			w.Header().Set(SessionIDKey, tc.SessionID)
		}
		next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), tc)))
	})
}

func extractFromHeaders(r *http.Request) Context {
	tc := Context{
		TraceID:      r.Header.Get(TraceIDKey),
		ParentSpanID: r.Header.Get(SpanIDKey),
		SessionID:    r.Header.Get(SessionIDKey),
		SpanID:       generateSpanID(),
	}
	if tc.TraceID == "" {
		tc.TraceID = generateTraceID()
	}
	return tc
}

// ExtractFromJSON reads the optional trace_id and session_id of a websocket
// command. It reports false when the command carries neither; a missing
// trace_id is generated.
func ExtractFromJSON(data []byte) (Context, bool) {
	var msg struct {
		TraceID   string `json:"trace_id"`
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(data, &msg); err != nil || (msg.TraceID == "" && msg.SessionID == "") {
		return New(), false
	}
	tc := Context{
		TraceID:   msg.TraceID,
		SpanID:    generateSpanID(),
		SessionID: msg.SessionID,
	}
	if tc.TraceID == "" {
		tc.TraceID = generateTraceID()
	}
	return tc, true
}
