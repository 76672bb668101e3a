package inference

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	apperrors "github.com/GriffinCanCode/cinescribe/internal/errors"
	"github.com/GriffinCanCode/cinescribe/internal/resilience"
	"github.com/GriffinCanCode/cinescribe/internal/trace"
)

func chatServer(t *testing.T, handler func(w http.ResponseWriter, body chatRequest)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]any
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			t.Errorf("decode request: %v", err)
		}
		data, _ := json.Marshal(raw)
		var body chatRequest
		_ = json.Unmarshal(data, &body)
		body.Messages = nil
		if msgs, ok := raw["messages"].([]any); ok {
			for _, m := range msgs {
				mm := m.(map[string]any)
				body.Messages = append(body.Messages, chatMessage{Role: mm["role"].(string), Content: mm["content"]})
			}
		}
		handler(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func reply(w http.ResponseWriter, text string) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"choices": []any{map[string]any{"message": map[string]any{"content": text}}},
	})
}

func TestHTTPCompleteWithImages(t *testing.T) {
	var got chatRequest
	srv := chatServer(t, func(w http.ResponseWriter, body chatRequest) {
		got = body
		reply(w, "  A man in a grey coat crosses the platform.\n")
	})

	c := NewHTTP(Endpoint{Name: "vision", URL: srv.URL, Model: "qwen/qwen3-vl-30b", Temperature: 0.7})
	text, err := c.Complete(context.Background(), Request{
		System:    "You are a video logger.",
		Prompt:    "Describe the frames.",
		Images:    []image.Image{image.NewRGBA(image.Rect(0, 0, 4, 4))},
		MaxTokens: 350,
	})
	if err != nil {
		t.Fatal(err)
	}
	if text != "A man in a grey coat crosses the platform." {
		t.Errorf("text = %q", text)
	}
	if got.Model != "qwen/qwen3-vl-30b" || got.MaxTokens != 350 || got.Temperature != 0.7 {
		t.Errorf("request = %+v", got)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" {
		t.Fatalf("messages = %+v", got.Messages)
	}
	parts, ok := got.Messages[1].Content.([]any)
	if !ok || len(parts) != 2 {
		t.Fatalf("user content = %#v, want text + image parts", got.Messages[1].Content)
	}
	img := parts[1].(map[string]any)["image_url"].(map[string]any)["url"].(string)
	if !strings.HasPrefix(img, "data:image/jpeg;base64,") {
		t.Errorf("image url = %.40s", img)
	}
}

func TestHTTPExplicitZeroTemperature(t *testing.T) {
	var got chatRequest
	srv := chatServer(t, func(w http.ResponseWriter, body chatRequest) {
		got = body
		reply(w, "Where were you?")
	})
	c := NewHTTP(Endpoint{URL: srv.URL, Temperature: 0.7})

	if _, err := c.Complete(context.Background(), Request{Prompt: "Read the captions.", Temperature: Temp(0)}); err != nil {
		t.Fatal(err)
	}
	if got.Temperature != 0 {
		t.Errorf("temperature = %v, want 0", got.Temperature)
	}

	if _, err := c.Complete(context.Background(), Request{Prompt: "Describe."}); err != nil {
		t.Fatal(err)
	}
	if got.Temperature != 0.7 {
		t.Errorf("unset temperature = %v, want endpoint default 0.7", got.Temperature)
	}
}

func TestHTTPTextOnlyUsesStringContent(t *testing.T) {
	var got chatRequest
	srv := chatServer(t, func(w http.ResponseWriter, body chatRequest) {
		got = body
		reply(w, "<think>the user wants a recap</think>\nPhase recap.")
	})

	text, err := NewHTTP(Endpoint{URL: srv.URL}).Complete(context.Background(), Request{Prompt: "Summarize."})
	if err != nil {
		t.Fatal(err)
	}
	if text != "Phase recap." {
		t.Errorf("text = %q, reasoning block should be dropped", text)
	}
	if s, ok := got.Messages[0].Content.(string); !ok || s != "Summarize." {
		t.Errorf("content = %#v, want plain string", got.Messages[0].Content)
	}
}

func TestHTTPErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   apperrors.Code
	}{
		{"server error", http.StatusInternalServerError, "boom", apperrors.CodeInferenceFailed},
		{"unavailable", http.StatusServiceUnavailable, "loading model", apperrors.CodeInferenceUnavailable},
		{"empty", http.StatusOK, `{"choices":[{"message":{"content":"   "}}]}`, apperrors.CodeInferenceEmpty},
		{"no choices", http.StatusOK, `{"choices":[]}`, apperrors.CodeInferenceEmpty},
		{"garbage", http.StatusOK, `not json`, apperrors.CodeInferenceFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewHTTP(Endpoint{URL: srv.URL}).Complete(context.Background(), Request{Prompt: "x"})
			if !apperrors.IsCode(err, tt.want) {
				t.Errorf("err = %v, want %s", err, tt.want)
			}
		})
	}
}

func TestHTTPTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := NewHTTP(Endpoint{URL: srv.URL}).Complete(ctx, Request{Prompt: "x"})
	if !apperrors.IsCode(err, apperrors.CodeTimeout) {
		t.Errorf("err = %v, want TIMEOUT", err)
	}
}

type stubClient struct {
	calls int
	err   error
}

func (s *stubClient) Complete(context.Context, Request) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return "ok", nil
}

func TestGuardedOpensAfterFailures(t *testing.T) {
	stub := &stubClient{err: errors.New("connection refused")}
	g := NewGuarded("vision", stub)

	for i := 0; i < resilience.DefaultThreshold; i++ {
		_, _ = g.Complete(context.Background(), Request{})
	}
	if g.State() != resilience.Open {
		t.Fatalf("state = %v, want open", g.State())
	}

	_, err := g.Complete(context.Background(), Request{})
	if !apperrors.IsCode(err, apperrors.CodeInferenceUnavailable) {
		t.Errorf("err = %v, want INFERENCE_UNAVAILABLE", err)
	}
	if stub.calls != resilience.DefaultThreshold {
		t.Errorf("inner calls = %d, open breaker should not call through", stub.calls)
	}
}

func TestGuardedEmptyCompletionsKeepEndpointUp(t *testing.T) {
	stub := &stubClient{err: emptyCompletion("llava")}
	g := NewGuarded("vision", stub)

	for i := 0; i < resilience.DefaultThreshold+2; i++ {
		if _, err := g.Complete(context.Background(), Request{}); !apperrors.IsCode(err, apperrors.CodeInferenceEmpty) {
			t.Fatalf("call %d: err = %v, want INFERENCE_EMPTY", i, err)
		}
	}
	if g.State() != resilience.Closed {
		t.Errorf("state = %v, want closed", g.State())
	}
}

func TestDialUnknownTransport(t *testing.T) {
	if _, _, err := Dial(Endpoint{Transport: "smoke-signal"}); !apperrors.IsCode(err, apperrors.CodeConfigInvalid) {
		t.Errorf("Dial = %v, want CONFIG_INVALID", err)
	}
	g, closeFn, err := Dial(Endpoint{Name: "ocr", URL: "http://127.0.0.1:1"})
	if err != nil || g == nil {
		t.Fatalf("Dial http = %v", err)
	}
	_ = closeFn()
}

func startGRPC(t *testing.T, handle func(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)) *GRPC {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	srv.RegisterService(&grpc.ServiceDesc{
		ServiceName: "cinescribe.inference.v1.Inference",
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{{
			MethodName: "Complete",
			Handler: func(_ any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
				in := new(structpb.Struct)
				if err := dec(in); err != nil {
					return nil, err
				}
				return handle(ctx, in)
			},
		}},
	}, struct{}{})
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	c, err := NewGRPC(Endpoint{Name: "vision", Addr: "passthrough:///bufnet", Model: "vl", Timeout: 5 * time.Second},
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestGRPCComplete(t *testing.T) {
	var session string
	var fields map[string]*structpb.Value
	c := startGRPC(t, func(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		if v := md.Get(trace.SessionIDKey); len(v) > 0 {
			session = v[0]
		}
		fields = in.GetFields()
		return structpb.NewStruct(map[string]any{"text": "Rain on the window."})
	})

	ctx := trace.WithSession(context.Background(), "sess-42")
	text, err := c.Complete(ctx, Request{Prompt: "Describe.", MaxTokens: 350, Images: []image.Image{image.NewRGBA(image.Rect(0, 0, 2, 2))}})
	if err != nil {
		t.Fatal(err)
	}
	if text != "Rain on the window." {
		t.Errorf("text = %q", text)
	}
	if session != "sess-42" {
		t.Errorf("server saw session %q", session)
	}
	if fields["model"].GetStringValue() != "vl" || fields["max_tokens"].GetNumberValue() != 350 {
		t.Errorf("request fields = %v", fields)
	}
	if n := len(fields["images"].GetListValue().GetValues()); n != 1 {
		t.Errorf("images = %d, want 1", n)
	}
}

func TestGRPCErrorDetail(t *testing.T) {
	c := startGRPC(t, func(context.Context, *structpb.Struct) (*structpb.Struct, error) {
		return nil, apperrors.New(apperrors.CodeInferenceUnavailable, "model loading").GRPCStatus().Err()
	})

	_, err := c.Complete(context.Background(), Request{Prompt: "x"})
	if !apperrors.IsCode(err, apperrors.CodeInferenceUnavailable) {
		t.Errorf("err = %v, want INFERENCE_UNAVAILABLE", err)
	}
}

func TestGRPCEmptyAndPlainErrors(t *testing.T) {
	empty := startGRPC(t, func(context.Context, *structpb.Struct) (*structpb.Struct, error) {
		return &structpb.Struct{}, nil
	})
	if _, err := empty.Complete(context.Background(), Request{}); !apperrors.IsCode(err, apperrors.CodeInferenceEmpty) {
		t.Errorf("err = %v, want INFERENCE_EMPTY", err)
	}

	plain := startGRPC(t, func(context.Context, *structpb.Struct) (*structpb.Struct, error) {
		return nil, status.Error(codes.Internal, "cuda oom")
	})
	if _, err := plain.Complete(context.Background(), Request{}); !apperrors.IsCode(err, apperrors.CodeInferenceFailed) {
		t.Errorf("err = %v, want INFERENCE_FAILED", err)
	}
}
