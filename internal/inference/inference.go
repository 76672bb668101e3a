// Package inference talks to the vision-language model service that reads
// captions and describes frames.
package inference

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"time"

	apperrors "github.com/GriffinCanCode/cinescribe/internal/errors"
	"github.com/GriffinCanCode/cinescribe/internal/resilience"
	"github.com/GriffinCanCode/cinescribe/internal/trace"
)

// Request is one completion: instructions, a prompt and optional images.
type Request struct {
	System      string
	Prompt      string
	Images      []image.Image
	MaxTokens   int
	Temperature *float64 // nil uses the endpoint's default
}

// Temp returns a request temperature, so an explicit 0 is kept.
func Temp(v float64) *float64 { return &v }

// Client returns generated text or fails. A failure means the caller drops the unit.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Endpoint describes one model behind one transport.
type Endpoint struct {
	Name        string // "vision" or "ocr", for logs and breaker state
	Transport   string // "http" or "grpc"
	URL         string // chat completions URL for http
	Addr        string // host:port for grpc
	Model       string
	APIKey      string
	Timeout     time.Duration
	Temperature float64
	JPEGQuality int
}

// Dial builds the transport client for ep, wrapped in a circuit breaker.
// The returned close func releases the transport.
func Dial(ep Endpoint) (*Guarded, func() error, error) {
	switch ep.Transport {
	case "", "http":
		return NewGuarded(ep.Name, NewHTTP(ep)), func() error { return nil }, nil
	case "grpc":
		c, err := NewGRPC(ep)
		if err != nil {
			return nil, nil, err
		}
		return NewGuarded(ep.Name, c), c.Close, nil
	default:
		return nil, nil, apperrors.Newf(apperrors.CodeConfigInvalid, "unknown inference transport %q", ep.Transport)
	}
}

// Guarded fails fast while its endpoint keeps failing.
type Guarded struct {
	name    string
	inner   Client
	breaker *resilience.Breaker
}

func NewGuarded(name string, inner Client) *Guarded {
	cfg := resilience.DefaultConfig(name)
	cfg.Answered = func(err error) bool { return apperrors.IsCode(err, apperrors.CodeInferenceEmpty) }
	return &Guarded{name: name, inner: inner, breaker: resilience.New(cfg)}
}

func (g *Guarded) Complete(ctx context.Context, req Request) (string, error) {
	ctx, span := trace.StartSpan(ctx, "inference."+g.name)
	span.SetAttr("images", len(req.Images))
	span.SetAttr("max_tokens", req.MaxTokens)
	defer span.End()

	text, err := resilience.Do(ctx, g.breaker, func(ctx context.Context) (string, error) {
		return g.inner.Complete(ctx, req)
	})
	if errors.Is(err, resilience.ErrOpen) {
		return "", apperrors.Wrapf(err, apperrors.CodeInferenceUnavailable, "%s endpoint failing, call skipped", g.name)
	}
	span.SetAttr("chars", len(text))
	return text, err
}

// State reports the breaker state for status displays.
func (g *Guarded) State() resilience.State { return g.breaker.State() }

// clean trims whitespace and drops a leading reasoning block some models emit.
func clean(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "<think>") {
		if _, after, ok := strings.Cut(text, "</think>"); ok {
			text = strings.TrimSpace(after)
		}
	}
	return text
}

func emptyCompletion(model string) error {
	return apperrors.New(apperrors.CodeInferenceEmpty, "model returned no text").WithMetadata("model", model)
}

func transportError(err error, what string) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.Wrap(err, apperrors.CodeTimeout, what)
	case errors.Is(err, context.Canceled):
		return apperrors.Wrap(err, apperrors.CodeCancelled, what)
	default:
		return apperrors.Wrap(err, apperrors.CodeInferenceUnavailable, what)
	}
}

func temperature(req Request, ep Endpoint) float64 {
	if req.Temperature != nil {
		return *req.Temperature
	}
	return ep.Temperature
}

func orDefault[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

func describe(ep Endpoint) string {
	return fmt.Sprintf("%s (%s)", ep.Name, ep.Model)
}
