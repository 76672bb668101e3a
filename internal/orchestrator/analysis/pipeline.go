// Package analysis turns one batch of frames into one observation: it reads
// the captions, composes the frames, and asks the vision model what happened.
package analysis

import (
	"context"
	"image"
	"strings"

	apperrors "github.com/GriffinCanCode/cinescribe/internal/errors"
	"github.com/GriffinCanCode/cinescribe/internal/imaging"
	"github.com/GriffinCanCode/cinescribe/internal/inference"
	"github.com/GriffinCanCode/cinescribe/internal/orchestrator/batch"
	"github.com/GriffinCanCode/cinescribe/internal/orchestrator/dedup"
	"github.com/GriffinCanCode/cinescribe/internal/orchestrator/narrative"
	"github.com/GriffinCanCode/cinescribe/internal/orchestrator/prompt"
	"github.com/GriffinCanCode/cinescribe/internal/trace"
)

const (
	DefaultOCRWidth       = 1024
	DefaultMaxDimension   = 1560
	DefaultOCRMaxTokens   = 150
	DefaultEntryMaxTokens = 350
)

type Config struct {
	OCRWidth       int // caption strip width sent to OCR
	MaxDimension   int // longest side of the image sent to the vision model
	OCRMaxTokens   int
	EntryMaxTokens int
	Temperature    float64
}

func (c Config) withDefaults() Config {
	if c.OCRWidth <= 0 {
		c.OCRWidth = DefaultOCRWidth
	}
	if c.MaxDimension <= 0 {
		c.MaxDimension = DefaultMaxDimension
	}
	if c.OCRMaxTokens <= 0 {
		c.OCRMaxTokens = DefaultOCRMaxTokens
	}
	if c.EntryMaxTokens <= 0 {
		c.EntryMaxTokens = DefaultEntryMaxTokens
	}
	return c
}

// Pipeline is session-scoped: its deduplicator remembers captions across batches.
type Pipeline struct {
	cfg     Config
	vision  inference.Client
	ocr     inference.Client // nil skips caption reading
	dedup   *dedup.Deduplicator
	prompts prompt.Set
}

func New(cfg Config, vision, ocr inference.Client, d *dedup.Deduplicator, prompts prompt.Set) *Pipeline {
	return &Pipeline{cfg: cfg.withDefaults(), vision: vision, ocr: ocr, dedup: d, prompts: prompts}
}

// Analyze describes b given a snapshot of the narrative so far. Any error
// means the unit is dropped; nothing partial is returned.
func (p *Pipeline) Analyze(ctx context.Context, b batch.Batch, hist prompt.History) (narrative.Observation, error) {
	ctx, span := trace.StartSpan(ctx, "analyze_batch")
	defer span.End()
	span.SetAttr("batch", b.Index)
	span.SetAttr("frames", len(b.Samples))

	if len(b.Samples) == 0 {
		return narrative.Observation{}, apperrors.New(apperrors.CodeInvalidArgument, "empty batch")
	}

	captions := p.readCaptions(ctx, b)

	img := imaging.FitWithin(imaging.Grid(b.Frames()), p.cfg.MaxDimension)
	text, err := p.vision.Complete(ctx, inference.Request{
		Prompt:      p.prompts.Entry(len(b.Samples), clipSeconds(b), hist, captions),
		Images:      []image.Image{img},
		MaxTokens:   p.cfg.EntryMaxTokens,
		Temperature: inference.Temp(p.cfg.Temperature),
	})
	if err != nil {
		span.SetAttr("error", err.Error())
		return narrative.Observation{}, err
	}

	return narrative.Observation{
		Batch:       b.Index,
		Frames:      len(b.Samples),
		CapturedAt:  b.Start(),
		Transcript:  captions,
		Description: strings.TrimSpace(text),
	}, nil
}

// readCaptions returns the new caption text of b, or "" when OCR is off or fails.
func (p *Pipeline) readCaptions(ctx context.Context, b batch.Batch) string {
	if p.ocr == nil {
		return ""
	}
	strips := b.Captions()
	if len(strips) == 0 {
		return ""
	}

	raw, err := p.ocr.Complete(ctx, inference.Request{
		Prompt:      p.prompts.Caption,
		Images:      []image.Image{imaging.ToWidth(imaging.Vertical(strips), p.cfg.OCRWidth)},
		MaxTokens:   p.cfg.OCRMaxTokens,
		Temperature: inference.Temp(0),
	})
	if err != nil {
		trace.Logger(ctx).Warn("caption read failed", "batch", b.Index, "error", err)
		return ""
	}
	if p.dedup == nil {
		return strings.TrimSpace(raw)
	}
	return p.dedup.Process(raw)
}

// clipSeconds is the seconds covered by b, first to last capture.
func clipSeconds(b batch.Batch) float64 {
	if len(b.Samples) < 2 {
		return 0
	}
	return b.Samples[len(b.Samples)-1].CapturedAt.Sub(b.Start()).Seconds()
}
