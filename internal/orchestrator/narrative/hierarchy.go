// Package narrative owns the three tiers of a session's story: frame-level
// entries, phase summaries over runs of entries, and the final report.
package narrative

import (
	"context"
	"errors"
	"sync"
	"time"

	apperrors "github.com/GriffinCanCode/cinescribe/internal/errors"
	"github.com/GriffinCanCode/cinescribe/internal/inference"
	"github.com/GriffinCanCode/cinescribe/internal/orchestrator/prompt"
	"github.com/GriffinCanCode/cinescribe/internal/playback"
	"github.com/GriffinCanCode/cinescribe/internal/screen"
	"github.com/GriffinCanCode/cinescribe/internal/trace"
)

var (
	ErrFinalized        = errors.New("narrative already finalized")
	ErrNothingToReport  = errors.New("no phase summaries to report")
	errSummarizerClosed = errors.New("summarizer closed")
)

type Config struct {
	PhaseEvery     int // entries per phase summary
	Lookback       int // most recent entries of a run shown to the model
	SettleDelay    time.Duration
	ResumeDelay    time.Duration
	PhaseMaxTokens int
	FinalMaxTokens int
	Temperature    float64
}

func (c Config) withDefaults() Config {
	if c.PhaseEvery <= 0 {
		c.PhaseEvery = DefaultPhaseEvery
	}
	if c.Lookback <= 0 {
		c.Lookback = c.PhaseEvery
	}
	if c.PhaseMaxTokens <= 0 {
		c.PhaseMaxTokens = DefaultPhaseMaxTokens
	}
	if c.FinalMaxTokens <= 0 {
		c.FinalMaxTokens = DefaultFinalMaxTokens
	}
	return c
}

// Hierarchy is the session-scoped narrative. Entries and summaries are
// append-only; at most one summary or report is generated at a time.
type Hierarchy struct {
	cfg      Config
	client   inference.Client
	prompts  prompt.Set
	playback playback.Controller
	target   screen.Target
	sink     Sink
	start    time.Time

	mu        sync.RWMutex
	entries   []Entry
	summaries []Summary
	triggered int // entries covered by queued or written runs
	finalized bool
	report    *Report
	runs      []Run
	closed    bool

	notify      chan struct{}
	summarizeMu sync.Mutex
}

// New creates the narrative for a session that started at start.
func New(cfg Config, client inference.Client, prompts prompt.Set, ctl playback.Controller, target screen.Target, sink Sink, start time.Time) *Hierarchy {
	if ctl == nil {
		ctl = playback.Noop{}
	}
	if sink == nil {
		sink = Sinks{}
	}
	return &Hierarchy{
		cfg:      cfg.withDefaults(),
		client:   client,
		prompts:  prompts,
		playback: ctl,
		target:   target,
		sink:     sink,
		start:    start,
		notify:   make(chan struct{}, 1),
	}
}

// Append records obs as the next entry. Every PhaseEvery entries a run is
// queued for the summarizer.
func (h *Hierarchy) Append(obs Observation) (Entry, error) {
	h.mu.Lock()
	if h.finalized {
		h.mu.Unlock()
		return Entry{}, ErrFinalized
	}
	e := Entry{
		Seq:         len(h.entries) + 1,
		Batch:       obs.Batch,
		Elapsed:     obs.CapturedAt.Sub(h.start),
		CreatedAt:   time.Now(),
		Transcript:  obs.Transcript,
		Description: obs.Description,
	}
	h.entries = append(h.entries, e)

	queued := false
	if len(h.entries)-h.triggered >= h.cfg.PhaseEvery {
		h.runs = append(h.runs, Run{From: h.triggered + 1, To: len(h.entries)})
		h.triggered = len(h.entries)
		queued = true
	}
	h.mu.Unlock()

	h.sink.Entry(e)
	if queued {
		select {
		case h.notify <- struct{}{}:
		default:
		}
	}
	return e, nil
}

// Context snapshots the prompt context: the last summaryN summaries (all when
// zero) and the last entryN entries.
func (h *Hierarchy) Context(entryN, summaryN int) prompt.History {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sums := h.summaries
	if summaryN > 0 && len(sums) > summaryN {
		sums = sums[len(sums)-summaryN:]
	}
	ents := h.entries
	if entryN >= 0 && len(ents) > entryN {
		ents = ents[len(ents)-entryN:]
	}

	hist := prompt.History{
		Summaries: make([]string, len(sums)),
		Entries:   make([]string, len(ents)),
	}
	for i, s := range sums {
		hist.Summaries[i] = s.Text
	}
	for i, e := range ents {
		hist.Entries[i] = e.Text()
	}
	return hist
}

// Serve runs queued phase summaries until Close is called and the queue is empty.
func (h *Hierarchy) Serve(ctx context.Context) {
	for {
		run, err := h.nextRun(ctx)
		if err != nil {
			return
		}
		if _, err := h.Summarize(ctx, run); err != nil {
			trace.Logger(ctx).Warn("phase summary dropped", "from", run.From, "to", run.To, "error", err)
		}
	}
}

func (h *Hierarchy) nextRun(ctx context.Context) (Run, error) {
	for {
		h.mu.Lock()
		if len(h.runs) > 0 {
			run := h.runs[0]
			h.runs = h.runs[1:]
			h.mu.Unlock()
			return run, nil
		}
		closed := h.closed
		h.mu.Unlock()
		if closed {
			return Run{}, errSummarizerClosed
		}

		select {
		case <-h.notify:
		case <-ctx.Done():
			return Run{}, ctx.Err()
		}
	}
}

// Close tells Serve to return once queued runs are done.
func (h *Hierarchy) Close() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	select {
	case h.notify <- struct{}{}:
	default:
	}
}

// Summarize writes the phase summary for run with playback paused.
// A failure leaves no summary behind.
func (h *Hierarchy) Summarize(ctx context.Context, run Run) (Summary, error) {
	h.summarizeMu.Lock()
	defer h.summarizeMu.Unlock()

	ctx, span := trace.StartSpan(ctx, "phase_summary")
	defer span.End()
	span.SetAttr("from", run.From)
	span.SetAttr("to", run.To)

	past, recent := h.phaseInput(run)
	var text string
	err := h.paused(ctx, func() error {
		var err error
		text, err = h.client.Complete(ctx, inference.Request{
			Prompt:      h.prompts.PhaseInput(past, recent),
			MaxTokens:   h.cfg.PhaseMaxTokens,
			Temperature: inference.Temp(h.cfg.Temperature),
		})
		if err != nil {
			return err
		}
		h.mu.Lock()
		sum := Summary{Seq: len(h.summaries) + 1, From: run.From, To: run.To, Forced: run.Forced, CreatedAt: time.Now(), Text: text}
		h.summaries = append(h.summaries, sum)
		h.mu.Unlock()
		h.sink.Summary(sum)
		trace.Logger(ctx).Info("phase summary written", "seq", sum.Seq, "from", run.From, "to", run.To, "forced", run.Forced)
		return nil
	})
	if err != nil {
		span.SetAttr("error", err.Error())
		return Summary{}, err
	}
	sums := h.Summaries()
	return sums[len(sums)-1], nil
}

func (h *Hierarchy) phaseInput(run Run) (past, recent []string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	past = make([]string, len(h.summaries))
	for i, s := range h.summaries {
		past[i] = s.Text
	}
	from := max(run.From, run.To-h.cfg.Lookback+1)
	for seq := from; seq <= run.To && seq <= len(h.entries); seq++ {
		recent = append(recent, h.entries[seq-1].Text())
	}
	return past, recent
}

// paused pauses playback, waits for it to settle, runs fn, then resumes.
func (h *Hierarchy) paused(ctx context.Context, fn func() error) error {
	h.toggle(ctx, "pause")
	sleep(ctx, h.cfg.SettleDelay)
	err := fn()
	h.toggle(ctx, "resume")
	sleep(ctx, h.cfg.ResumeDelay)
	return err
}

func (h *Hierarchy) toggle(ctx context.Context, what string) {
	if err := h.playback.Toggle(ctx, h.target); err != nil {
		trace.Logger(ctx).Warn("playback "+what+" failed", "error", err)
	}
}

// Finalize forces a summary over any entries not yet covered, then writes
// the final report from every summary. Later appends fail with ErrFinalized.
func (h *Hierarchy) Finalize(ctx context.Context) (Report, error) {
	h.mu.Lock()
	if h.report != nil {
		r := *h.report
		h.mu.Unlock()
		return r, nil
	}
	h.finalized = true
	var forced *Run
	if len(h.entries) > h.triggered {
		forced = &Run{From: h.triggered + 1, To: len(h.entries), Forced: true}
		h.triggered = len(h.entries)
	}
	h.mu.Unlock()

	if forced != nil {
		if _, err := h.Summarize(ctx, *forced); err != nil {
			trace.Logger(ctx).Warn("forced phase summary dropped", "from", forced.From, "to", forced.To, "error", err)
		}
	}

	h.summarizeMu.Lock()
	defer h.summarizeMu.Unlock()

	sums := h.Summaries()
	if len(sums) == 0 {
		return Report{}, ErrNothingToReport
	}
	texts := make([]string, len(sums))
	for i, s := range sums {
		texts[i] = s.Text
	}

	ctx, span := trace.StartSpan(ctx, "final_report")
	defer span.End()
	span.SetAttr("summaries", len(sums))

	var report Report
	err := h.paused(ctx, func() error {
		text, err := h.client.Complete(ctx, inference.Request{
			System:      h.prompts.Final,
			Prompt:      prompt.FinalInput(texts),
			MaxTokens:   h.cfg.FinalMaxTokens,
			Temperature: inference.Temp(h.cfg.Temperature),
		})
		if err != nil {
			return err
		}
		report = Report{Text: text, Summaries: len(sums), Entries: h.Len(), CreatedAt: time.Now()}
		return nil
	})
	if err != nil {
		span.SetAttr("error", err.Error())
		return Report{}, apperrors.Wrap(err, apperrors.CodeReportFailed, "final report")
	}

	h.mu.Lock()
	h.report = &report
	h.mu.Unlock()
	h.sink.Report(report)
	return report, nil
}

// Len returns the number of entries.
func (h *Hierarchy) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// Summaries returns a copy of all summaries.
func (h *Hierarchy) Summaries() []Summary {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Summary, len(h.summaries))
	copy(out, h.summaries)
	return out
}

// Report returns the final report once written.
func (h *Hierarchy) Report() (Report, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.report == nil {
		return Report{}, false
	}
	return *h.report, true
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
