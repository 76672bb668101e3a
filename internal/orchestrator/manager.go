// Package orchestrator drives capture sessions: a fixed-cadence capture loop,
// the novelty gate, batching, asynchronous analysis and the narrative tiers.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/GriffinCanCode/cinescribe/internal/config"
	apperrors "github.com/GriffinCanCode/cinescribe/internal/errors"
	"github.com/GriffinCanCode/cinescribe/internal/inference"
	"github.com/GriffinCanCode/cinescribe/internal/orchestrator/analysis"
	"github.com/GriffinCanCode/cinescribe/internal/orchestrator/batch"
	"github.com/GriffinCanCode/cinescribe/internal/orchestrator/dedup"
	"github.com/GriffinCanCode/cinescribe/internal/orchestrator/narrative"
	"github.com/GriffinCanCode/cinescribe/internal/orchestrator/novelty"
	"github.com/GriffinCanCode/cinescribe/internal/orchestrator/prompt"
	"github.com/GriffinCanCode/cinescribe/internal/orchestrator/transcript"
	"github.com/GriffinCanCode/cinescribe/internal/playback"
	"github.com/GriffinCanCode/cinescribe/internal/screen"
	"github.com/GriffinCanCode/cinescribe/internal/syncx"
	"github.com/GriffinCanCode/cinescribe/internal/trace"
)

// SourceFactory opens the capturer for a target.
type SourceFactory func(screen.Target) (screen.Capturer, error)

// Status is a read-only snapshot for display.
type Status struct {
	State            string    `json:"state"`
	SessionID        string    `json:"session_id,omitempty"`
	Target           string    `json:"target,omitempty"`
	StartedAt        time.Time `json:"started_at,omitzero"`
	Entries          int       `json:"entries"`
	Summaries        int       `json:"summaries"`
	Ticks            int       `json:"ticks"`
	Accepted         int       `json:"accepted"`
	Skipped          int       `json:"skipped"`
	LastTickMillis   int64     `json:"last_tick_ms"`
	LastScore        float64   `json:"last_score"`
	ConsecutiveSkips int       `json:"consecutive_skips"`
	BatchFill        int       `json:"batch_fill"`
	BatchSize        int       `json:"batch_size"`
	InFlight         int       `json:"in_flight"`
	CaptureFailures  int       `json:"capture_failures"`
	DroppedUnits     int       `json:"dropped_units"`
	TranscriptPath   string    `json:"transcript_path,omitempty"`
	Error            string    `json:"error,omitempty"`
}

// Option customizes a Manager.
type Option func(*Manager)

// WithSources replaces the screen capturer factory.
func WithSources(f SourceFactory) Option { return func(m *Manager) { m.sources = f } }

// WithPlayback replaces the playback controller.
func WithPlayback(c playback.Controller) Option { return func(m *Manager) { m.playback = c } }

// WithBus publishes live events on b instead of a private bus.
func WithBus(b *transcript.Bus) Option { return func(m *Manager) { m.bus = b } }

// Manager owns at most one session at a time. Sessions can be started again
// once the previous one is Done.
type Manager struct {
	cfg      *config.Config
	vision   inference.Client
	ocr      inference.Client
	prompts  prompt.Set
	playback playback.Controller
	sources  SourceFactory
	bus      *transcript.Bus

	mu    sync.Mutex
	state State
	sess  *session
}

// New creates a manager. ocr may be nil to skip caption reading.
func New(cfg *config.Config, vision, ocr inference.Client, opts ...Option) *Manager {
	m := &Manager{
		cfg:      cfg,
		vision:   vision,
		ocr:      ocr,
		prompts:  prompt.Defaults().Override(prompt.Set(cfg.Prompts)),
		playback: playback.Logged{Controller: playback.New(cfg.PlaybackEnabled)},
		sources:  screen.New,
		bus:      transcript.NewBus(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Bus returns the live event bus.
func (m *Manager) Bus() *transcript.Bus { return m.bus }

// State returns the lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// session is everything one run owns. Nothing in it outlives the run.
type session struct {
	id       string
	target   screen.Target
	interval time.Duration
	start    time.Time
	ctx      context.Context
	stop     chan struct{}
	done     chan struct{}

	source    screen.Capturer
	gate      *novelty.Gate
	agg       *batch.Aggregator
	pipeline  *analysis.Pipeline
	narrative *narrative.Hierarchy
	writer    *transcript.Writer
	seq       *syncx.Sequencer[narrative.Observation]
	inflight  sync.WaitGroup
	summaries chan struct{} // closed when the summarizer returns
	samples   int

	status *syncx.RWGuard[Status]

	report narrative.Report
	err    error
}

// StartSession begins capturing target every interval (the configured
// interval when zero). ctx bounds the session, including finalization.
func (m *Manager) StartSession(ctx context.Context, target screen.Target, interval time.Duration) (string, error) {
	if !target.Valid() {
		return "", apperrors.New(apperrors.CodeConfigMissing, "no capture target selected")
	}
	if interval <= 0 {
		interval = config.Seconds(m.cfg.CaptureInterval)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Active() {
		return "", apperrors.New(apperrors.CodeSessionActive, "a session is already running").
			WithMetadata("session_id", m.sess.id)
	}

	source, err := m.sources(target)
	if err != nil {
		return "", err
	}

	s, err := m.newSession(ctx, target, interval, source)
	if err != nil {
		source.Close()
		return "", err
	}

	m.sess = s
	m.state = Running
	m.bus.SetSession(s.id)

	log := trace.Logger(s.ctx)
	log.Info("session started", "target", target.String(), "interval", interval,
		"transcript", s.writer.Path(), "listeners", m.bus.Subscribers())
	m.bus.Emit(transcript.EventSession, m.snapshot(s, Running))

	go func() {
		defer close(s.summaries)
		s.narrative.Serve(s.ctx)
	}()
	go m.run(s)
	return s.id, nil
}

func (m *Manager) newSession(ctx context.Context, target screen.Target, interval time.Duration, source screen.Capturer) (*session, error) {
	cfg := m.cfg
	id := uuid.NewString()
	start := time.Now()

	writer, err := transcript.Create(cfg.OutputDir, start, fmt.Sprintf("Session %s, target %s", id, target))
	if err != nil {
		return nil, err
	}

	s := &session{
		id:        id,
		target:    target,
		interval:  interval,
		start:     start,
		ctx:       trace.WithSession(ctx, id),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		source:    source,
		writer:    writer,
		summaries: make(chan struct{}),
		gate: novelty.New(novelty.Config{
			Enabled:   cfg.NoveltyEnabled,
			Metric:    cfg.NoveltyMetric,
			Threshold: cfg.NoveltyThreshold,
			MaxSkip:   cfg.MaxSkip,
			Region:    cfg.NoveltyRegion,
		}),
		agg: batch.NewAggregator(cfg.BatchSize),
	}

	var d *dedup.Deduplicator
	if m.ocr != nil {
		d = dedup.New(dedup.Config{
			History:   cfg.DedupHistory,
			Ratio:     cfg.DedupRatio,
			MinLength: cfg.DedupMinLength,
			Markers:   cfg.NoTextMarkers,
		})
	}
	s.pipeline = analysis.New(analysis.Config{
		OCRWidth:       cfg.OCRTargetWidth,
		MaxDimension:   cfg.VisionMaxDimension,
		OCRMaxTokens:   cfg.OCRMaxTokens,
		EntryMaxTokens: cfg.EntryMaxTokens,
		Temperature:    cfg.Temperature,
	}, m.vision, m.ocr, d, m.prompts)

	s.narrative = narrative.New(narrative.Config{
		PhaseEvery:     cfg.PhaseEvery,
		Lookback:       cfg.PhaseLookback,
		SettleDelay:    config.Seconds(cfg.SettleDelay),
		ResumeDelay:    config.Seconds(cfg.ResumeDelay),
		PhaseMaxTokens: cfg.PhaseMaxTokens,
		FinalMaxTokens: cfg.FinalMaxTokens,
		Temperature:    cfg.Temperature,
	}, m.vision, m.prompts, m.playback, target, narrative.Sinks{writer, m.bus}, start)

	s.seq = syncx.NewSequencer(func(obs narrative.Observation) {
		if _, err := s.narrative.Append(obs); err != nil {
			trace.Logger(s.ctx).Warn("entry dropped", "batch", obs.Batch, "error", err)
		}
	})

	s.status = syncx.NewGuard(Status{
		SessionID:      id,
		Target:         target.String(),
		StartedAt:      start,
		BatchSize:      s.agg.Size(),
		TranscriptPath: writer.Path(),
	})
	return s, nil
}

// StopSession asks the running session to stop after its current tick.
// It does not wait; use Wait for the report.
func (m *Manager) StopSession() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Running {
		return apperrors.Newf(apperrors.CodeSessionIdle, "no running session (state %s)", m.state)
	}
	m.state = Stopping
	close(m.sess.stop)
	trace.Logger(m.sess.ctx).Info("session stop requested")
	return nil
}

// Wait blocks until the current or last session is Done and returns its report.
func (m *Manager) Wait(ctx context.Context) (narrative.Report, error) {
	m.mu.Lock()
	s := m.sess
	m.mu.Unlock()
	if s == nil {
		return narrative.Report{}, apperrors.New(apperrors.CodeSessionIdle, "no session")
	}

	select {
	case <-s.done:
		return s.report, s.err
	case <-ctx.Done():
		return narrative.Report{}, ctx.Err()
	}
}

// Report returns the final report of the last finished session.
func (m *Manager) Report() (narrative.Report, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Done || m.sess == nil || m.sess.err != nil {
		return narrative.Report{}, false
	}
	return m.sess.report, true
}

// Status returns a snapshot of the current or last session.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return Status{State: m.state.String()}
	}
	return m.snapshot(m.sess, m.state)
}

func (m *Manager) snapshot(s *session, state State) Status {
	st := s.status.Get()
	st.State = state.String()
	st.Entries = s.narrative.Len()
	st.Summaries = len(s.narrative.Summaries())
	st.BatchFill = s.agg.Len()
	st.InFlight = s.seq.Pending()
	if s.err != nil {
		st.Error = s.err.Error()
	}
	return st
}

func (m *Manager) setState(s *session, state State) {
	m.mu.Lock()
	if m.sess == s {
		m.state = state
	}
	m.mu.Unlock()
	trace.Logger(s.ctx).Debug("session state", "state", state.String())
}
