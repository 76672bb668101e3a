package orchestrator

import (
	"time"

	"github.com/GriffinCanCode/cinescribe/internal/config"
	"github.com/GriffinCanCode/cinescribe/internal/imaging"
	"github.com/GriffinCanCode/cinescribe/internal/orchestrator/batch"
	"github.com/GriffinCanCode/cinescribe/internal/orchestrator/novelty"
	"github.com/GriffinCanCode/cinescribe/internal/orchestrator/transcript"
	"github.com/GriffinCanCode/cinescribe/internal/trace"
)

// SkipEvent is the payload of a skip event.
type SkipEvent struct {
	Score            float64 `json:"score"`
	ConsecutiveSkips int     `json:"consecutive_skips"`
}

// run is the capture loop. Each tick sleeps whatever is left of its wait so
// the cadence holds regardless of how long capture and gating took.
func (m *Manager) run(s *session) {
	defer m.finish(s)

	minSleep := config.Seconds(m.cfg.MinSleep)
	skipWait := config.Seconds(m.cfg.SkipInterval)

	for {
		select {
		case <-s.stop:
			return
		case <-s.ctx.Done():
			return
		default:
		}

		began := time.Now()
		skipped := m.tick(s)
		elapsed := time.Since(began)
		s.status.Update(func(st *Status) { st.LastTickMillis = elapsed.Milliseconds() })

		wait := s.interval
		if skipped && skipWait > 0 {
			wait = skipWait
		}

		select {
		case <-s.stop:
			return
		case <-s.ctx.Done():
			return
		case <-time.After(max(minSleep, wait-elapsed)):
		}
	}
}

// tick captures one sample, gates it, and dispatches a batch when one fills.
// It reports whether the sample was skipped.
func (m *Manager) tick(s *session) bool {
	log := trace.Logger(s.ctx)

	img, err := s.source.Capture(s.ctx)
	if err != nil {
		s.status.Update(func(st *Status) { st.Ticks++; st.CaptureFailures++ })
		log.Warn("capture failed", "error", err)
		return false
	}
	capturedAt := time.Now()

	r := s.gate.Evaluate(img)
	s.status.Update(func(st *Status) {
		st.Ticks++
		st.LastScore = r.Score
		if r.Decision == novelty.Skip {
			st.Skipped++
			st.ConsecutiveSkips = r.ConsecutiveSkips
		} else {
			st.Accepted++
			st.ConsecutiveSkips = 0
		}
	})
	if r.Decision == novelty.Skip {
		log.Debug("sample skipped", "score", r.Score, "skips", r.ConsecutiveSkips)
		m.bus.Emit(transcript.EventSkip, SkipEvent{Score: r.Score, ConsecutiveSkips: r.ConsecutiveSkips})
		return true
	}
	if r.Forced {
		log.Debug("sample force-accepted", "score", r.Score, "skips", r.ConsecutiveSkips)
	}

	sample := batch.Sample{Index: s.samples, CapturedAt: capturedAt, Frame: img}
	if m.ocr != nil {
		sample.Caption = imaging.CropBottom(img, m.cfg.CaptionFraction)
	}
	s.samples++

	if full, ok := s.agg.Add(sample); ok {
		m.dispatch(s, full)
	}
	m.bus.Emit(transcript.EventStatus, m.snapshotLocked(s))
	return false
}

// dispatch analyzes b on its own goroutine. The result is appended in
// dispatch order; a failure gives up its slot and the unit is dropped.
func (m *Manager) dispatch(s *session, b batch.Batch) {
	id := s.seq.Reserve()
	hist := s.narrative.Context(m.cfg.EntryContext, m.cfg.SummaryContext)

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		log := trace.Logger(s.ctx).With("batch", b.Index)

		began := time.Now()
		obs, err := s.pipeline.Analyze(s.ctx, b, hist)
		if err != nil {
			s.seq.Release(id)
			s.status.Update(func(st *Status) { st.DroppedUnits++ })
			log.Warn("batch dropped", "error", err, "duration", time.Since(began))
			return
		}
		if !s.seq.Complete(id, obs) {
			s.status.Update(func(st *Status) { st.DroppedUnits++ })
			log.Warn("batch finished after finalization began, dropped", "duration", time.Since(began))
			return
		}
		log.Debug("batch analyzed", "duration", time.Since(began))
	}()
}

// finish runs after the loop exits: drain, flush, finalize.
func (m *Manager) finish(s *session) {
	log := trace.Logger(s.ctx)
	m.setState(s, Stopping)
	s.source.Close()

	drained := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(drained)
	}()
	timeout := max(config.Seconds(m.cfg.DrainTimeout), MinDrainTimeout)
	select {
	case <-drained:
	case <-time.After(timeout):
		log.Warn("in-flight batches still running at stop, finalizing without them", "timeout", timeout)
	}
	if delivered, abandoned := s.seq.Flush(); delivered > 0 || abandoned > 0 {
		log.Info("flushed held batches", "delivered", delivered, "abandoned", abandoned)
	}
	if n := s.agg.Len(); n > 0 {
		log.Info("partial batch discarded", "samples", n)
	}

	m.setState(s, Finalizing)
	s.narrative.Close()
	<-s.summaries

	report, err := s.narrative.Finalize(s.ctx)
	if err != nil {
		log.Error("final report failed", "error", err)
		s.writer.Note("session ended without a final report: " + err.Error())
	} else {
		log.Info("final report written", "summaries", report.Summaries, "entries", report.Entries)
	}
	if cerr := s.writer.Close(); cerr != nil {
		log.Warn("transcript close failed", "error", cerr)
	}

	m.mu.Lock()
	s.report, s.err = report, err
	if m.sess == s {
		m.state = Done
	}
	m.mu.Unlock()
	close(s.done)

	m.bus.Emit(transcript.EventSession, m.Status())
	log.Info("session done", "batches", s.agg.Dispatched(), "entries", report.Entries)
}

func (m *Manager) snapshotLocked(s *session) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot(s, m.state)
}
