// Package dedup removes caption lines that were already read on earlier ticks.
// Captions stay on screen for several samples, so the same line comes back
// from OCR again and again with small recognition differences.
package dedup

import (
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pmezard/go-difflib/difflib"
)

const (
	DefaultHistory   = 10
	DefaultRatio     = 0.85
	DefaultMinLength = 2
)

// DefaultMarkers are the replies an OCR model gives when it sees no caption.
var DefaultMarkers = []string{"无", "none"}

type Config struct {
	History   int      // lines remembered
	Ratio     float64  // similarity above which a line is a repeat
	MinLength int      // shorter lines are dropped, in runes
	Markers   []string // whole-line "no text" replies
}

// Deduplicator is safe for concurrent use; dispatches for one session share it.
type Deduplicator struct {
	cfg Config

	mu      sync.Mutex
	history []string
}

func New(cfg Config) *Deduplicator {
	if cfg.History <= 0 {
		cfg.History = DefaultHistory
	}
	if cfg.Ratio <= 0 {
		cfg.Ratio = DefaultRatio
	}
	if cfg.MinLength <= 0 {
		cfg.MinLength = DefaultMinLength
	}
	if cfg.Markers == nil {
		cfg.Markers = DefaultMarkers
	}
	return &Deduplicator{cfg: cfg, history: make([]string, 0, cfg.History)}
}

// Process returns the new lines of raw, in order, joined by spaces.
// Lines it returns are remembered; the oldest are forgotten past History.
func (d *Deduplicator) Process(raw string) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	var kept []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if utf8.RuneCountInString(line) < d.cfg.MinLength || d.isMarker(line) || d.seen(line) {
			continue
		}
		kept = append(kept, line)
		d.history = append(d.history, line)
		if len(d.history) > d.cfg.History {
			d.history = d.history[1:]
		}
	}
	return strings.Join(kept, " ")
}

func (d *Deduplicator) isMarker(line string) bool {
	for _, m := range d.cfg.Markers {
		if strings.EqualFold(line, m) {
			return true
		}
	}
	return false
}

func (d *Deduplicator) seen(line string) bool {
	a := runes(line)
	for _, old := range d.history {
		if difflib.NewMatcher(a, runes(old)).Ratio() > d.cfg.Ratio {
			return true
		}
	}
	return false
}

// remembered returns a copy of the remembered lines, oldest first.
func (d *Deduplicator) remembered() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.history))
	copy(out, d.history)
	return out
}

// runes splits s into one-rune strings so the matcher compares characters, not words.
func runes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
