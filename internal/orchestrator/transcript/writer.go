// Package transcript persists a session's narrative to an append-only text
// file and fans narrative events out to live subscribers.
package transcript

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	apperrors "github.com/GriffinCanCode/cinescribe/internal/errors"
	"github.com/GriffinCanCode/cinescribe/internal/orchestrator/narrative"
)

const (
	filePrefix = "cinescribe_"
	timeLayout = "20060102_150405"
	rule       = "=================================================="
)

// FileName returns the transcript name for a session started at t.
func FileName(t time.Time) string {
	return filePrefix + t.Format(timeLayout) + ".txt"
}

// Writer appends entries, phase summaries and the final report to one file.
// Write errors are logged once and otherwise ignored; the file is never read back.
type Writer struct {
	mu     sync.Mutex
	f      *os.File
	path   string
	failed bool
}

// Create opens a new transcript in dir for a session started at start.
func Create(dir string, start time.Time, header string) (*Writer, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeConfigInvalid, "create output dir")
	}
	path := filepath.Join(dir, FileName(start))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeConfigInvalid, "open transcript").
			WithMetadata("path", path)
	}

	w := &Writer{f: f, path: path}
	w.write(fmt.Sprintf("CineScribe transcript, started %s\n%s\n%s\n\n", start.Format(time.DateTime), header, rule))
	return w, nil
}

// Path returns the transcript's file path.
func (w *Writer) Path() string { return w.path }

func (w *Writer) Entry(e narrative.Entry) {
	var b strings.Builder
	fmt.Fprintf(&b, "[+%s] #%d (%s)\n", narrative.Clock(e.Elapsed), e.Seq, e.CreatedAt.Format(time.TimeOnly))
	if e.Transcript != "" {
		fmt.Fprintf(&b, "Captions: %s\n", e.Transcript)
	}
	fmt.Fprintf(&b, "Scene: %s\n\n", e.Description)
	w.write(b.String())
}

func (w *Writer) Summary(s narrative.Summary) {
	label := ""
	if s.Forced {
		label = ", closing"
	}
	w.write(fmt.Sprintf("=== Phase summary %d (entries %d-%d%s) ===\n%s\n\n", s.Seq, s.From, s.To, label, s.Text))
}

func (w *Writer) Report(r narrative.Report) {
	w.write(fmt.Sprintf("%s\nFINAL REPORT (%d phases, %d entries)\n%s\n%s\n", rule, r.Summaries, r.Entries, rule, r.Text))
}

// Note appends a free-form line, e.g. why a session ended without a report.
func (w *Writer) Note(text string) {
	w.write("# " + text + "\n")
}

func (w *Writer) write(s string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return
	}
	if _, err := w.f.WriteString(s); err != nil && !w.failed {
		w.failed = true
		slog.Error("transcript write failed", "path", w.path, "error", err)
	}
}

// Close flushes and closes the file. Later writes are dropped.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}
