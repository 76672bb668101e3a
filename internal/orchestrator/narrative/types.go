package narrative

import (
	"fmt"
	"time"
)

// Observation is what analysis produced for one batch, before it has a place in the log.
type Observation struct {
	Batch       int // dispatch index
	Frames      int
	CapturedAt  time.Time
	Transcript  string
	Description string
}

// Entry is one frame-level note. Seq is dense and starts at 1.
type Entry struct {
	Seq         int
	Batch       int
	Elapsed     time.Duration // from session start to the first frame of the batch
	CreatedAt   time.Time
	Transcript  string
	Description string
}

// Text renders the entry for prompts.
func (e Entry) Text() string {
	s := fmt.Sprintf("[+%s]", Clock(e.Elapsed))
	if e.Transcript != "" {
		s += " Captions: " + e.Transcript
	}
	return s + "\nScene: " + e.Description
}

// Summary compresses the entries From..To inclusive. Seq is dense and starts at 1.
type Summary struct {
	Seq       int
	From, To  int
	Forced    bool // written at finalization for a partial run
	CreatedAt time.Time
	Text      string
}

// Report is the single terminal narrative for a session.
type Report struct {
	Text      string
	Summaries int
	Entries   int
	CreatedAt time.Time
}

// Run is a contiguous range of entries awaiting a phase summary.
type Run struct {
	From, To int
	Forced   bool
}

func (r Run) Len() int { return r.To - r.From + 1 }

// Sink receives every narrative artifact as it is created.
type Sink interface {
	Entry(Entry)
	Summary(Summary)
	Report(Report)
}

// Sinks fans out to several sinks in order.
type Sinks []Sink

func (s Sinks) Entry(e Entry) {
	for _, sk := range s {
		sk.Entry(e)
	}
}

func (s Sinks) Summary(sum Summary) {
	for _, sk := range s {
		sk.Summary(sum)
	}
}

func (s Sinks) Report(r Report) {
	for _, sk := range s {
		sk.Report(r)
	}
}

// Clock formats d as mm:ss, or h:mm:ss past an hour.
func Clock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	s := int(d.Round(time.Second) / time.Second)
	if s >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", s/3600, s/60%60, s%60)
	}
	return fmt.Sprintf("%02d:%02d", s/60, s%60)
}
