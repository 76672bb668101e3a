// Package prompt builds model instructions from fixed templates and a
// by-value snapshot of the narrative. Builders never read live session state.
package prompt

import (
	"fmt"
	"strconv"
	"strings"
)

// Set holds the templates. Placeholders in braces are filled by the builders.
type Set struct {
	Caption     string // system prompt for caption reading
	SingleFrame string // {history} {captions}
	Batch       string // {history} {captions} {count} {seconds}
	Phase       string // {past} {recent}
	Final       string // system prompt; the phases go in the user message
}

// History is a snapshot of the narrative used as context.
type History struct {
	Summaries []string
	Entries   []string
}

const (
	noHistory  = "(no earlier notes)"
	noCaptions = "(no dialogue)"
	noPhases   = "(no earlier phases)"
)

func Defaults() Set {
	return Set{
		Caption:     defaultCaption,
		SingleFrame: defaultSingleFrame,
		Batch:       defaultBatch,
		Phase:       defaultPhase,
		Final:       defaultFinal,
	}
}

// Override returns s with every non-empty field of o replacing its counterpart.
func (s Set) Override(o Set) Set {
	pick := func(base, over string) string {
		if strings.TrimSpace(over) != "" {
			return over
		}
		return base
	}
	return Set{
		Caption:     pick(s.Caption, o.Caption),
		SingleFrame: pick(s.SingleFrame, o.SingleFrame),
		Batch:       pick(s.Batch, o.Batch),
		Phase:       pick(s.Phase, o.Phase),
		Final:       pick(s.Final, o.Final),
	}
}

// Entry builds the user prompt for one unit of frames.
func (s Set) Entry(frames int, span float64, h History, captions string) string {
	if captions == "" {
		captions = noCaptions
	}
	var context []string
	context = append(context, h.Summaries...)
	context = append(context, h.Entries...)
	history := noHistory
	if len(context) > 0 {
		history = strings.Join(context, "\n")
	}

	tmpl := s.Batch
	if frames <= 1 {
		tmpl = s.SingleFrame
	}
	return strings.NewReplacer(
		"{history}", history,
		"{captions}", captions,
		"{count}", strconv.Itoa(frames),
		"{seconds}", strconv.Itoa(int(span+0.5)),
	).Replace(tmpl)
}

// PhaseInput builds the recap prompt from all earlier recaps and the latest run of entries.
func (s Set) PhaseInput(past, recent []string) string {
	pastText := noPhases
	if len(past) > 0 {
		pastText = strings.Join(past, "\n")
	}
	return strings.NewReplacer(
		"{past}", pastText,
		"{recent}", strings.Join(recent, "\n"),
	).Replace(s.Phase)
}

// FinalInput lists every recap, numbered, as the final report's user message.
func FinalInput(summaries []string) string {
	var b strings.Builder
	b.WriteString("Story arc:\n")
	for i, text := range summaries {
		fmt.Fprintf(&b, "Phase %d: %s\n", i+1, text)
	}
	return strings.TrimRight(b.String(), "\n")
}
