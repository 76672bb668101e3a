package transcript

import (
	"sync"
	"time"

	"github.com/GriffinCanCode/cinescribe/internal/orchestrator/narrative"
)

// EventType names a live event.
type EventType string

const (
	EventEntry   EventType = "entry"
	EventSummary EventType = "summary"
	EventFinal   EventType = "final"
	EventSkip    EventType = "skip"
	EventStatus  EventType = "status"
	EventSession EventType = "session"
)

// Event is one live update for display or forwarding.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Time      time.Time `json:"time"`
	Data      any       `json:"data,omitempty"`
}

// Bus fans events out to subscribers. Emit never blocks; a subscriber
// that falls behind misses events.
type Bus struct {
	mu      sync.RWMutex
	subs    map[int]chan Event
	next    int
	session string
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe returns a channel of events and a func that ends the subscription.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// SetSession stamps later events with id.
func (b *Bus) SetSession(id string) {
	b.mu.Lock()
	b.session = id
	b.mu.Unlock()
}

// Emit sends ev to every subscriber (non-blocking).
func (b *Bus) Emit(typ EventType, data any) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ev := Event{Type: typ, SessionID: b.session, Time: time.Now(), Data: data}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribers returns the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// EntryEvent is the payload of an entry event.
type EntryEvent struct {
	Seq         int    `json:"seq"`
	Elapsed     string `json:"elapsed"`
	Transcript  string `json:"transcript,omitempty"`
	Description string `json:"description"`
}

// SummaryEvent is the payload of a summary event.
type SummaryEvent struct {
	Seq    int    `json:"seq"`
	From   int    `json:"from"`
	To     int    `json:"to"`
	Forced bool   `json:"forced,omitempty"`
	Text   string `json:"text"`
}

// FinalEvent is the payload of a final event.
type FinalEvent struct {
	Summaries int    `json:"summaries"`
	Entries   int    `json:"entries"`
	Text      string `json:"text"`
}

func (b *Bus) Entry(e narrative.Entry) {
	b.Emit(EventEntry, EntryEvent{
		Seq:         e.Seq,
		Elapsed:     narrative.Clock(e.Elapsed),
		Transcript:  e.Transcript,
		Description: e.Description,
	})
}

func (b *Bus) Summary(s narrative.Summary) {
	b.Emit(EventSummary, SummaryEvent{Seq: s.Seq, From: s.From, To: s.To, Forced: s.Forced, Text: s.Text})
}

func (b *Bus) Report(r narrative.Report) {
	b.Emit(EventFinal, FinalEvent{Summaries: r.Summaries, Entries: r.Entries, Text: r.Text})
}
