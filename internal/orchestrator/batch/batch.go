// Package batch groups accepted frames into fixed-size units of analysis.
package batch

import (
	"image"
	"sync"
	"time"
)

const DefaultSize = 4

// Sample is one accepted frame and its caption band. Never mutated after capture.
type Sample struct {
	Index      int
	CapturedAt time.Time
	Frame      image.Image
	Caption    image.Image
}

// Batch is a frozen group of samples. Index counts dispatched batches from zero.
type Batch struct {
	Index   int
	Samples []Sample
}

// Frames returns the full frames in capture order.
func (b Batch) Frames() []image.Image {
	out := make([]image.Image, len(b.Samples))
	for i, s := range b.Samples {
		out[i] = s.Frame
	}
	return out
}

// Captions returns the caption bands in capture order.
func (b Batch) Captions() []image.Image {
	out := make([]image.Image, 0, len(b.Samples))
	for _, s := range b.Samples {
		if s.Caption != nil {
			out = append(out, s.Caption)
		}
	}
	return out
}

// Start returns when the first sample was captured.
func (b Batch) Start() time.Time {
	if len(b.Samples) == 0 {
		return time.Time{}
	}
	return b.Samples[0].CapturedAt
}

// Aggregator accumulates samples until a batch is full.
type Aggregator struct {
	size int

	mu         sync.Mutex
	live       []Sample
	dispatched int
}

func NewAggregator(size int) *Aggregator {
	if size <= 0 {
		size = DefaultSize
	}
	return &Aggregator{size: size, live: make([]Sample, 0, size)}
}

// Add appends s. When the batch fills, it returns a copy and starts a new empty one.
func (a *Aggregator) Add(s Sample) (Batch, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.live = append(a.live, s)
	if len(a.live) < a.size {
		return Batch{}, false
	}

	frozen := make([]Sample, len(a.live))
	copy(frozen, a.live)
	a.live = a.live[:0]

	b := Batch{Index: a.dispatched, Samples: frozen}
	a.dispatched++
	return b, true
}

// Len returns the live batch length.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.live)
}

// Dispatched returns how many batches have been handed off.
func (a *Aggregator) Dispatched() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dispatched
}

// Size returns the configured batch size.
func (a *Aggregator) Size() int { return a.size }
