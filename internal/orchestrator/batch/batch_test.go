package batch

import (
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample(i int) Sample {
	return Sample{
		Index:      i,
		CapturedAt: time.Unix(int64(i), 0),
		Frame:      image.NewRGBA(image.Rect(0, 0, 4, 4)),
		Caption:    image.NewRGBA(image.Rect(0, 0, 4, 1)),
	}
}

func TestFullBatchDispatchedAndReset(t *testing.T) {
	a := NewAggregator(4)

	for i := 0; i < 3; i++ {
		_, full := a.Add(sample(i))
		require.False(t, full)
		assert.Equal(t, i+1, a.Len())
	}

	b, full := a.Add(sample(3))
	require.True(t, full)
	assert.Equal(t, 0, a.Len())
	assert.Equal(t, 0, b.Index)
	assert.Len(t, b.Samples, 4)
	assert.Equal(t, 1, a.Dispatched())
	for i, s := range b.Samples {
		assert.Equal(t, i, s.Index)
	}
}

func TestBatchIsFrozen(t *testing.T) {
	a := NewAggregator(2)
	a.Add(sample(0))
	b, _ := a.Add(sample(1))

	a.Add(sample(2))
	next, _ := a.Add(sample(3))

	assert.Equal(t, 0, b.Samples[0].Index, "later adds must not touch a dispatched batch")
	assert.Equal(t, 1, next.Index)
	assert.Equal(t, 2, next.Samples[0].Index)
}

func TestSizeOneDispatchesEverySample(t *testing.T) {
	a := NewAggregator(1)
	for i := 0; i < 5; i++ {
		b, full := a.Add(sample(i))
		require.True(t, full)
		assert.Equal(t, i, b.Index)
		assert.Len(t, b.Frames(), 1)
	}
	assert.Equal(t, 0, a.Len())
}

func TestBatchAccessors(t *testing.T) {
	s := sample(7)
	s.Caption = nil
	b := Batch{Samples: []Sample{s, sample(8)}}

	assert.Len(t, b.Frames(), 2)
	assert.Len(t, b.Captions(), 1)
	assert.Equal(t, time.Unix(7, 0), b.Start())
	assert.True(t, Batch{}.Start().IsZero())
	assert.Equal(t, DefaultSize, NewAggregator(0).Size())
}
