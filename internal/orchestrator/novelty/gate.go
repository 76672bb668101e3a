// Package novelty decides which captured frames are worth sending to the model.
// Frames are compared against the last accepted frame over the caption band only,
// so subtitle changes register and camera motion mostly does not.
package novelty

import (
	"image"
	"log/slog"
	"sync"

	"github.com/corona10/goimagehash"

	"github.com/GriffinCanCode/cinescribe/internal/imaging"
)

// Decision is the gate's verdict on one frame.
type Decision int

const (
	Accept Decision = iota
	Skip
)

func (d Decision) String() string {
	if d == Skip {
		return "skip"
	}
	return "accept"
}

// Result describes one evaluation.
type Result struct {
	Decision         Decision
	Score            float64 // 0..255, MaxScore for the first frame
	Forced           bool    // accepted only because MaxSkip was reached
	ConsecutiveSkips int     // skips counted before this verdict was reset
}

// Gate tracks the last accepted frame and the run of skips since.
type Gate struct {
	cfg Config

	mu       sync.Mutex
	last     image.Image // shrunk caption band of the last accepted frame
	lastHash *goimagehash.ImageHash
	skips    int
}

func New(cfg Config) *Gate {
	return &Gate{cfg: cfg.withDefaults()}
}

// Evaluate scores img against the last accepted frame and returns the verdict.
func (g *Gate) Evaluate(img image.Image) Result {
	band := imaging.CropBottom(img, g.cfg.Region)

	g.mu.Lock()
	defer g.mu.Unlock()

	score, thumb, hash := g.score(band)
	if !g.cfg.Enabled || score > g.cfg.Threshold {
		g.accept(thumb, hash)
		return Result{Decision: Accept, Score: score}
	}

	g.skips++
	if g.skips >= g.cfg.MaxSkip {
		skipped := g.skips
		g.accept(thumb, hash)
		return Result{Decision: Accept, Score: score, Forced: true, ConsecutiveSkips: skipped}
	}
	return Result{Decision: Skip, Score: score, ConsecutiveSkips: g.skips}
}

func (g *Gate) accept(thumb image.Image, hash *goimagehash.ImageHash) {
	g.last = thumb
	g.lastHash = hash
	g.skips = 0
}

func (g *Gate) score(band image.Image) (float64, image.Image, *goimagehash.ImageHash) {
	switch g.cfg.Metric {
	case MetricPHash:
		hash, err := goimagehash.PerceptionHash(band)
		if err != nil {
			slog.Debug("perception hash failed, treating frame as novel", "error", err)
			return MaxScore, nil, nil
		}
		if g.lastHash == nil {
			return MaxScore, nil, hash
		}
		dist, err := g.lastHash.Distance(hash)
		if err != nil {
			return MaxScore, nil, hash
		}
		return float64(dist) * MaxScore / 64, nil, hash
	default:
		thumb := imaging.Shrink(band, ThumbWidth, ThumbHeight)
		if g.last == nil {
			return MaxScore, thumb, nil
		}
		return meanAbsDiff(g.last, thumb), thumb, nil
	}
}

// meanAbsDiff averages the per-channel absolute RGB difference of two
// same-sized images, on a 0..255 scale.
func meanAbsDiff(a, b image.Image) float64 {
	ab, bb := a.Bounds(), b.Bounds()
	w, h := min(ab.Dx(), bb.Dx()), min(ab.Dy(), bb.Dy())
	if w == 0 || h == 0 {
		return MaxScore
	}
	var sum uint64
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r1, g1, b1, _ := a.At(ab.Min.X+x, ab.Min.Y+y).RGBA()
			r2, g2, b2, _ := b.At(bb.Min.X+x, bb.Min.Y+y).RGBA()
			sum += absDiff(r1>>8, r2>>8) + absDiff(g1>>8, g2>>8) + absDiff(b1>>8, b2>>8)
		}
	}
	return float64(sum) / float64(3*w*h)
}

func absDiff(a, b uint32) uint64 {
	if a > b {
		return uint64(a - b)
	}
	return uint64(b - a)
}
