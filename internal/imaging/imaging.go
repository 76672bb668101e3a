// Package imaging crops, stitches and encodes frames for the novelty gate and the inference payloads.
package imaging

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/draw"
	"image/jpeg"
	"math"

	"github.com/nfnt/resize"
)

// CropBottom returns the bottom fraction of img, where captions sit.
func CropBottom(img image.Image, fraction float64) image.Image {
	b := img.Bounds()
	if fraction <= 0 || fraction >= 1 {
		return img
	}
	h := int(float64(b.Dy()) * fraction)
	if h < 1 {
		h = 1
	}
	return toRGBA(img, image.Rect(b.Min.X, b.Max.Y-h, b.Max.X, b.Max.Y))
}

// Shrink resizes img to exactly w x h for cheap pixel comparisons.
func Shrink(img image.Image, w, h int) image.Image {
	return resize.Resize(uint(w), uint(h), img, resize.Bilinear)
}

// Grid tiles frames into a near-square grid the size of the first frame,
// left to right, top to bottom. Four frames make a 2x2 grid.
func Grid(frames []image.Image) image.Image {
	switch len(frames) {
	case 0:
		return nil
	case 1:
		return frames[0]
	}
	cols := int(math.Ceil(math.Sqrt(float64(len(frames)))))
	rows := (len(frames) + cols - 1) / cols
	first := frames[0].Bounds()
	cw, ch := max(first.Dx()/cols, 1), max(first.Dy()/rows, 1)

	canvas := image.NewRGBA(image.Rect(0, 0, cw*cols, ch*rows))
	for i, f := range frames {
		cell := resize.Resize(uint(cw), uint(ch), f, resize.Lanczos3)
		at := image.Pt((i%cols)*cw, (i/cols)*ch)
		draw.Draw(canvas, image.Rectangle{Min: at, Max: at.Add(image.Pt(cw, ch))}, cell, cell.Bounds().Min, draw.Src)
	}
	return canvas
}

// Vertical stacks strips top to bottom at the first strip's size.
func Vertical(strips []image.Image) image.Image {
	if len(strips) == 0 {
		return nil
	}
	first := strips[0].Bounds()
	w, h := first.Dx(), first.Dy()

	canvas := image.NewRGBA(image.Rect(0, 0, w, h*len(strips)))
	for i, s := range strips {
		if sb := s.Bounds(); sb.Dx() != w || sb.Dy() != h {
			s = resize.Resize(uint(w), uint(h), s, resize.Lanczos3)
		}
		at := image.Pt(0, i*h)
		draw.Draw(canvas, image.Rectangle{Min: at, Max: at.Add(image.Pt(w, h))}, s, s.Bounds().Min, draw.Src)
	}
	return canvas
}

// FitWithin scales img down so neither side exceeds maxDim. Smaller images are returned unchanged.
func FitWithin(img image.Image, maxDim int) image.Image {
	b := img.Bounds()
	if maxDim <= 0 || (b.Dx() <= maxDim && b.Dy() <= maxDim) {
		return img
	}
	return resize.Thumbnail(uint(maxDim), uint(maxDim), img, resize.Lanczos3)
}

// ToWidth scales img to width, keeping the aspect ratio.
func ToWidth(img image.Image, width int) image.Image {
	if width <= 0 || img.Bounds().Dx() == width {
		return img
	}
	return resize.Resize(uint(width), 0, img, resize.Lanczos3)
}

// DataURL encodes img as a base64 JPEG data URL.
func DataURL(img image.Image, quality int) (string, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return "", err
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func toRGBA(img image.Image, r image.Rectangle) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(out, out.Bounds(), img, r.Min, draw.Src)
	return out
}
