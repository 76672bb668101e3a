// Package screen grabs frames from the region or window being watched.
package screen

import (
	"context"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	apperrors "github.com/GriffinCanCode/cinescribe/internal/errors"
)

// Capturer produces one frame per call. Implementations are not safe for
// concurrent use; the session loop is the only caller.
type Capturer interface {
	Capture(ctx context.Context) (image.Image, error)
	Close()
}

// backend implements the platform-specific screenshot command.
type backend interface {
	// grab writes a screenshot to path. It reports whether the file
	// already covers only region.
	grab(ctx context.Context, region Region, path string) (cropped bool, err error)
	// locate resolves a window title to its on-screen rectangle.
	locate(ctx context.Context, window string) (Region, error)
}

// baseCapturer decodes and crops whatever the backend writes.
type baseCapturer struct {
	backend
	target  Target
	tempDir string
}

// New creates a capturer for a live screen target.
func New(target Target) (Capturer, error) {
	if target.Frames != "" {
		return NewReplay(target.Frames)
	}
	if !target.Valid() {
		return nil, apperrors.New(apperrors.CodeConfigMissing, "no capture region or window selected")
	}
	tmpDir, err := os.MkdirTemp("", "cinescribe-screen-*")
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeCaptureFailed, "create temp dir")
	}
	return &baseCapturer{backend: newBackend(), target: target, tempDir: tmpDir}, nil
}

func (c *baseCapturer) Capture(ctx context.Context) (image.Image, error) {
	region := c.target.Region
	if c.target.Window != "" {
		r, err := c.locate(ctx, c.target.Window)
		if err != nil {
			return nil, apperrors.Wrapf(err, apperrors.CodeCaptureFailed, "locate window %q", c.target.Window).
				WithMetadata("window", c.target.Window)
		}
		region = r
	}

	path := filepath.Join(c.tempDir, "frame.png")
	defer os.Remove(path)

	cropped, err := c.grab(ctx, region, path)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeCaptureFailed, "screenshot")
	}
	img, err := decodeFile(path)
	if err != nil {
		return nil, err
	}
	if cropped {
		return img, nil
	}
	return crop(img, region.Rect())
}

func (c *baseCapturer) Close() {
	if c.tempDir != "" {
		os.RemoveAll(c.tempDir)
	}
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeCaptureFailed, "open screenshot")
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.CodeCaptureFailed, "decode %s", filepath.Base(path))
	}
	return img, nil
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// crop clips img to rect. An empty rect keeps the whole image.
func crop(img image.Image, rect image.Rectangle) (image.Image, error) {
	if rect.Empty() {
		return img, nil
	}
	clipped := rect.Add(img.Bounds().Min).Intersect(img.Bounds())
	if clipped.Empty() {
		return nil, apperrors.Newf(apperrors.CodeCaptureFailed, "region %v outside screen %v", rect, img.Bounds())
	}
	si, ok := img.(subImager)
	if !ok {
		return nil, apperrors.New(apperrors.CodeCaptureFailed, "screenshot format cannot be cropped")
	}
	return si.SubImage(clipped), nil
}
