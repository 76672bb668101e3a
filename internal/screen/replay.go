package screen

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"

	apperrors "github.com/GriffinCanCode/cinescribe/internal/errors"
)

// Replay serves frames previously extracted from a video, e.g. with
// `ffmpeg -i movie.mp4 -vf fps=1/2 frames/frame_%04d.jpg`, one per Capture.
type Replay struct {
	files []string
	next  int
}

// NewReplay lists the .jpg and .png files in dir in name order.
func NewReplay(dir string) (*Replay, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.CodeConfigMissing, "read frames dir %s", dir)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, apperrors.Newf(apperrors.CodeConfigMissing, "no frames in %s", dir)
	}
	sort.Strings(files)
	return &Replay{files: files}, nil
}

// Capture returns the next frame. Once the frames run out every call fails,
// which the session treats like a window that disappeared.
func (r *Replay) Capture(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.next >= len(r.files) {
		return nil, apperrors.New(apperrors.CodeCaptureFailed, "frames exhausted")
	}
	path := r.files[r.next]
	r.next++
	return decodeFile(path)
}

// remaining returns how many frames are left.
func (r *Replay) remaining() int { return len(r.files) - r.next }

func (r *Replay) Close() {}
