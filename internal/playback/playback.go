// Package playback sends a play/pause keystroke to the player being watched,
// so the video holds still while a summary is written.
package playback

import (
	"context"
	"log/slog"

	"github.com/GriffinCanCode/cinescribe/internal/screen"
)

// Controller toggles playback of the target. Toggling is best effort.
type Controller interface {
	Toggle(ctx context.Context, target screen.Target) error
}

// Noop never touches the player. Used for frame replays and when playback control is disabled.
type Noop struct{}

func (Noop) Toggle(context.Context, screen.Target) error { return nil }

// New returns the platform controller, or Noop when disabled.
func New(enabled bool) Controller {
	if !enabled {
		return Noop{}
	}
	return newPlatform()
}

// Logged wraps a controller so failures are logged and swallowed.
type Logged struct {
	Controller
}

func (l Logged) Toggle(ctx context.Context, target screen.Target) error {
	if target.Frames != "" {
		return nil
	}
	if err := l.Controller.Toggle(ctx, target); err != nil {
		slog.Warn("playback toggle failed", "target", target.String(), "error", err)
	}
	return nil
}
