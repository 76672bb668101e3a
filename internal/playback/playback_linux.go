//go:build linux

package playback

import (
	"context"
	"os/exec"

	apperrors "github.com/GriffinCanCode/cinescribe/internal/errors"
	"github.com/GriffinCanCode/cinescribe/internal/screen"
)

type xdotool struct{}

func newPlatform() Controller { return xdotool{} }

// Toggle focuses the target window by title, or sends to the active window
// for region targets, and presses space.
func (xdotool) Toggle(ctx context.Context, target screen.Target) error {
	args := []string{"key", "--clearmodifiers", "space"}
	if target.Window != "" {
		args = append([]string{"search", "--onlyvisible", "--name", target.Window, "windowactivate", "--sync"}, args...)
	}
	if out, err := exec.CommandContext(ctx, "xdotool", args...).CombinedOutput(); err != nil {
		return apperrors.Wrapf(err, apperrors.CodeControlFailed, "xdotool: %s", out)
	}
	return nil
}
