//go:build darwin

package playback

import (
	"context"
	"fmt"
	"os/exec"

	apperrors "github.com/GriffinCanCode/cinescribe/internal/errors"
	"github.com/GriffinCanCode/cinescribe/internal/screen"
)

type osascript struct{}

func newPlatform() Controller { return osascript{} }

const activateScript = `tell application "System Events" to set frontmost of (first process whose name contains %q) to true`

func (osascript) Toggle(ctx context.Context, target screen.Target) error {
	if target.Window != "" {
		if out, err := exec.CommandContext(ctx, "osascript", "-e", fmt.Sprintf(activateScript, target.Window)).CombinedOutput(); err != nil {
			return apperrors.Wrapf(err, apperrors.CodeControlFailed, "activate %q: %s", target.Window, out)
		}
	}
	script := `tell application "System Events" to keystroke space`
	if out, err := exec.CommandContext(ctx, "osascript", "-e", script).CombinedOutput(); err != nil {
		return apperrors.Wrapf(err, apperrors.CodeControlFailed, "keystroke: %s", out)
	}
	return nil
}
