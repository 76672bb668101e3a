//go:build windows

package playback

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	apperrors "github.com/GriffinCanCode/cinescribe/internal/errors"
	"github.com/GriffinCanCode/cinescribe/internal/screen"
)

type powershell struct{}

func newPlatform() Controller { return powershell{} }

func (powershell) Toggle(ctx context.Context, target screen.Target) error {
	var script strings.Builder
	script.WriteString("$w = New-Object -ComObject WScript.Shell; ")
	if target.Window != "" {
		fmt.Fprintf(&script, "if (-not $w.AppActivate('%s')) { exit 1 }; Start-Sleep -Milliseconds 100; ",
			strings.ReplaceAll(target.Window, "'", "''"))
	}
	script.WriteString("$w.SendKeys(' ')")
	if out, err := exec.CommandContext(ctx, "powershell", "-NoProfile", "-Command", script.String()).CombinedOutput(); err != nil {
		return apperrors.Wrapf(err, apperrors.CodeControlFailed, "powershell: %s", out)
	}
	return nil
}
