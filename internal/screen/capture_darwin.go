//go:build darwin

package screen

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

type darwinBackend struct{}

func newBackend() backend { return darwinBackend{} }

func (darwinBackend) grab(ctx context.Context, region Region, path string) (bool, error) {
	args := []string{"-x", "-t", "png"}
	if !region.Empty() {
		args = append(args, "-R", fmt.Sprintf("%d,%d,%d,%d", region.X, region.Y, region.W, region.H))
	}
	cmd := exec.CommandContext(ctx, "screencapture", append(args, path)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return false, fmt.Errorf("screencapture: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return true, nil
}

const boundsScript = `tell application "System Events"
	set p to first process whose name contains %q
	set {x, y} to position of front window of p
	set {w, h} to size of front window of p
	return (x as text) & "," & (y as text) & "," & (w as text) & "," & (h as text)
end tell`

func (darwinBackend) locate(ctx context.Context, window string) (Region, error) {
	out, err := exec.CommandContext(ctx, "osascript", "-e", fmt.Sprintf(boundsScript, window)).Output()
	if err != nil {
		return Region{}, fmt.Errorf("osascript: %w", err)
	}
	parts := strings.Split(strings.TrimSpace(string(out)), ",")
	if len(parts) != 4 {
		return Region{}, fmt.Errorf("unexpected window bounds %q", out)
	}
	var v [4]int
	for i, p := range parts {
		if v[i], err = strconv.Atoi(strings.TrimSpace(p)); err != nil {
			return Region{}, fmt.Errorf("window bounds: %w", err)
		}
	}
	return Region{X: v[0], Y: v[1], W: v[2], H: v[3]}, nil
}
