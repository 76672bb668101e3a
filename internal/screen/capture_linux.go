//go:build linux

package screen

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

type linuxBackend struct{}

func newBackend() backend { return linuxBackend{} }

func (linuxBackend) grab(ctx context.Context, _ Region, path string) (bool, error) {
	var cmd *exec.Cmd
	if _, err := exec.LookPath("gnome-screenshot"); err == nil {
		cmd = exec.CommandContext(ctx, "gnome-screenshot", "-f", path)
	} else if _, err := exec.LookPath("scrot"); err == nil {
		cmd = exec.CommandContext(ctx, "scrot", "-o", path)
	} else {
		return false, fmt.Errorf("no screenshot tool found (install gnome-screenshot or scrot)")
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return false, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return false, nil
}

func (linuxBackend) locate(ctx context.Context, window string) (Region, error) {
	out, err := exec.CommandContext(ctx, "xdotool", "search", "--onlyvisible", "--name", window,
		"getwindowgeometry", "--shell").Output()
	if err != nil {
		return Region{}, fmt.Errorf("xdotool: %w", err)
	}
	return parseGeometry(out)
}

// parseGeometry reads the first window block of `xdotool getwindowgeometry --shell`.
func parseGeometry(out []byte) (Region, error) {
	var r Region
	seen := 0
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() && seen < 4 {
		key, val, ok := strings.Cut(sc.Text(), "=")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			continue
		}
		switch key {
		case "X":
			r.X = n
		case "Y":
			r.Y = n
		case "WIDTH":
			r.W = n
		case "HEIGHT":
			r.H = n
		default:
			continue
		}
		seen++
	}
	if r.Empty() {
		return Region{}, fmt.Errorf("window not found")
	}
	return r, nil
}
