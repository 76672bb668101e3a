package screen

import (
	"fmt"
	"image"

	apperrors "github.com/GriffinCanCode/cinescribe/internal/errors"
)

// Region is a rectangle in screen coordinates.
type Region struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
	W int `json:"w" yaml:"w"`
	H int `json:"h" yaml:"h"`
}

func (r Region) Empty() bool { return r.W <= 0 || r.H <= 0 }

func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.W, r.Y+r.H)
}

func (r Region) String() string {
	return fmt.Sprintf("%dx%d+%d+%d", r.W, r.H, r.X, r.Y)
}

// ParseRegion reads the WxH+X+Y form that String writes.
func ParseRegion(s string) (Region, error) {
	var r Region
	var rest string
	n, _ := fmt.Sscanf(s+" ", "%dx%d+%d+%d%s", &r.W, &r.H, &r.X, &r.Y, &rest)
	if n < 4 || rest != "" || r.Empty() {
		return Region{}, apperrors.Newf(apperrors.CodeConfigInvalid, "region %q: want WxH+X+Y", s)
	}
	return r, nil
}

// Target names what a session watches: a screen region, a window found by
// title, or a directory of pre-extracted frames.
type Target struct {
	Region Region `json:"region" yaml:"region"`
	Window string `json:"window,omitempty" yaml:"window"`
	Frames string `json:"frames,omitempty" yaml:"frames"`
}

// Valid reports whether the target selects anything to capture.
func (t Target) Valid() bool {
	return !t.Region.Empty() || t.Window != "" || t.Frames != ""
}

func (t Target) String() string {
	switch {
	case t.Frames != "":
		return "frames:" + t.Frames
	case t.Window != "":
		return "window:" + t.Window
	default:
		return "region:" + t.Region.String()
	}
}
