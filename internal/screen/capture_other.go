//go:build !linux && !darwin

package screen

import (
	"context"
	"errors"
)

var errUnsupported = errors.New("screen capture is not implemented on this platform")

type unsupportedBackend struct{}

func newBackend() backend { return unsupportedBackend{} }

// TODO: windows capture through GDI BitBlt once a cgo-free binding is chosen.
func (unsupportedBackend) grab(context.Context, Region, string) (bool, error) {
	return false, errUnsupported
}

func (unsupportedBackend) locate(context.Context, string) (Region, error) {
	return Region{}, errUnsupported
}
