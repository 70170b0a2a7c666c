//go:build nocgo
// +build nocgo

package sink

import (
	"errors"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/sinkpool/internal/device"
	"github.com/dgnsrekt/sinkpool/internal/platform"
)

// newOtoFactory is unavailable without cgo.
func newOtoFactory(device.Params, *platform.Info, *log.Logger) (Factory, error) {
	return nil, errors.New("audio output not available in nocgo build")
}
