package sink

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/sinkpool/internal/device"
	"github.com/dgnsrekt/sinkpool/internal/frame"
	"github.com/dgnsrekt/sinkpool/internal/platform"
	"golang.org/x/time/rate"
)

// Backend selects what kind of sinks a factory opens.
type Backend string

const (
	// BackendAuto uses real output when the host looks capable of it.
	BackendAuto Backend = "auto"
	// BackendProduction always renders through oto.
	BackendProduction Backend = "production"
	// BackendMock simulates devices.
	BackendMock Backend = "mock"
)

// ParseBackend validates a backend name.
func ParseBackend(name string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(name))); b {
	case BackendAuto, BackendProduction, BackendMock:
		return b, nil
	case "":
		return BackendAuto, nil
	default:
		return "", fmt.Errorf("unknown audio backend %q: must be one of auto, production, mock", name)
	}
}

// Options configures NewFactory.
type Options struct {
	Backend Backend
	Params  device.Params

	// Limiter throttles sink creation. Nil disables throttling.
	Limiter *rate.Limiter
	// CreateTimeout bounds the wait for the limiter. Sinks that could not
	// be created in time report StatusErrorTimedOut.
	CreateTimeout time.Duration

	Logger *log.Logger
}

// NewFactory builds a factory for the requested backend and reports which
// backend it ended up using. Auto falls back to mock sinks when real output
// is unavailable.
func NewFactory(opts Options) (Factory, Backend, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	if err := opts.Params.Validate(); err != nil {
		return nil, "", err
	}

	var (
		factory Factory
		backend = opts.Backend
	)

	switch backend {
	case BackendMock:
		logger.Debug("Creating mock sink factory")
		factory = NewMockFactory(opts.Params).Create

	case BackendProduction:
		f, err := newOtoFactory(opts.Params, platform.Detect(), logger)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create production sink factory: %w", err)
		}
		factory = f

	case BackendAuto, "":
		plat := platform.Detect()
		if plat.ShouldUseMockAudio() {
			logger.Info("Using mock audio sinks", "reason", plat.MockReason())
			factory, backend = NewMockFactory(opts.Params).Create, BackendMock
			break
		}

		params := opts.Params
		params.BufferDuration = plat.BufferSize()
		f, err := newOtoFactory(params, plat, logger)
		if err != nil {
			logger.Warn("Failed to open audio output, falling back to mock",
				"error", err,
				"platform", plat.OS)
			factory, backend = NewMockFactory(opts.Params).Create, BackendMock
			break
		}
		factory, backend = f, BackendProduction

	default:
		return nil, "", fmt.Errorf("unknown audio backend %q", opts.Backend)
	}

	if opts.Limiter != nil {
		factory = Throttle(factory, opts.Limiter, opts.CreateTimeout, opts.Params)
	}
	return factory, backend, nil
}

// Throttle rate limits f. Callers that cannot get a token within timeout
// receive an unavailable sink reporting StatusErrorTimedOut.
func Throttle(f Factory, limiter *rate.Limiter, timeout time.Duration, params device.Params) Factory {
	return func(owner frame.Token, sel device.SelectionParams) Sink {
		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		if err := limiter.Wait(ctx); err != nil {
			log.Debug("Sink creation throttled", "device", sel.DeviceID, "owner", owner, "error", err)
			return NewUnavailableSink(sel.DeviceID, device.StatusErrorTimedOut, params)
		}
		return f(owner, sel)
	}
}
