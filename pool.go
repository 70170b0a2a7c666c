package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dgnsrekt/sinkpool/internal/cache"
	"github.com/dgnsrekt/sinkpool/internal/config"
	"github.com/dgnsrekt/sinkpool/internal/lifecycle"
	"github.com/dgnsrekt/sinkpool/internal/logging"
	"github.com/dgnsrekt/sinkpool/internal/metrics"
	"github.com/dgnsrekt/sinkpool/internal/queue"
	"github.com/dgnsrekt/sinkpool/internal/sink"
)

// pool is everything a command needs to hand out sinks.
type pool struct {
	cache    *cache.SinkCache
	runner   *queue.TaskRunner
	backend  sink.Backend
	metrics  *metrics.Metrics
	registry *prometheus.Registry
	life     *lifecycle.Manager
	server   *http.Server
}

// newPool wires the sink factory, the cleanup runner and the cache from cfg.
// The caller must call close.
func newPool(cfg config.Config) (*pool, error) {
	factory, backend, err := sink.NewFactory(sink.Options{
		Backend:       sink.Backend(cfg.Audio.Backend),
		Params:        cfg.Audio.Params(),
		Limiter:       cfg.Audio.Limiter(),
		CreateTimeout: cfg.Audio.CreateTimeout,
		Logger:        logging.New("sink"),
	})
	if err != nil {
		return nil, fmt.Errorf("unable to create sink factory: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	m := metrics.New(reg)

	runner := queue.NewTaskRunner(logging.New("runner"))
	c := cache.New(cache.Options{
		Factory:       factory,
		Runner:        runner,
		DeleteTimeout: cfg.Cache.DeleteTimeout,
		Logger:        logging.New("cache"),
		Metrics:       m,
	})

	p := &pool{
		cache:    c,
		runner:   runner,
		backend:  backend,
		metrics:  m,
		registry: reg,
		life:     lifecycle.NewManager(logging.New("lifecycle")),
	}

	// Registered first so it stops last, after the cache has drained.
	p.life.Register(runner)
	p.life.Register(c)

	if cfg.Metrics.Addr != "" {
		if err := p.serveMetrics(cfg.Metrics.Addr); err != nil {
			_ = p.close()
			return nil, err
		}
	}

	log.Debug("Sink pool ready",
		"backend", backend,
		"delete_timeout", cfg.Cache.DeleteTimeout,
		"metrics", cfg.Metrics.Addr)
	return p, nil
}

func (p *pool) serveMetrics(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("unable to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{}))
	p.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := p.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Metrics server failed", "error", err)
		}
	}()
	p.life.Register(lifecycle.NewFunc("metrics-server", func(ctx context.Context) error {
		return p.server.Shutdown(ctx)
	}))

	log.Info("Serving metrics", "addr", ln.Addr().String())
	return nil
}

// close shuts every component down in reverse order.
func (p *pool) close() error {
	return p.life.Shutdown()
}
