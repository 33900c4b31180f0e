package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	apihttp "github.com/GriffinCanCode/AgentOS/shell/internal/api/http"
	"github.com/GriffinCanCode/AgentOS/shell/internal/api/middleware"
	"github.com/GriffinCanCode/AgentOS/shell/internal/api/ws"
	"github.com/GriffinCanCode/AgentOS/shell/internal/domain/bus"
	"github.com/GriffinCanCode/AgentOS/shell/internal/domain/gateway"
	"github.com/GriffinCanCode/AgentOS/shell/internal/domain/supervisor"
	"github.com/GriffinCanCode/AgentOS/shell/internal/domain/windowstate"
	"github.com/GriffinCanCode/AgentOS/shell/internal/infrastructure/clock"
	"github.com/GriffinCanCode/AgentOS/shell/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/shell/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/shell/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/shell/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/AgentOS/shell/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/AgentOS/shell/internal/runtime/factory"
	"github.com/GriffinCanCode/AgentOS/shell/internal/shared/types"
)

// Server wraps the HTTP server and the supervisor stack
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	gateway    *gateway.Gateway
	bus        *bus.Bus
	store      *windowstate.Store
	factory    *factory.Factory
	supervisor *supervisor.Supervisor
	logger     *logging.Logger
	config     *config.Config
	metrics    *monitoring.Metrics
	tracer     *tracing.Tracer
}

// Option customizes NewServer
type Option func(*options)

type options struct {
	logger *logging.Logger
	clock  clock.Clock
}

// WithLogger replaces the logger built from config
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock replaces the real clock
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// NewServer builds the gateway, bus, window state store and supervisor,
// applies the channel manifest and mounts the control API
func NewServer(cfg *config.Config, opts ...Option) (*Server, error) {
	o := options{clock: clock.Real()}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		var err error
		logger, err = logging.New(logging.Config{Level: cfg.Logging.Level, Development: cfg.Logging.Development})
		if err != nil {
			return nil, fmt.Errorf("failed to build logger: %w", err)
		}
	}

	logger.Info("Initializing shell host",
		zap.String("addr", cfg.Addr()),
		zap.String("window_state", cfg.WindowState.Path),
		zap.String("channel_manifest", cfg.Gateway.ManifestPath),
	)

	metrics := monitoring.NewMetrics()

	gw := gateway.New(logger.Component("gateway"), gateway.WithStrict(cfg.Gateway.Strict))

	store, err := windowstate.Open(cfg.WindowState.Path,
		windowstate.WithDebounce(cfg.WindowState.Debounce),
		windowstate.WithClock(o.clock),
		windowstate.WithLogger(logger.Component("windowstate")),
		windowstate.WithMetrics(metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open window state: %w", err)
	}

	if err := gw.Register(windowstate.Channel(), gateway.WithHandler(store.Handler())); err != nil {
		return nil, err
	}
	if cfg.Gateway.ManifestPath != "" {
		manifest, err := gateway.LoadManifest(cfg.Gateway.ManifestPath)
		if err != nil {
			return nil, err
		}
		if err := gw.Apply(manifest, nil); err != nil {
			return nil, fmt.Errorf("failed to apply channel manifest: %w", err)
		}
		logger.Info("Channel manifest applied", zap.Int("channels", len(manifest.Channels)))
	}

	b := bus.New(gw, logger.Component("bus"),
		bus.WithClock(o.clock),
		bus.WithRequestTimeout(cfg.Bus.RequestTimeout),
		bus.WithMetrics(metrics),
	)

	f := factory.New(factory.Options{BaseDir: cfg.Workers.BaseDir, Clock: o.clock})

	sup := supervisor.New(supervisor.Options{
		Gateway: gw,
		Bus:     b,
		Store:   store,
		Factory: f.Build,
		Policy: resilience.Policy{
			Initial:     cfg.Restart.InitialDelay,
			Max:         cfg.Restart.MaxDelay,
			ResetAfter:  cfg.Restart.ResetAfter,
			MaxAttempts: cfg.Restart.MaxAttempts,
		},
		LoadTimeout:      cfg.Workers.LoadTimeout,
		ForceKillTimeout: cfg.Workers.ForceKillTimeout,
		SendRate:         rate.Limit(cfg.Bus.WorkerSendRate),
		SendBurst:        cfg.Bus.WorkerSendBurst,
		Clock:            o.clock,
		Logger:           logger.Component("supervisor"),
		Metrics:          metrics,
	})
	sup.OnWorkerLifecycle(func(ev supervisor.LifecycleEvent) {
		if ev.Type == supervisor.EventUnrecoverable {
			logger.Error("Essential worker unrecoverable, host degraded",
				zap.String("logical_id", string(ev.LogicalID)),
				zap.Error(ev.Err),
			)
		}
	})

	tracer := tracing.New("shell", logger.Component("trace"))

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	apihttp.NewHandlers(apihttp.Deps{
		Supervisor: sup,
		Bus:        b,
		Gateway:    gw,
		Store:      store,
		Preparer:   f,
		Metrics:    metrics,
		Tracer:     tracer,
		Logger:     logger.Component("api"),
	}).Register(router)
	router.GET("/bridge/:id", ws.NewHandler(f.Hub(), metrics, logger.Component("bridge"), nil).HandleBridge)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{})))

	logger.Info("Server initialized successfully")

	return &Server{
		router:     router,
		httpServer: &http.Server{Addr: cfg.Addr(), Handler: router},
		gateway:    gw,
		bus:        b,
		store:      store,
		factory:    f,
		supervisor: sup,
		logger:     logger,
		config:     cfg,
		metrics:    metrics,
		tracer:     tracer,
	}, nil
}

// Handler exposes the router for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Supervisor returns the worker supervisor
func (s *Server) Supervisor() *supervisor.Supervisor {
	return s.supervisor
}

// StartWorkers creates the workers listed in the worker manifest. An
// essential worker that fails to start is an error; others are logged.
func (s *Server) StartWorkers(ctx context.Context) error {
	path := s.config.Workers.Manifest
	if path == "" {
		return nil
	}
	manifest, err := supervisor.LoadManifest(path)
	if err != nil {
		return err
	}

	for _, entry := range manifest.Workers {
		cfg := entry.Config
		if err := s.factory.Prepare(&cfg); err != nil {
			return fmt.Errorf("worker %s: %w", entry.ID, err)
		}
		if _, err := s.supervisor.CreateWorker(ctx, entry.ID, cfg); err != nil {
			if cfg.Essential {
				return fmt.Errorf("worker %s: %w", entry.ID, err)
			}
			s.logger.Warn("Worker failed to start", zap.String("logical_id", string(entry.ID)), zap.Error(err))
		}
	}
	s.logger.Info("Startup workers created", zap.Int("count", len(manifest.Workers)))
	return nil
}

// Run serves HTTP until Shutdown
func (s *Server) Run() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops HTTP, closes every worker, flushes window state and
// releases the bus
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	var errs error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := s.supervisor.CloseAll(ctx); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("close workers: %w", err))
	}
	if err := s.store.Close(); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("close window state: %w", err))
	}
	s.bus.Close()
	s.tracer.Close()

	if errs != nil {
		s.logger.Error("Shutdown finished with errors", zap.Error(errs))
	}
	_ = s.logger.Sync()
	return errs
}

// Degraded reports whether an essential worker is unrecoverable
func (s *Server) Degraded() bool {
	return s.supervisor.Degraded()
}

// Workers lists live logical ids
func (s *Server) Workers() []types.ContextID {
	workers := s.supervisor.Workers()
	ids := make([]types.ContextID, 0, len(workers))
	for _, w := range workers {
		ids = append(ids, w.LogicalID)
	}
	return ids
}
