package server

import (
	"context"
	cryptotls "crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/api/handlers"
	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/api/middleware"
	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/api/types"
	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/config"
	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/identity"
	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/limits"
	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/limits/quota"
	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/limits/storage"
	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/limits/throttle"
	tlsconfig "github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/security/tls"
	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/telemetry/health"
	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/telemetry/metrics"
	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/telemetry/tracing"
	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/upstream"
)

// Options carries the dependencies that do not come from the configuration
// file. Zero values select the production defaults.
type Options struct {
	// Version, Commit and BuildTime are reported by /version and on spans.
	Version   string
	Commit    string
	BuildTime string

	// ConfigPath enables hot reload of the tier table when set.
	ConfigPath string

	// Overrides is re-applied to every reloaded configuration, so settings
	// given on the command line survive edits of the file.
	Overrides func(*config.Config)

	Logger *slog.Logger

	// Registry receives the service metrics. Nil creates a fresh registry.
	Registry *prometheus.Registry

	// Store overrides the backend selected by the configuration. The
	// server does not close a store it was given.
	Store storage.Backend

	// Transport is the base transport for upstream calls.
	// Default: http.DefaultTransport
	Transport http.RoundTripper

	// Clock overrides time.Now for the quota engine and middleware.
	Clock func() time.Time
}

// Server wires the quota engine, the upstream throttle and the HTTP surface
// together and manages their lifecycle.
type Server struct {
	cfg     *config.Config
	current *config.Holder
	opts    Options
	logger  *slog.Logger

	store     storage.Backend
	ownsStore bool

	engine   *quota.Engine
	throttle *throttle.Throttle
	client   *upstream.Client
	metrics  *metrics.Collector
	health   *health.Checker
	tracer   *tracing.Tracer
	cleanup  *storage.CleanupScheduler

	handler http.Handler

	mu         sync.Mutex
	httpServer *http.Server
	running    bool
}

// New builds a server from cfg. The configuration must already be validated.
func New(cfg *config.Config, opts Options) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server: configuration is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	s := &Server{
		cfg:     cfg,
		current: config.NewHolder(cfg),
		opts:    opts,
		logger:  opts.Logger.With("component", "server"),
		store:   opts.Store,
	}

	if s.store == nil {
		store, err := storage.Open(cfg.Store)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Backend, err)
		}
		s.store = store
		s.ownsStore = true
	}

	tracer, err := tracing.New(&cfg.Telemetry.Tracing, opts.Version)
	if err != nil {
		s.closeStore()
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	s.tracer = tracer

	s.metrics = metrics.NewCollector(cfg.Telemetry.Metrics, opts.Registry)

	s.engine = quota.NewEngineFromConfig(s.store, cfg.Quota, cfg.Store,
		quota.WithClock(opts.Clock),
		quota.WithLogger(opts.Logger),
		quota.WithMetrics(s.metrics.Limits()),
	)

	s.throttle = throttle.NewFromConfig(s.store, cfg.Throttle, cfg.Store,
		throttle.WithLogger(opts.Logger),
		throttle.WithMetrics(s.metrics.Limits()),
	)

	var transport *upstream.ThrottledTransport
	if opts.Transport != nil {
		transport = upstream.NewThrottledTransport(opts.Transport, s.throttle, s.metrics)
		transport.CallTimeout = cfg.Upstream.Timeout
	} else {
		transport = upstream.NewTransportFromConfig(cfg.Upstream, s.throttle, s.metrics)
	}
	s.client = upstream.NewClient(cfg.Upstream, transport)

	s.health = health.New(cfg.Telemetry.Health.CheckTimeout)
	s.health.RegisterCheck("store", s.store.Ping)
	s.health.RegisterCheck("throttle", func(context.Context) error {
		if s.throttle.Degraded() {
			return errors.New("shared bucket unreachable, using local fallback")
		}
		return nil
	})
	s.health.RegisterCriticalCheck("quota_tiers", func(context.Context) error {
		if !s.engine.Tiers().Has(limits.TierAnonymous) {
			return errors.New("no anonymous tier configured")
		}
		return nil
	})

	s.cleanup = storage.NewCleanupScheduler(s.store, cfg.Store.CleanupSchedule, opts.Logger)

	s.handler = s.routes()
	return s, nil
}

// Handler returns the fully wired HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Engine returns the quota engine.
func (s *Server) Engine() *quota.Engine {
	return s.engine
}

// Throttle returns the upstream throttle.
func (s *Server) Throttle() *throttle.Throttle {
	return s.throttle
}

// Health returns the health checker, for registering extra checks.
func (s *Server) Health() *health.Checker {
	return s.health
}

// Run listens on the configured address and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Server.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Server.ListenAddress, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
// The config watcher and the cleanup scheduler run alongside the listener
// and stop with it.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		ln.Close()
		return errors.New("server is already running")
	}
	var reloader *tlsconfig.CertificateReloader
	if s.cfg.Server.TLS.Enabled {
		tlsCfg, r, err := tlsconfig.New(s.cfg.Server.TLS, s.logger)
		if err != nil {
			s.mu.Unlock()
			ln.Close()
			return fmt.Errorf("failed to configure TLS: %w", err)
		}
		ln = cryptotls.NewListener(ln, tlsCfg)
		reloader = r
	}
	s.running = true
	s.httpServer = &http.Server{
		Handler:        s.handler,
		ReadTimeout:    s.cfg.Server.ReadTimeout,
		WriteTimeout:   s.cfg.Server.WriteTimeout,
		IdleTimeout:    s.cfg.Server.IdleTimeout,
		MaxHeaderBytes: s.cfg.Server.MaxHeaderBytes,
		ErrorLog:       slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}
	httpServer := s.httpServer
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("server listening",
			"address", ln.Addr().String(),
			"store", s.cfg.Store.Backend,
			"quota_mode", s.cfg.Quota.Mode,
			"throttle_mode", s.throttle.Mode(),
			"tls", reloader != nil,
		)
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		return s.shutdown(httpServer)
	})

	if reloader != nil {
		g.Go(func() error {
			reloader.Run(gctx)
			return nil
		})
	}

	if err := s.cleanup.Start(gctx); err != nil {
		s.logger.Warn("cleanup scheduler not started", "error", err)
	} else if next := s.cleanup.NextRun(); next != nil {
		s.logger.Debug("cleanup scheduler started", "next_run", next)
	}
	defer s.cleanup.Stop()

	if s.opts.ConfigPath != "" {
		watcher, err := config.NewWatcher(s.opts.ConfigPath, 0, s.opts.Logger)
		if err != nil {
			s.logger.Warn("config hot reload disabled", "error", err)
		} else {
			g.Go(func() error {
				if err := watcher.Watch(gctx, s.ApplyConfig); err != nil {
					s.logger.Warn("config watcher exited", "error", err)
				}
				return nil
			})
		}
	}

	return g.Wait()
}

func (s *Server) shutdown(httpServer *http.Server) error {
	s.logger.Info("initiating graceful shutdown", "timeout", s.cfg.Server.ShutdownTimeout.String())

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("error during server shutdown", "error", err)
		return fmt.Errorf("server shutdown error: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// ApplyConfig applies the settings that can change without a restart. Only
// the tier table is swapped; everything else needs a restart. Options.Overrides
// runs on cfg first.
func (s *Server) ApplyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	if s.opts.Overrides != nil {
		s.opts.Overrides(cfg)
	}
	prev, generation := s.current.Swap(cfg)
	s.engine.SetTiers(quota.TiersFromConfig(cfg.Quota))
	s.logger.Info("quota tiers reloaded",
		"tiers", len(cfg.Quota.Tiers),
		"generation", generation,
	)
	if fields := config.RestartRequired(prev, cfg); len(fields) > 0 {
		s.logger.Warn("configuration changes need a restart to take effect", "fields", fields)
	}
}

// Config returns the configuration most recently applied.
func (s *Server) Config() *config.Config {
	return s.current.Current()
}

// IsRunning reports whether Serve is active.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Close releases the store (when the server opened it) and flushes traces.
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	if err := s.tracer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
	}
	if err := s.closeStore(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}
	return errors.Join(errs...)
}

func (s *Server) closeStore() error {
	if !s.ownsStore || s.store == nil {
		return nil
	}
	return s.store.Close()
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(tracing.HTTPMiddleware)
	r.Use(middleware.Logging(s.opts.Logger))
	r.Use(middleware.Recovery(s.opts.Logger))
	r.Use(middleware.Metrics(s.metrics))
	r.Use(middleware.CORS(middleware.DefaultCORSConfig(s.cfg.Server.CORSAllowedOrigins)))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		types.WriteError(w, http.StatusNotFound, types.ErrorNotFound, "Resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		types.WriteError(w, http.StatusMethodNotAllowed, types.ErrorMethodNotAllowed, "Method not allowed")
	})

	s.health.Routes(r, health.VersionInfo{
		Version:   s.opts.Version,
		Commit:    s.opts.Commit,
		BuildTime: s.opts.BuildTime,
	}, s.cfg.Telemetry.Health.RequestsPerSecond)

	if s.metrics.Enabled() {
		r.Method(http.MethodGet, s.cfg.Telemetry.Metrics.Path, s.metrics.Handler())
	}

	known := func(t limits.Tier) bool { return s.engine.Tiers().Has(t) }
	quotaGuard := middleware.Quota(middleware.QuotaOptions{
		Engine:            s.engine,
		Resolver:          identity.New(s.cfg.Identity, s.cfg.Server.TrustProxyHeaders, known),
		TrustProxyHeaders: s.cfg.Server.TrustProxyHeaders,
		Mode:              s.cfg.Quota.Mode,
		Links: types.Links{
			UpgradeURL: s.cfg.Quota.UpgradeURL,
			SignupURL:  s.cfg.Quota.SignupURL,
		},
		Logger: s.opts.Logger,
		Clock:  s.opts.Clock,
	})
	r.Route("/api", func(r chi.Router) {
		r.With(quotaGuard).Method(http.MethodGet, "/analyze/{ticker}", handlers.NewAnalyzeHandler(s.client, s.opts.Logger))
	})

	if s.cfg.Admin.Enabled {
		admin := handlers.NewAdminHandler(s.cfg.Admin, s.engine, s.throttle, s.opts.Logger)
		r.Mount("/admin", admin.Routes())
	}

	return r
}
