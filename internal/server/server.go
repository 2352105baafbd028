package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/muurk/printhost/internal/connection"
	"github.com/muurk/printhost/internal/events"
	"github.com/muurk/printhost/internal/logging"
	"github.com/muurk/printhost/internal/plugin"
	"github.com/muurk/printhost/internal/scripts"
	"github.com/muurk/printhost/internal/settings"
)

// DefaultShutdownTimeout bounds a graceful shutdown
const DefaultShutdownTimeout = 10 * time.Second

// Config holds the server configuration
type Config struct {
	Host     string
	Port     int
	BaseDir  string // Root of the default folders and the script store
	CertPath string // Serve HTTPS when both CertPath and KeyPath are set
	KeyPath  string

	ShutdownTimeout time.Duration
}

// Addr returns the host:port the server listens on
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Task is a background job that runs for the lifetime of the server. It
// must return once ctx is done.
type Task func(ctx context.Context) error

// Server serves the settings API
type Server struct {
	config     *Config
	settings   *settings.Settings
	scripts    *scripts.Store
	plugins    *plugin.Registry
	folders    *settings.Folders
	connection connection.Provider
	bus        *events.Bus
	publisher  events.Publisher
	gatherer   prometheus.Gatherer
	tlsConfig  *tls.Config
	tasks      map[string]Task
	log        *zap.Logger

	router chi.Router
	push   *pushHub

	// writeMu serializes settings writes with the scripts they carry
	writeMu sync.Mutex

	mu         sync.Mutex
	listener   net.Listener
	httpServer *http.Server
	ready      chan struct{}
	readyOnce  sync.Once
}

// Option configures a Server
type Option func(*Server)

// WithScripts sets the script store
func WithScripts(store *scripts.Store) Option {
	return func(s *Server) {
		s.scripts = store
	}
}

// WithPlugins sets the extension registry
func WithPlugins(reg *plugin.Registry) Option {
	return func(s *Server) {
		s.plugins = reg
	}
}

// WithFolders sets the base folder resolver
func WithFolders(f *settings.Folders) Option {
	return func(s *Server) {
		s.folders = f
	}
}

// WithConnectionProvider sets the serial connection options provider
func WithConnectionProvider(p connection.Provider) Option {
	return func(s *Server) {
		s.connection = p
	}
}

// WithBus sets the bus feeding the push socket
func WithBus(bus *events.Bus) Option {
	return func(s *Server) {
		s.bus = bus
	}
}

// WithPublisher sets where change events go. It defaults to the bus.
func WithPublisher(p events.Publisher) Option {
	return func(s *Server) {
		s.publisher = p
	}
}

// WithGatherer serves the gatherer's metrics on /metrics
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithTask runs task alongside the HTTP server
func WithTask(name string, task Task) Option {
	return func(s *Server) {
		s.tasks[name] = task
	}
}

// WithLogger sets the logger
func WithLogger(log *zap.Logger) Option {
	return func(s *Server) {
		s.log = log
	}
}

// New creates a new Server instance around an already loaded settings engine
func New(config *Config, engine *settings.Settings, opts ...Option) (*Server, error) {
	if engine == nil {
		return nil, errors.New("settings engine is required")
	}

	s := &Server{
		config:   config,
		settings: engine,
		tasks:    make(map[string]Task),
		ready:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.log == nil {
		s.log = logging.Named("server")
	}
	if s.config.ShutdownTimeout <= 0 {
		s.config.ShutdownTimeout = DefaultShutdownTimeout
	}
	if s.folders == nil {
		s.folders = settings.NewFolders(config.BaseDir)
	}
	if s.scripts == nil {
		s.scripts = scripts.NewStore(filepath.Join(config.BaseDir, "scripts"))
	}
	if s.plugins == nil {
		reg, err := plugin.NewRegistry(plugin.WithLogger(s.log))
		if err != nil {
			return nil, err
		}
		s.plugins = reg
	}
	if s.connection == nil {
		s.connection = connection.NewScanner().Provider()
	}
	if s.bus == nil {
		s.bus = events.NewBus(events.WithBusLogger(s.log))
	}
	if s.publisher == nil {
		s.publisher = s.bus
	}

	if config.CertPath != "" && config.KeyPath != "" {
		tlsConfig, err := NewTLSConfig(config.CertPath, config.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		s.tlsConfig = tlsConfig
	}

	logging.SetSerialLogging(engine.GetBoolean(settings.PathSerialLog))
	engine.WatchBoolean(settings.PathSerialLog, func(old, enabled bool) {
		if !enabled {
			logging.Serial().Debug("Disabling serial logging")
		}
		logging.SetSerialLogging(enabled)
		if enabled {
			logging.Serial().Debug("Enabling serial logging")
		}
	})

	s.push = newPushHub(s.bus, s.log)
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.crossOrigin)
		r.Get("/settings", s.handleGetSettings)
		r.Post("/settings", s.handlePostSettings)
		r.Get("/version", s.handleVersion)
	})
	r.Get("/push", s.push.ServeHTTP)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// Handler returns the server's HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the listening address once the server is running
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Ready is closed once the server first accepts connections
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Start runs the server until SIGINT or SIGTERM
func (s *Server) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return s.Run(ctx)
}

// Run serves HTTP and the background tasks until ctx is done or one of them
// fails, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	addr := s.config.Addr()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	if s.tlsConfig != nil {
		listener = tls.NewListener(listener, s.tlsConfig)
	}

	httpServer := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.mu.Lock()
	s.listener = listener
	s.httpServer = httpServer
	s.mu.Unlock()

	s.log.Info("Starting printhost server",
		zap.String("addr", listener.Addr().String()),
		zap.Any("tls_info", GetTLSInfo(s.tlsConfig)),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	for name, task := range s.tasks {
		g.Go(func() error {
			s.log.Debug("Starting background task", zap.String("task", name))
			if err := task(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("%s: %w", name, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return s.Shutdown(context.Background())
	})

	s.readyOnce.Do(func() { close(s.ready) })
	return g.Wait()
}

// Shutdown gracefully shuts down the server and flushes pending settings
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	s.push.closeAll()

	s.mu.Lock()
	httpServer := s.httpServer
	s.mu.Unlock()

	var errs []error
	if httpServer != nil {
		if err := httpServer.Shutdown(ctx); err != nil {
			s.log.Warn("Shutdown timeout, forcing close", zap.Error(err))
			_ = httpServer.Close()
		}
	}
	if err := s.settings.Close(ctx); err != nil {
		s.log.Error("Failed to flush settings", zap.Error(err))
		errs = append(errs, err)
	}

	logging.Sync()
	return errors.Join(errs...)
}

// logRequests logs every completed request
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logging.LogHTTPRequest(r.RemoteAddr, r.Method, r.URL.Path, ww.Status(), ww.BytesWritten(), time.Since(start))
	})
}

// crossOrigin allows any origin while api.allowCrossOrigin is set
func (s *Server) crossOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.settings.GetBoolean(settings.PathAllowCrossOrigin) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+APIKeyHeader)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		}
		next.ServeHTTP(w, r)
	})
}
