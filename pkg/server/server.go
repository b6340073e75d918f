package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/aleksaelezovic/jsonld/pkg/jsonld"
	"github.com/aleksaelezovic/jsonld/pkg/loader"
)

// Config holds the listener settings
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	// MaxBodySize caps request bodies in bytes
	MaxBodySize int64
}

// DefaultConfig returns the settings used when a field is left zero
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:8080",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		MaxBodySize:  loader.MaxDocumentSize,
	}
}

// Server exposes the JSON-LD algorithms over HTTP
type Server struct {
	cfg      Config
	defaults *jsonld.Options
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *serverMetrics
	http     *http.Server
}

type serverMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newServerMetrics() *serverMetrics {
	return &serverMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jsonld",
			Subsystem: "server",
			Name:      "requests_total",
			Help:      "HTTP requests by endpoint and status code",
		}, []string{"endpoint", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "jsonld",
			Subsystem: "server",
			Name:      "request_duration_seconds",
			Help:      "Time spent handling HTTP requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
	}
}

// NewServer creates a server. defaults are the processing options each
// request starts from; loaderMetrics, if not nil, are exported on /metrics.
func NewServer(cfg Config, defaults *jsonld.Options, logger *zap.Logger, loaderMetrics *loader.Metrics) (*Server, error) {
	def := DefaultConfig()
	if cfg.Addr == "" {
		cfg.Addr = def.Addr
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = def.IdleTimeout
	}
	if cfg.MaxBodySize == 0 {
		cfg.MaxBodySize = def.MaxBodySize
	}
	if defaults == nil {
		defaults = jsonld.NewOptions()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		cfg:      cfg,
		defaults: defaults,
		logger:   logger,
		registry: prometheus.NewRegistry(),
		metrics:  newServerMetrics(),
	}
	if err := s.registry.Register(s.metrics.requests); err != nil {
		return nil, err
	}
	if err := s.registry.Register(s.metrics.duration); err != nil {
		return nil, err
	}
	if err := loaderMetrics.Register(s.registry); err != nil {
		return nil, err
	}
	s.http = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s, nil
}

// Handler returns the routed handler with request logging applied
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/expand", s.instrument("expand", s.handleExpand))
	mux.Handle("/compact", s.instrument("compact", s.handleCompact))
	mux.Handle("/flatten", s.instrument("flatten", s.handleFlatten))
	mux.Handle("/frame", s.instrument("frame", s.handleFrame))
	mux.Handle("/tordf", s.instrument("tordf", s.handleToRDF))
	mux.Handle("/fromrdf", s.instrument("fromrdf", s.handleFromRDF))
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/", s.handleRoot)
	return mux
}

// Start listens on the configured address until Shutdown is called
func (s *Server) Start() error {
	s.logger.Info("starting JSON-LD endpoint", zap.String("addr", "http://"+s.cfg.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Registry returns the registry served on /metrics
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}
