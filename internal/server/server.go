package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/fmueller/voxscribe/internal/metrics"
	"github.com/fmueller/voxscribe/internal/modelcache"
	"github.com/fmueller/voxscribe/internal/platform"
	"github.com/fmueller/voxscribe/internal/service"
	"go.uber.org/zap"
)

const (
	defaultShutdownTimeout = 30 * time.Second
	// multipartOverhead leaves room for boundaries and form fields around the file part.
	multipartOverhead = 1 << 20
	maxJSONBody       = 64 << 10
)

type Transcriber interface {
	TranscribeUpload(ctx context.Context, filename string, body io.Reader, opts service.Options) (*service.Result, error)
	TranscribeURL(ctx context.Context, rawURL string, opts service.Options) (*service.Result, error)
}

type ModelLister interface {
	Loaded() []modelcache.Key
}

type DeviceInfo interface {
	Capabilities() platform.Capabilities
	OptimalDevice() platform.Device
}

type Options struct {
	Addr            string
	ShutdownTimeout time.Duration
	MetricsEnabled  bool
	// MaxUploadBytes bounds request bodies; zero disables the bound.
	MaxUploadBytes int64
	DefaultModel   string
}

type Deps struct {
	Transcriber Transcriber
	Models      ModelLister
	Devices     DeviceInfo
	Logger      *zap.Logger
}

// Server exposes the transcription service over HTTP.
type Server struct {
	opts        Options
	transcriber Transcriber
	models      ModelLister
	devices     DeviceInfo
	logger      *zap.Logger
}

func New(opts Options, deps Deps) *Server {
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = defaultShutdownTimeout
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		opts:        opts,
		transcriber: deps.Transcriber,
		models:      deps.Models,
		devices:     deps.Devices,
		logger:      logger,
	}
}

// Handler returns the routed handler wrapped in middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /models", s.handleModels)
	mux.HandleFunc("POST /transcribe", s.handleTranscribe)
	mux.HandleFunc("POST /transcribe-url", s.handleTranscribeURL)
	if s.opts.MetricsEnabled {
		mux.Handle("GET /metrics", metrics.Handler())
	}

	return s.withRequestID(s.withAccessLog(s.withRecover(mux)))
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.opts.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then drains in-flight requests for
// at most the shutdown timeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ErrorLog:          zap.NewStdLog(s.logger.Named("http")),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	s.logger.Info("server listening",
		zap.String("addr", ln.Addr().String()),
		zap.Bool("metrics_enabled", s.opts.MetricsEnabled),
	)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server", zap.Duration("timeout", s.opts.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		_ = srv.Close()
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	s.logger.Info("server exited gracefully")
	return nil
}
