package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/fmueller/voxscribe/internal/config"
	"github.com/fmueller/voxscribe/internal/download"
	"github.com/fmueller/voxscribe/internal/logging"
	"github.com/fmueller/voxscribe/internal/modelcache"
	"github.com/fmueller/voxscribe/internal/platform"
	"github.com/fmueller/voxscribe/internal/server"
	"github.com/fmueller/voxscribe/internal/service"
	"github.com/fmueller/voxscribe/internal/whisper"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(app *appState) *cobra.Command {
	var (
		host    string
		port    int
		preload string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the transcription HTTP server",
		Long: "Run the transcription HTTP server.\n\n" +
			"Settings come from the environment (and a .env file when present); " +
			"flags override the corresponding variables.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("host") {
				cfg.Host = host
			}
			if flags.Changed("port") {
				cfg.Port = port
			}
			if flags.Changed("preload") {
				cfg.Preload = config.ParseModelList(preload)
			}
			if flags.Changed("model-dir") {
				cfg.ModelDir = app.modelDir
			}
			if flags.Changed("log-level") {
				cfg.LogLevel = app.logLevel
			}
			cfg.LogJSON = cfg.LogJSON || app.jsonLogs
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Verbose: app.verbose, JSON: cfg.LogJSON})
			if err != nil {
				return fmt.Errorf("initialize logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()
			app.logger = logger

			return app.serveFn(cmd.Context(), cfg)
		},
	}

	bindLoggingFlags(cmd, app)
	bindModelDirFlag(cmd, app)
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "Interface to listen on (env HOST)")
	cmd.Flags().IntVar(&port, "port", 8000, "Port to listen on (env PORT)")
	cmd.Flags().StringVar(&preload, "preload", "", "Comma separated models to load at startup, e.g. tiny,base (env VOXSCRIBE_PRELOAD)")
	return cmd
}

// stack is the wired service behind the HTTP server.
type stack struct {
	server   *server.Server
	cache    *modelcache.Cache
	selector *platform.Selector
}

func buildStack(cfg *config.Config, probe platform.ProbeFunc, logger *zap.Logger) (*stack, error) {
	modelDir, err := platform.EnsureModelDir(cfg.ModelDir)
	if err != nil {
		return nil, err
	}
	if cfg.TempDir != "" {
		if err := os.MkdirAll(cfg.TempDir, 0o755); err != nil {
			return nil, fmt.Errorf("create temp directory %s: %w", cfg.TempDir, err)
		}
	}

	selector := platform.NewSelector(probe, logger.Named("devices"))
	engine, err := whisper.NewBundledEngine(whisper.EngineOptions{
		Executable:   cfg.WhisperPath,
		FFmpeg:       cfg.FFmpegPath,
		ModelDir:     modelDir,
		TempDir:      cfg.TempDir,
		Threads:      cfg.Threads,
		AutoDownload: cfg.AutoDownload,
		VerifyModels: cfg.VerifyModels,
		NoProgress:   true,
		Devices:      selector,
		Logger:       logger.Named("engine"),
	})
	if err != nil {
		return nil, err
	}

	cache := modelcache.New(engine, selector, logger.Named("models"))
	fetcher := download.NewFetcher(download.FetchOptions{
		Timeout:      cfg.FetchTimeout,
		BlockPrivate: cfg.BlockPrivateURLs,
		Logger:       logger.Named("fetch"),
	})

	handler := service.New(service.Config{
		DefaultModel:         cfg.DefaultModel,
		TempDir:              cfg.TempDir,
		MaxUploadBytes:       cfg.MaxUploadBytes(),
		SilenceGate:          cfg.SilenceGate,
		SilenceThresholdDBFS: cfg.SilenceThresholdDBFS,
	}, service.Deps{
		Models:  cache,
		Engine:  engine,
		Fetcher: fetcher,
		Devices: selector,
		Logger:  logger.Named("transcribe"),
	})

	srv := server.New(server.Options{
		Addr:            cfg.Addr(),
		ShutdownTimeout: cfg.ShutdownTimeout,
		MetricsEnabled:  cfg.MetricsEnabled,
		MaxUploadBytes:  cfg.MaxUploadBytes(),
		DefaultModel:    cfg.DefaultModel,
	}, server.Deps{
		Transcriber: handler,
		Models:      cache,
		Devices:     selector,
		Logger:      logger.Named("http"),
	})

	logger.Info("voxscribe server configured",
		zap.String("addr", cfg.Addr()),
		zap.String("engine", engine.Executable),
		zap.String("model_dir", modelDir),
		zap.String("default_model", cfg.DefaultModel),
		zap.Int64("max_upload_bytes", cfg.MaxUploadBytes()),
		zap.Duration("fetch_timeout", cfg.FetchTimeout),
		zap.Bool("block_private_urls", cfg.BlockPrivateURLs),
	)

	return &stack{server: srv, cache: cache, selector: selector}, nil
}

func (a *appState) runServer(ctx context.Context, cfg *config.Config) error {
	st, err := buildStack(cfg, a.probe(), a.log())
	if err != nil {
		return err
	}

	if len(cfg.Preload) > 0 {
		go func() {
			if err := st.cache.Warm(ctx, cfg.Preload, ""); err != nil {
				a.log().Warn("some models failed to preload; they will load on first request", zap.Error(err))
			}
		}()
	}

	return st.server.Run(ctx)
}
