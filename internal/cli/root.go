package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fmueller/voxscribe/internal/client"
	"github.com/fmueller/voxscribe/internal/config"
	"github.com/fmueller/voxscribe/internal/download"
	"github.com/fmueller/voxscribe/internal/logging"
	"github.com/fmueller/voxscribe/internal/platform"
	"github.com/fmueller/voxscribe/internal/service"
	"github.com/fmueller/voxscribe/internal/version"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/spf13/cobra"
)

const serverEnv = "VOXSCRIBE_SERVER"

// apiClient is the part of the HTTP client the commands use.
type apiClient interface {
	Health(ctx context.Context) (json.RawMessage, error)
	Models(ctx context.Context) (json.RawMessage, error)
	TranscribeFile(ctx context.Context, path string, opts service.Options) (*service.Result, error)
	TranscribeURL(ctx context.Context, rawURL string, opts service.Options) (*service.Result, error)
}

type appState struct {
	verbose    bool
	jsonLogs   bool
	logLevel   string
	noProgress bool

	serverURL        string
	model            string
	modelDir         string
	language         string
	device           string
	noWordTimestamps bool
	jsonOutput       bool
	outputPath       string
	requestTimeout   time.Duration

	logger *zap.Logger
	out    io.Writer

	clientFn   func() apiClient
	serveFn    func(ctx context.Context, cfg *config.Config) error
	probeFn    platform.ProbeFunc
	downloadFn func(ctx context.Context, opts download.Options) error
}

func NewRootCmd() *cobra.Command {
	app := &appState{
		logLevel:  "info",
		serverURL: defaultServerURL(),
		language:  "auto",
		out:       os.Stdout,
	}
	app.serveFn = app.runServer
	app.probeFn = platform.ProbeHost
	app.downloadFn = download.DownloadFile

	cmd := &cobra.Command{
		Use:           "voxscribe",
		Short:         "Speech-to-text transcription service with timestamps",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Resolve(),
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			logger, err := logging.New(logging.Options{Level: app.logLevel, Verbose: app.verbose, JSON: app.jsonLogs})
			if err != nil {
				return fmt.Errorf("initialize logger: %w", err)
			}
			app.language = sanitizeLanguage(app.language)
			app.logger = logger
			return nil
		},
	}

	cmd.SetVersionTemplate("{{.Name}} v{{.Version}}\n")

	cmd.AddCommand(newServeCmd(app))
	cmd.AddCommand(newHealthCmd(app))
	cmd.AddCommand(newModelsCmd(app))
	cmd.AddCommand(newTranscribeCmd(app))
	cmd.AddCommand(newTranscribeURLCmd(app))
	cmd.AddCommand(newSetupCmd(app))
	cmd.AddCommand(newDevicesCmd(app))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func defaultServerURL() string {
	if v := strings.TrimSpace(os.Getenv(serverEnv)); v != "" {
		return v
	}
	return client.DefaultBaseURL
}

func bindLoggingFlags(cmd *cobra.Command, app *appState) {
	cmd.Flags().BoolVar(&app.verbose, "verbose", app.verbose, "Enable verbose logs")
	cmd.Flags().BoolVar(&app.jsonLogs, "log-json", app.jsonLogs, "Enable JSON logging")
	cmd.Flags().StringVar(&app.logLevel, "log-level", app.logLevel, "Log level: debug|info|warn|error")
}

func bindProgressFlag(cmd *cobra.Command, app *appState) {
	cmd.Flags().BoolVar(&app.noProgress, "no-progress", app.noProgress, "Disable progress indicators")
}

func bindServerFlag(cmd *cobra.Command, app *appState) {
	cmd.Flags().StringVar(&app.serverURL, "server", app.serverURL, "Base URL of a running voxscribe server (env "+serverEnv+")")
	cmd.Flags().DurationVar(&app.requestTimeout, "timeout", app.requestTimeout, "Give up after this long, e.g. 5m; 0 waits indefinitely")
}

func bindRequestFlags(cmd *cobra.Command, app *appState) {
	cmd.Flags().StringVar(&app.model, "model", app.model, "Model name (tiny|base|small|medium|large|large-v2|large-v3); server default when empty")
	cmd.Flags().StringVar(&app.language, "language", app.language, "Language code (auto|en|de|...) for transcription")
	cmd.Flags().StringVar(&app.device, "device", app.device, "Compute device (cpu|cuda|cuda:N|mps); server picks the optimal device when empty")
	cmd.Flags().BoolVar(&app.noWordTimestamps, "no-word-timestamps", app.noWordTimestamps, "Do not request per-word timings")
}

func bindOutputFlags(cmd *cobra.Command, app *appState) {
	cmd.Flags().BoolVar(&app.jsonOutput, "json", app.jsonOutput, "Print the raw JSON result")
	cmd.Flags().StringVarP(&app.outputPath, "output", "o", app.outputPath, "Write the result to this file instead of stdout")
}

func bindModelDirFlag(cmd *cobra.Command, app *appState) {
	cmd.Flags().StringVar(&app.modelDir, "model-dir", app.modelDir, "Directory where models are stored")
}

func (a *appState) requestOptions() service.Options {
	return service.Options{
		Model:          strings.TrimSpace(a.model),
		Language:       a.language,
		Device:         strings.TrimSpace(a.device),
		WordTimestamps: !a.noWordTimestamps,
		Verbose:        a.verbose,
	}
}

func (a *appState) client() apiClient {
	if a.clientFn != nil {
		return a.clientFn()
	}
	return client.New(a.serverURL, nil)
}

// requestContext applies --timeout when set.
func (a *appState) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if a.requestTimeout > 0 {
		return context.WithTimeout(ctx, a.requestTimeout)
	}
	return context.WithCancel(ctx)
}

func (a *appState) log() *zap.Logger {
	if a.logger == nil {
		return zap.NewNop()
	}
	return a.logger
}

func (a *appState) progressEnabled() bool {
	if a.noProgress {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}

func (a *appState) probe() platform.ProbeFunc {
	if a.probeFn == nil {
		return platform.ProbeHost
	}
	return a.probeFn
}

func (a *appState) download(ctx context.Context, opts download.Options) error {
	if a.downloadFn == nil {
		return download.DownloadFile(ctx, opts)
	}
	return a.downloadFn(ctx, opts)
}
