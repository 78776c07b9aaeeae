package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/fmueller/voxscribe/internal/whisper"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds the transcription service settings.
type Config struct {
	// Server
	Host            string        `envconfig:"HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"PORT" default:"8000"`
	ShutdownTimeout time.Duration `envconfig:"VOXSCRIBE_SHUTDOWN_TIMEOUT" default:"30s"`

	// Models and engine
	ModelDir     string   `envconfig:"VOXSCRIBE_MODEL_DIR"`
	DefaultModel string   `envconfig:"VOXSCRIBE_DEFAULT_MODEL" default:"base"`
	WhisperPath  string   `envconfig:"VOXSCRIBE_WHISPER_PATH"`
	FFmpegPath   string   `envconfig:"VOXSCRIBE_FFMPEG_PATH" default:"ffmpeg"`
	Threads      int      `envconfig:"VOXSCRIBE_THREADS" default:"0"`
	AutoDownload bool     `envconfig:"VOXSCRIBE_AUTO_DOWNLOAD" default:"true"`
	VerifyModels bool     `envconfig:"VOXSCRIBE_VERIFY_MODELS" default:"true"`
	Preload      []string `envconfig:"VOXSCRIBE_PRELOAD"`

	// Request audio
	TempDir              string        `envconfig:"VOXSCRIBE_TEMP_DIR"`
	MaxUploadMB          int64         `envconfig:"VOXSCRIBE_MAX_UPLOAD_MB" default:"512"`
	FetchTimeout         time.Duration `envconfig:"VOXSCRIBE_FETCH_TIMEOUT" default:"30s"`
	BlockPrivateURLs     bool          `envconfig:"VOXSCRIBE_BLOCK_PRIVATE_URLS" default:"false"`
	SilenceGate          bool          `envconfig:"VOXSCRIBE_SILENCE_GATE" default:"false"`
	SilenceThresholdDBFS float64       `envconfig:"VOXSCRIBE_SILENCE_THRESHOLD_DBFS" default:"-65"`

	// Observability
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	LogJSON        bool   `envconfig:"LOG_JSON" default:"false"`
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"`
}

// Load reads a .env file when present, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv reads the environment only.
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.Preload = cleanList(cfg.Preload)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port))
	}
	if err := whisper.ValidateModelName(c.DefaultModel); err != nil {
		errs = append(errs, fmt.Errorf("VOXSCRIBE_DEFAULT_MODEL: %w", err))
	}
	for _, name := range c.Preload {
		if err := whisper.ValidateModelName(name); err != nil {
			errs = append(errs, fmt.Errorf("VOXSCRIBE_PRELOAD: %w", err))
		}
	}
	if c.MaxUploadMB < 0 {
		errs = append(errs, errors.New("VOXSCRIBE_MAX_UPLOAD_MB must not be negative"))
	}
	if c.FetchTimeout <= 0 {
		errs = append(errs, errors.New("VOXSCRIBE_FETCH_TIMEOUT must be positive"))
	}
	if c.Threads < 0 {
		errs = append(errs, errors.New("VOXSCRIBE_THREADS must not be negative"))
	}
	return errors.Join(errs...)
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// MaxUploadBytes returns the upload cap in bytes; zero means unlimited.
func (c *Config) MaxUploadBytes() int64 {
	return c.MaxUploadMB << 20
}

// ParseModelList splits a comma separated list of model names.
func ParseModelList(value string) []string {
	return cleanList(strings.Split(value, ","))
}

func cleanList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	return out
}
