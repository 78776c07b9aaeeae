package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var configKeys = []string{
	"HOST", "PORT", "VOXSCRIBE_SHUTDOWN_TIMEOUT", "VOXSCRIBE_MODEL_DIR", "VOXSCRIBE_DEFAULT_MODEL",
	"VOXSCRIBE_WHISPER_PATH", "VOXSCRIBE_FFMPEG_PATH", "VOXSCRIBE_THREADS", "VOXSCRIBE_AUTO_DOWNLOAD",
	"VOXSCRIBE_VERIFY_MODELS", "VOXSCRIBE_PRELOAD", "VOXSCRIBE_TEMP_DIR", "VOXSCRIBE_MAX_UPLOAD_MB",
	"VOXSCRIBE_FETCH_TIMEOUT", "VOXSCRIBE_BLOCK_PRIVATE_URLS", "VOXSCRIBE_SILENCE_GATE",
	"VOXSCRIBE_SILENCE_THRESHOLD_DBFS", "LOG_LEVEL", "LOG_JSON", "METRICS_ENABLED",
}

// clearEnv unsets every config variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configKeys {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestLoadFromEnvDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	require.Equal(t, "0.0.0.0", cfg.Host)
	require.Equal(t, 8000, cfg.Port)
	require.Equal(t, "base", cfg.DefaultModel)
	require.Equal(t, "ffmpeg", cfg.FFmpegPath)
	require.Equal(t, int64(512), cfg.MaxUploadMB)
	require.Equal(t, 30*time.Second, cfg.FetchTimeout)
	require.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	require.True(t, cfg.AutoDownload)
	require.True(t, cfg.VerifyModels)
	require.True(t, cfg.MetricsEnabled)
	require.False(t, cfg.BlockPrivateURLs)
	require.False(t, cfg.SilenceGate)
	require.InDelta(t, -65.0, cfg.SilenceThresholdDBFS, 1e-9)
	require.Equal(t, "info", cfg.LogLevel)
	require.Empty(t, cfg.Preload)
	require.Equal(t, "0.0.0.0:8000", cfg.Addr())
	require.Equal(t, int64(512<<20), cfg.MaxUploadBytes())
}

func TestLoadFromEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOST", "127.0.0.1")
	t.Setenv("PORT", "9001")
	t.Setenv("VOXSCRIBE_DEFAULT_MODEL", "small")
	t.Setenv("VOXSCRIBE_PRELOAD", " Tiny , base,,")
	t.Setenv("VOXSCRIBE_FETCH_TIMEOUT", "5s")
	t.Setenv("VOXSCRIBE_BLOCK_PRIVATE_URLS", "true")
	t.Setenv("VOXSCRIBE_MAX_UPLOAD_MB", "0")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	require.Equal(t, "127.0.0.1:9001", cfg.Addr())
	require.Equal(t, "small", cfg.DefaultModel)
	require.Equal(t, []string{"tiny", "base"}, cfg.Preload)
	require.Equal(t, 5*time.Second, cfg.FetchTimeout)
	require.True(t, cfg.BlockPrivateURLs)
	require.Zero(t, cfg.MaxUploadBytes())
}

func TestLoadFromEnvRejectsInvalidValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "70000")
	t.Setenv("VOXSCRIBE_DEFAULT_MODEL", "gigantic")
	t.Setenv("VOXSCRIBE_PRELOAD", "tiny,nope")

	_, err := LoadFromEnv()
	require.ErrorContains(t, err, "PORT must be between")
	require.ErrorContains(t, err, "VOXSCRIBE_DEFAULT_MODEL")
	require.ErrorContains(t, err, "VOXSCRIBE_PRELOAD")
}

func TestLoadFromEnvRejectsMalformedDuration(t *testing.T) {
	clearEnv(t)
	t.Setenv("VOXSCRIBE_FETCH_TIMEOUT", "soon")

	_, err := LoadFromEnv()
	require.ErrorContains(t, err, "failed to load config")
}

func TestParseModelList(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"tiny", "large-v3"}, ParseModelList("tiny, LARGE-V3 ,"))
	require.Empty(t, ParseModelList(""))
}
