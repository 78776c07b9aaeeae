package whisper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/fmueller/voxscribe/internal/download"
	"github.com/fmueller/voxscribe/internal/platform"
	"go.uber.org/zap"
)

const engineEnvOverride = "VOXSCRIBE_WHISPER_PATH"

var ErrModelMissing = errors.New("model weights missing")

// DeviceChecker reports whether a device can be used on this host.
type DeviceChecker interface {
	Supports(device platform.Device) error
}

type EngineOptions struct {
	// Executable overrides the whisper-cli lookup.
	Executable   string
	FFmpeg       string
	ModelDir     string
	TempDir      string
	Threads      int
	AutoDownload bool
	VerifyModels bool
	NoProgress   bool
	Devices      DeviceChecker
	Logger       *zap.Logger
}

// BundledEngine drives a whisper.cpp command line binary. Loading a model
// prepares and verifies its weights on disk; every transcription runs the
// binary in its own scratch directory.
type BundledEngine struct {
	Executable   string
	FFmpeg       string
	ModelDir     string
	TempDir      string
	Threads      int
	AutoDownload bool
	VerifyModels bool
	NoProgress   bool
	Devices      DeviceChecker
	Logger       *zap.Logger

	downloadFn func(ctx context.Context, opts download.Options) error
	now        func() time.Time
}

func NewBundledEngine(opts EngineOptions) (*BundledEngine, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	executable, err := resolveExecutable(opts.Executable)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(opts.ModelDir) == "" {
		return nil, errors.New("model directory is required")
	}

	return &BundledEngine{
		Executable:   executable,
		FFmpeg:       opts.FFmpeg,
		ModelDir:     opts.ModelDir,
		TempDir:      opts.TempDir,
		Threads:      opts.Threads,
		AutoDownload: opts.AutoDownload,
		VerifyModels: opts.VerifyModels,
		NoProgress:   opts.NoProgress,
		Devices:      opts.Devices,
		Logger:       logger,
	}, nil
}

func resolveExecutable(override string) (string, error) {
	if override = strings.TrimSpace(override); override == "" {
		override = strings.TrimSpace(os.Getenv(engineEnvOverride))
	}
	if override != "" {
		if err := ensureExecutable(override); err != nil {
			return "", fmt.Errorf("configured whisper engine is not executable: %w", err)
		}
		return override, nil
	}

	self, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve voxscribe executable path: %w", err)
	}

	if path, err := ResolveBundledEnginePath(self); err == nil {
		return path, nil
	}

	if path, err := exec.LookPath(engineBinaryName()); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("whisper engine not found near %s or on PATH; set %s or install %s under ../libexec/whisper/", self, engineEnvOverride, engineBinaryName())
}

func ResolveBundledEnginePath(selfExecutable string) (string, error) {
	for _, candidate := range EnginePathCandidates(selfExecutable) {
		if err := ensureExecutable(candidate); err == nil {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("bundled whisper engine not found near %s, expected at ../libexec/whisper/%s", selfExecutable, engineBinaryName())
}

func EnginePathCandidates(selfExecutable string) []string {
	binDir := filepath.Dir(selfExecutable)
	engineName := engineBinaryName()
	hostTarget := platform.CurrentRuntime().Target()

	return []string{
		filepath.Join(binDir, "..", "libexec", "whisper", engineName),
		filepath.Join(binDir, "libexec", "whisper", engineName),
		filepath.Join(binDir, "packaging", "whisper", hostTarget, engineName),
		filepath.Join(binDir, engineName),
	}
}

// Load makes the named model's weights available for device.
func (b *BundledEngine) Load(ctx context.Context, name string, device platform.Device) (*LoadedModel, error) {
	if b.Devices != nil {
		if err := b.Devices.Supports(device); err != nil {
			return nil, err
		}
	}

	if err := ensureExecutable(b.Executable); err != nil {
		return nil, fmt.Errorf("whisper engine missing or not executable: %w", err)
	}

	if err := os.MkdirAll(b.ModelDir, 0o755); err != nil {
		return nil, fmt.Errorf("create model directory %s: %w", b.ModelDir, err)
	}

	resolved, err := ResolveModel(name, b.ModelDir)
	if err != nil {
		return nil, err
	}

	if !resolved.NeedsDownload && b.VerifyModels && resolved.SHA256 != "" {
		if err := download.VerifyFileChecksum(resolved.Path, resolved.SHA256); err != nil {
			if !b.AutoDownload {
				return nil, fmt.Errorf("model %s failed verification: %w", resolved.Name, err)
			}
			b.log().Warn("model checksum verification failed; downloading fresh copy", zap.String("model", resolved.Name), zap.Error(err))
			resolved.NeedsDownload = true
		}
	}

	if resolved.NeedsDownload {
		if !b.AutoDownload {
			return nil, fmt.Errorf("%w: %s expected at %s; run `voxscribe setup --model %s`", ErrModelMissing, resolved.Name, resolved.Path, resolved.Name)
		}

		b.log().Info("model not found, downloading", zap.String("model", resolved.Name), zap.String("destination", resolved.Path))
		if err := b.download(ctx, download.Options{
			URL:            resolved.URL,
			Destination:    resolved.Path,
			ExpectedSHA256: resolved.SHA256,
			ChecksumURL:    resolved.SHA256URL,
			NoProgress:     b.NoProgress,
			Logger:         b.log(),
		}); err != nil {
			return nil, fmt.Errorf("download model %q: %w", resolved.Name, err)
		}
	}

	return &LoadedModel{
		Name:     resolved.Name,
		Path:     resolved.Path,
		Device:   device,
		LoadedAt: b.clock(),
	}, nil
}

func (b *BundledEngine) Transcribe(ctx context.Context, model *LoadedModel, req TranscriptionRequest) (*Transcript, error) {
	if model == nil || strings.TrimSpace(model.Path) == "" {
		return nil, errors.New("loaded model is required")
	}
	if strings.TrimSpace(req.AudioPath) == "" {
		return nil, errors.New("audio path is required")
	}

	if err := ensureExecutable(b.Executable); err != nil {
		return nil, fmt.Errorf("whisper engine missing or not executable: %w", err)
	}

	workDir, err := os.MkdirTemp(b.TempDir, "voxscribe-engine-*")
	if err != nil {
		return nil, fmt.Errorf("create engine scratch directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			b.log().Warn("failed to remove engine scratch directory", zap.String("path", workDir), zap.Error(err))
		}
	}()

	input := req.AudioPath
	if needsTranscode(input) {
		converted := filepath.Join(workDir, "input.wav")
		b.log().Debug("transcoding audio", zap.String("input", input), zap.String("output", converted))
		if err := transcodeToWAV(ctx, b.FFmpeg, input, converted); err != nil {
			return nil, err
		}
		input = converted
	}

	outBase := filepath.Join(workDir, "transcript")
	args := b.buildArgs(model, input, outBase, req)

	cmd := exec.CommandContext(ctx, b.Executable, args...)
	var stderr bytes.Buffer
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr

	started := time.Now()
	b.log().Debug("running whisper engine", zap.String("engine", b.Executable), zap.Strings("args", args))
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("whisper transcribe interrupted: %w", ctxErr)
		}
		return nil, b.classifyRunError(err, strings.TrimSpace(stderr.String()))
	}
	if stderr.Len() > 0 {
		b.log().Debug("whisper engine stderr", zap.String("stderr", strings.TrimSpace(stderr.String())))
	}

	f, err := os.Open(outBase + ".json")
	if err != nil {
		return nil, fmt.Errorf("read whisper output: %w", err)
	}
	defer f.Close()

	transcript, err := parseCLIOutput(f, req.WordTimestamps)
	if err != nil {
		return nil, err
	}

	if req.Verbose {
		for _, segment := range transcript.Segments {
			b.log().Info("segment",
				zap.Int("id", segment.ID),
				zap.Float64("start", segment.Start),
				zap.Float64("end", segment.End),
				zap.String("text", segment.Text),
			)
		}
	}
	b.log().Debug("whisper engine finished",
		zap.Duration("elapsed", time.Since(started)),
		zap.Int("segments", len(transcript.Segments)),
		zap.String("language", transcript.Language),
	)

	return transcript, nil
}

func (b *BundledEngine) buildArgs(model *LoadedModel, input, outBase string, req TranscriptionRequest) []string {
	args := []string{"-m", model.Path, "-f", input, "-oj", "-of", outBase, "-np"}
	if req.WordTimestamps {
		args = append(args, "-ojf")
	}

	lang := strings.ToLower(strings.TrimSpace(req.Language))
	if lang == "" {
		lang = "auto"
	}
	args = append(args, "-l", lang)

	if b.Threads > 0 {
		args = append(args, "-t", strconv.Itoa(b.Threads))
	}

	switch index, ok := model.Device.CUDAIndex(); {
	case model.Device == platform.DeviceCPU:
		args = append(args, "-ng")
	case ok && index > 0:
		args = append(args, "-dev", strconv.Itoa(index))
	}

	return args
}

func (b *BundledEngine) classifyRunError(err error, errText string) error {
	if isMissingSharedLibraryError(errText) {
		return fmt.Errorf("whisper engine at %s is missing required shared libraries (%s); rebuild whisper-cli with BUILD_SHARED_LIBS=OFF", b.Executable, errText)
	}
	if isIllegalInstructionError(errText) || isIllegalInstructionError(err.Error()) {
		return fmt.Errorf("whisper engine crashed with an illegal CPU instruction; "+
			"your CPU may lack required instruction set extensions; "+
			"set %s to a whisper-cli binary built for your CPU", engineEnvOverride)
	}
	return fmt.Errorf("whisper transcribe failed: %w (%s)", err, errText)
}

func (b *BundledEngine) download(ctx context.Context, opts download.Options) error {
	if b.downloadFn != nil {
		return b.downloadFn(ctx, opts)
	}
	return download.DownloadFile(ctx, opts)
}

func (b *BundledEngine) clock() time.Time {
	if b.now != nil {
		return b.now()
	}
	return time.Now()
}

func (b *BundledEngine) log() *zap.Logger {
	if b.Logger == nil {
		return zap.NewNop()
	}
	return b.Logger
}

func engineBinaryName() string {
	if runtime.GOOS == "windows" {
		return "whisper-cli.exe"
	}
	return "whisper-cli"
}

func ensureExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	if runtime.GOOS != "windows" && info.Mode()&0o111 == 0 {
		return fmt.Errorf("%s is not executable", path)
	}
	return nil
}

func isMissingSharedLibraryError(stderr string) bool {
	value := strings.ToLower(strings.TrimSpace(stderr))
	if value == "" {
		return false
	}

	patterns := []string{
		"error while loading shared libraries",
		"cannot open shared object file",
		"dyld: library not loaded",
		"image not found",
	}

	for _, pattern := range patterns {
		if strings.Contains(value, pattern) {
			return true
		}
	}

	return false
}

func isIllegalInstructionError(stderr string) bool {
	return strings.Contains(strings.ToLower(stderr), "illegal instruction")
}
