package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fmueller/voxscribe/internal/audio"
	"github.com/fmueller/voxscribe/internal/download"
	"github.com/fmueller/voxscribe/internal/metrics"
	"github.com/fmueller/voxscribe/internal/modelcache"
	"github.com/fmueller/voxscribe/internal/platform"
	"github.com/fmueller/voxscribe/internal/whisper"
	"go.uber.org/zap"
)

const (
	sourceUpload = "upload"
	sourceURL    = "url"
)

// Models hands out cached models.
type Models interface {
	GetOrLoad(ctx context.Context, model string, device platform.Device) (modelcache.Lookup, error)
}

type Fetcher interface {
	Open(ctx context.Context, rawURL string) (*download.Remote, error)
}

type Devices interface {
	Resolve(requested platform.Device) platform.Device
	Supports(device platform.Device) error
}

type Config struct {
	DefaultModel string
	// TempDir holds request audio; empty means the system temp dir.
	TempDir string
	// MaxUploadBytes caps request audio; zero disables the cap.
	MaxUploadBytes       int64
	SilenceGate          bool
	SilenceThresholdDBFS float64
}

type Deps struct {
	Models  Models
	Engine  whisper.Transcriber
	Fetcher Fetcher
	Devices Devices
	Logger  *zap.Logger
}

// Handler runs transcription requests from validation to response.
type Handler struct {
	cfg     Config
	models  Models
	engine  whisper.Transcriber
	fetcher Fetcher
	devices Devices
	logger  *zap.Logger

	probeWAV func(path string) (audio.Levels, error)
}

func New(cfg Config, deps Deps) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = whisper.DefaultModel
	}
	return &Handler{
		cfg:      cfg,
		models:   deps.Models,
		engine:   deps.Engine,
		fetcher:  deps.Fetcher,
		devices:  deps.Devices,
		logger:   logger,
		probeWAV: audio.ProbeWAV,
	}
}

// TranscribeUpload transcribes audio read from body. The extension of
// filename must be a supported audio format.
func (h *Handler) TranscribeUpload(ctx context.Context, filename string, body io.Reader, opts Options) (*Result, error) {
	run := h.begin(ctx, sourceUpload, zap.String("filename", filename))
	defer run.finish()

	req, err := h.prepare(opts)
	if err != nil {
		return nil, run.fail(err)
	}

	ext := audio.Extension(filename)
	if !audio.IsSupportedExtension(ext) {
		return nil, run.fail(&Error{
			Kind:  KindUnsupportedFormat,
			Stage: run.stage,
			Value: filename,
			Err:   fmt.Errorf("%w %q (supported: %s)", ErrUnsupportedFormat, ext, strings.Join(audio.SupportedFormats(), ", ")),
		})
	}
	run.advance(StageFormatValidated)

	res, err := audio.Acquire(body, ext, h.cfg.TempDir, h.cfg.MaxUploadBytes)
	if err != nil {
		return nil, run.fail(h.acquireError(err, KindInvalidRequest, filename, run.stage))
	}
	defer h.release(run, res)
	metrics.RecordAudioBytes(sourceUpload, res.Size())
	run.advance(StageResourceAcquired, zap.Int64("bytes", res.Size()))

	result, err := h.transcribe(ctx, run, res, req)
	if err != nil {
		return nil, err
	}
	result.Filename = filename
	return result, nil
}

// TranscribeURL downloads rawURL and transcribes it. The URL is never
// rejected for its format: the path extension or the response content type
// only picks the temporary file suffix.
func (h *Handler) TranscribeURL(ctx context.Context, rawURL string, opts Options) (*Result, error) {
	run := h.begin(ctx, sourceURL)
	defer run.finish()

	req, err := h.prepare(opts)
	if err != nil {
		return nil, run.fail(err)
	}

	u, err := download.ValidateURL(rawURL)
	if err != nil {
		return nil, run.fail(&Error{Kind: KindInvalidRequest, Stage: run.stage, Value: rawURL, Err: err})
	}
	source := u.Redacted()
	run.logger = run.logger.With(zap.String("url", source))

	ext := audio.Extension(u.Path)
	if !audio.IsSupportedExtension(ext) {
		ext = ""
	}
	run.advance(StageFormatValidated)

	if h.fetcher == nil {
		return nil, run.fail(&Error{Kind: KindFetchFailure, Stage: run.stage, Value: source, Err: errors.New("no fetcher configured")})
	}
	remote, err := h.fetcher.Open(ctx, u.String())
	if err != nil {
		kind := KindFetchFailure
		if errors.Is(err, download.ErrBlockedAddress) || errors.Is(err, download.ErrInvalidURL) {
			kind = KindInvalidRequest
		}
		return nil, run.fail(&Error{Kind: kind, Stage: run.stage, Value: source, Err: err})
	}
	defer remote.Close()

	if remote.ContentType != "" && !audio.IsAudioContentType(remote.ContentType) {
		run.logger.Warn("remote content type is not audio", zap.String("content_type", remote.ContentType))
	}
	if ext == "" {
		if byType, ok := audio.ExtensionForContentType(remote.ContentType); ok {
			ext = byType
		} else {
			ext = audio.FallbackExtension
		}
	}

	res, err := audio.Acquire(remote.Body, ext, h.cfg.TempDir, h.cfg.MaxUploadBytes)
	if err != nil {
		return nil, run.fail(h.acquireError(err, KindFetchFailure, source, run.stage))
	}
	defer h.release(run, res)
	_ = remote.Close()
	metrics.RecordAudioBytes(sourceURL, res.Size())
	run.advance(StageResourceAcquired, zap.Int64("bytes", res.Size()), zap.String("content_type", remote.ContentType))

	result, err := h.transcribe(ctx, run, res, req)
	if err != nil {
		return nil, err
	}
	result.SourceURL = source
	return result, nil
}

func (h *Handler) prepare(opts Options) (Request, error) {
	req, err := opts.Normalize(h.cfg.DefaultModel)
	if err != nil {
		value := opts.Device
		if errors.Is(err, whisper.ErrUnknownModel) {
			value = opts.Model
		}
		return Request{}, &Error{Kind: KindInvalidRequest, Stage: StageReceived, Value: value, Err: err}
	}
	if req.Device != "" && h.devices != nil {
		if err := h.devices.Supports(req.Device); err != nil {
			return Request{}, &Error{Kind: KindInvalidRequest, Stage: StageReceived, Value: req.Device.String(), Err: err}
		}
	}
	return req, nil
}

// transcribe runs the steps after the audio is on disk. The caller owns res.
func (h *Handler) transcribe(ctx context.Context, run *requestRun, res *audio.Resource, req Request) (*Result, error) {
	if result, ok := h.silentResult(run, res, req); ok {
		return result, nil
	}

	lookup, err := h.models.GetOrLoad(ctx, req.Model, req.Device)
	if err != nil {
		return nil, run.fail(&Error{Kind: KindModelLoadFailure, Stage: run.stage, Value: lookup.Key.String(), Err: err})
	}
	run.logger = run.logger.With(zap.String("model", lookup.Key.Model), zap.String("device", lookup.Key.Device.String()))
	run.advance(StageModelAcquired, zap.Bool("cache_hit", lookup.Hit))

	transcript, err := h.engine.Transcribe(ctx, lookup.Model, whisper.TranscriptionRequest{
		AudioPath:      res.Path(),
		Language:       req.Language,
		WordTimestamps: req.WordTimestamps,
		Verbose:        req.Verbose,
	})
	if err != nil {
		return nil, run.fail(&Error{Kind: KindEngineFailure, Stage: run.stage, Value: lookup.Key.String(), Err: err})
	}
	if transcript == nil {
		transcript = &whisper.Transcript{}
	}
	run.advance(StageTranscribed, zap.Int("segments", len(transcript.Segments)))

	result := shapeResult(transcript, lookup.Key.Model, lookup.Key.Device.String(), run.requestID)
	run.succeed()
	return result, nil
}

// silentResult short-circuits WAV input that carries no signal.
func (h *Handler) silentResult(run *requestRun, res *audio.Resource, req Request) (*Result, bool) {
	if !h.cfg.SilenceGate || audio.Extension(res.Path()) != ".wav" {
		return nil, false
	}
	levels, err := h.probeWAV(res.Path())
	if err != nil {
		run.logger.Debug("silence probe skipped", zap.Error(err))
		return nil, false
	}
	if !levels.Silent(h.cfg.SilenceThresholdDBFS) {
		return nil, false
	}

	device := req.Device
	if h.devices != nil {
		device = h.devices.Resolve(device)
	}
	run.logger.Info("audio is silent; skipping transcription",
		zap.Float64("rms_dbfs", levels.RMSdBFS),
		zap.Float64("peak_dbfs", levels.PeakdBFS),
	)
	result := shapeResult(&whisper.Transcript{}, req.Model, device.String(), run.requestID)
	run.succeed()
	return result, true
}

func (h *Handler) acquireError(err error, sourceKind Kind, value string, stage Stage) error {
	var storageErr *audio.StorageError
	if errors.As(err, &storageErr) {
		return &Error{Kind: KindStorageFailure, Stage: stage, Value: value, Err: err}
	}
	return &Error{Kind: sourceKind, Stage: stage, Value: value, Err: err}
}

func (h *Handler) release(run *requestRun, res *audio.Resource) {
	if err := res.Release(); err != nil {
		run.logger.Warn("failed to release temporary audio", zap.String("path", res.Path()), zap.Error(err))
		return
	}
	run.logger.Debug("temporary audio released", zap.String("path", res.Path()))
}

// requestRun tracks one request through its stages.
type requestRun struct {
	source    string
	requestID string
	stage     Stage
	outcome   string
	started   time.Time
	logger    *zap.Logger
	done      func()
}

func (h *Handler) begin(ctx context.Context, source string, fields ...zap.Field) *requestRun {
	id := RequestID(ctx)
	logger := h.logger.With(zap.String("source", source))
	if id != "" {
		logger = logger.With(zap.String("request_id", id))
	}
	logger = logger.With(fields...)
	logger.Debug("transcription request received")

	return &requestRun{
		source:    source,
		requestID: id,
		stage:     StageReceived,
		outcome:   "aborted",
		started:   time.Now(),
		logger:    logger,
		done:      metrics.RequestStarted(),
	}
}

func (r *requestRun) advance(stage Stage, fields ...zap.Field) {
	r.stage = stage
	r.logger.Debug("stage reached", append([]zap.Field{zap.String("stage", string(stage))}, fields...)...)
}

func (r *requestRun) succeed() {
	r.advance(StageResponseShaped)
	r.outcome = "success"
	r.logger.Info("transcription completed", zap.Duration("elapsed", time.Since(r.started)))
}

func (r *requestRun) fail(err error) error {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		r.outcome = string(svcErr.Kind)
		r.logger.Warn("transcription failed",
			zap.String("kind", string(svcErr.Kind)),
			zap.String("stage", string(svcErr.Stage)),
			zap.Error(svcErr.Err),
		)
	}
	return err
}

func (r *requestRun) finish() {
	r.done()
	metrics.RecordTranscription(r.source, r.outcome, time.Since(r.started))
}
