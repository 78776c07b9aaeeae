package service

import (
	"strings"

	"github.com/fmueller/voxscribe/internal/platform"
	"github.com/fmueller/voxscribe/internal/whisper"
)

// Options are the per-request knobs accepted from clients. Blank fields fall
// back to defaults: the configured model, auto-detected language and the
// selector's optimal device.
type Options struct {
	Model          string
	Language       string
	Device         string
	WordTimestamps bool
	Verbose        bool
}

// DefaultOptions returns the options used when a client sends none.
func DefaultOptions() Options {
	return Options{WordTimestamps: true}
}

// Request is a validated Options value.
type Request struct {
	Model          string
	Language       string
	Device         platform.Device
	WordTimestamps bool
	Verbose        bool
}

// Normalize validates the model and device names. defaultModel is used when
// Model is blank.
func (o Options) Normalize(defaultModel string) (Request, error) {
	model := strings.ToLower(strings.TrimSpace(o.Model))
	if model == "" {
		model = defaultModel
	}
	if model == "" {
		model = whisper.DefaultModel
	}
	if err := whisper.ValidateModelName(model); err != nil {
		return Request{}, err
	}

	device, err := platform.ParseDevice(o.Device)
	if err != nil {
		return Request{}, err
	}

	return Request{
		Model:          model,
		Language:       strings.ToLower(strings.TrimSpace(o.Language)),
		Device:         device,
		WordTimestamps: o.WordTimestamps,
		Verbose:        o.Verbose,
	}, nil
}
