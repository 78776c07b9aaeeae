package whisper

import (
	"context"
	"strings"
	"time"

	"github.com/fmueller/voxscribe/internal/platform"
)

// LoadedModel is a model prepared for a device. It is immutable once returned
// by Engine.Load and may be shared by concurrent transcriptions.
type LoadedModel struct {
	Name     string
	Path     string
	Device   platform.Device
	LoadedAt time.Time
}

type TranscriptionRequest struct {
	AudioPath      string
	Language       string
	WordTimestamps bool
	Verbose        bool
}

type Word struct {
	Text       string  `json:"word"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"probability"`
}

type Segment struct {
	ID         int     `json:"id"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence,omitempty"`
	Words      []Word  `json:"words,omitempty"`
}

type Transcript struct {
	Language string
	Segments []Segment
}

// Text joins segment texts into a single trimmed string.
func (t *Transcript) Text() string {
	if t == nil {
		return ""
	}
	parts := make([]string, 0, len(t.Segments))
	for _, segment := range t.Segments {
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// Duration is the end offset of the last segment in seconds.
func (t *Transcript) Duration() float64 {
	if t == nil || len(t.Segments) == 0 {
		return 0
	}
	return t.Segments[len(t.Segments)-1].End
}

type Loader interface {
	Load(ctx context.Context, model string, device platform.Device) (*LoadedModel, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, model *LoadedModel, req TranscriptionRequest) (*Transcript, error)
}

type Engine interface {
	Loader
	Transcriber
}
