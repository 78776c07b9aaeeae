package service

import (
	"strings"

	"github.com/fmueller/voxscribe/internal/whisper"
)

const unknownLanguage = "unknown"

// Result is the response for a completed transcription.
type Result struct {
	Text       string            `json:"text"`
	Language   string            `json:"language"`
	Segments   []whisper.Segment `json:"segments"`
	ModelUsed  string            `json:"model_used"`
	DeviceUsed string            `json:"device_used"`
	Filename   string            `json:"filename,omitempty"`
	SourceURL  string            `json:"source_url,omitempty"`
	Duration   float64           `json:"duration"`
	RequestID  string            `json:"request_id,omitempty"`
}

func shapeResult(transcript *whisper.Transcript, model, device, requestID string) *Result {
	if transcript == nil {
		transcript = &whisper.Transcript{}
	}
	result := &Result{
		Text:       transcript.Text(),
		Language:   unknownLanguage,
		Segments:   []whisper.Segment{},
		ModelUsed:  model,
		DeviceUsed: device,
		Duration:   transcript.Duration(),
		RequestID:  requestID,
	}
	if lang := strings.TrimSpace(transcript.Language); lang != "" {
		result.Language = lang
	}
	if len(transcript.Segments) > 0 {
		result.Segments = transcript.Segments
	}
	return result
}
