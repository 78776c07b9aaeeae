package cli

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/fmueller/voxscribe/internal/service"
)

const blankAudioToken = "[BLANK_AUDIO]"

func isBlankTranscript(transcript string) bool {
	trimmed := strings.TrimSpace(transcript)
	if trimmed == "" {
		return true
	}

	return strings.EqualFold(trimmed, blankAudioToken)
}

func noSpeechHint() string {
	return "No speech detected. Check that the audio contains speech and is not muted, then try again."
}

func sanitizeLanguage(input string) string {
	trimmed := strings.TrimSpace(strings.ToLower(input))
	if trimmed == "" {
		return "auto"
	}
	return trimmed
}

// formatTimestamp renders seconds as mm:ss.mmm. Minutes are not wrapped into hours.
func formatTimestamp(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	ms := int64(math.Round(seconds * 1000))
	return fmt.Sprintf("%02d:%02d.%03d", ms/60000, (ms/1000)%60, ms%1000)
}

func renderResult(result *service.Result, asJSON bool) (string, error) {
	if asJSON {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return "", fmt.Errorf("encode result: %w", err)
		}
		return string(data) + "\n", nil
	}

	var b strings.Builder
	text := strings.TrimSpace(result.Text)
	if text == "" {
		text = blankAudioToken
	}
	fmt.Fprintln(&b, text)
	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "Language: %s\n", result.Language)
	fmt.Fprintf(&b, "Model:    %s (%s)\n", result.ModelUsed, result.DeviceUsed)
	fmt.Fprintf(&b, "Duration: %.2fs\n", result.Duration)

	if len(result.Segments) > 0 {
		fmt.Fprintln(&b)
		for _, segment := range result.Segments {
			fmt.Fprintf(&b, "[%s --> %s] %s\n", formatTimestamp(segment.Start), formatTimestamp(segment.End), strings.TrimSpace(segment.Text))
		}
	}
	return b.String(), nil
}
