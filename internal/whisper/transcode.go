package whisper

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// whisper-cli decodes these containers itself; everything else goes through ffmpeg.
var nativeFormats = map[string]bool{
	".wav":  true,
	".mp3":  true,
	".flac": true,
	".ogg":  true,
}

func needsTranscode(audioPath string) bool {
	return !nativeFormats[strings.ToLower(filepath.Ext(audioPath))]
}

// transcodeToWAV converts input into 16 kHz mono PCM, the format whisper expects.
func transcodeToWAV(ctx context.Context, ffmpeg, input, output string) error {
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	if _, err := exec.LookPath(ffmpeg); err != nil {
		return fmt.Errorf("ffmpeg is required to decode %s audio: %w", filepath.Ext(input), err)
	}

	cmd := exec.CommandContext(ctx, ffmpeg,
		"-hide_banner", "-loglevel", "error",
		"-y", "-i", input,
		"-ac", "1", "-ar", "16000",
		"-c:a", "pcm_s16le",
		"-f", "wav",
		output,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg transcode failed: %w (%s)", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
