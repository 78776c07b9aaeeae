package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fmueller/voxscribe/internal/service"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type transcribeCall func(ctx context.Context, c apiClient, opts service.Options) (*service.Result, error)

func newTranscribeCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transcribe <audio-file>",
		Short: "Transcribe an audio file on a running server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			audioPath := filepath.Clean(args[0])
			if _, err := os.Stat(audioPath); err != nil {
				return fmt.Errorf("audio file not found: %w", err)
			}

			return app.runTranscription(cmd, "Transcribing "+filepath.Base(audioPath),
				func(ctx context.Context, c apiClient, opts service.Options) (*service.Result, error) {
					return c.TranscribeFile(ctx, audioPath, opts)
				})
		},
	}

	bindTranscriptionFlags(cmd, app)
	return cmd
}

func newTranscribeURLCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transcribe-url <url>",
		Short: "Have a running server download and transcribe remote audio",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rawURL := args[0]
			return app.runTranscription(cmd, "Transcribing remote audio",
				func(ctx context.Context, c apiClient, opts service.Options) (*service.Result, error) {
					return c.TranscribeURL(ctx, rawURL, opts)
				})
		},
	}

	bindTranscriptionFlags(cmd, app)
	return cmd
}

func bindTranscriptionFlags(cmd *cobra.Command, app *appState) {
	bindLoggingFlags(cmd, app)
	bindProgressFlag(cmd, app)
	bindServerFlag(cmd, app)
	bindRequestFlags(cmd, app)
	bindOutputFlags(cmd, app)
}

func (a *appState) runTranscription(cmd *cobra.Command, description string, call transcribeCall) error {
	ctx, cancel := a.requestContext(cmd.Context())
	defer cancel()

	opts := a.requestOptions()
	a.log().Info("transcribing...",
		zap.String("server", a.serverURL),
		zap.String("model", opts.Model),
		zap.String("language", opts.Language),
		zap.String("device", opts.Device),
	)

	spin := startSpinner(a.progressWriter(), description)
	started := time.Now()
	result, err := call(ctx, a.client(), opts)
	spin.Stop()
	if err != nil {
		a.log().Warn("transcription failed", zap.Duration("elapsed", time.Since(started)), zap.Error(err))
		return err
	}
	a.log().Info("transcription finished",
		zap.Duration("elapsed", time.Since(started)),
		zap.String("request_id", result.RequestID),
		zap.String("model", result.ModelUsed),
		zap.String("device", result.DeviceUsed),
	)

	if isBlankTranscript(result.Text) {
		a.log().Warn(noSpeechHint())
	}

	return a.emitResult(cmd.OutOrStdout(), result)
}

func (a *appState) emitResult(stdout io.Writer, result *service.Result) error {
	rendered, err := renderResult(result, a.jsonOutput)
	if err != nil {
		return err
	}

	if a.outputPath == "" {
		_, err := io.WriteString(stdout, rendered)
		return err
	}

	if dir := filepath.Dir(a.outputPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	if err := os.WriteFile(a.outputPath, []byte(rendered), 0o644); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	fmt.Fprintf(stdout, "Transcript saved to %s\n", a.outputPath)
	return nil
}
