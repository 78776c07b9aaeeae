package cli

import (
	"fmt"
	"path/filepath"

	"github.com/fmueller/voxscribe/internal/download"
	"github.com/fmueller/voxscribe/internal/platform"
	"github.com/fmueller/voxscribe/internal/whisper"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newSetupCmd(app *appState) *cobra.Command {
	var (
		models []string
		all    bool
	)

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Download and verify speech model assets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			modelDir, err := platform.EnsureModelDir(app.modelDir)
			if err != nil {
				return err
			}

			names := models
			if all {
				names = whisper.ModelNames()
			}
			for _, name := range names {
				if err := app.setupModel(cmd, name, modelDir); err != nil {
					return err
				}
			}
			return nil
		},
	}

	bindLoggingFlags(cmd, app)
	bindProgressFlag(cmd, app)
	bindModelDirFlag(cmd, app)
	cmd.Flags().StringSliceVar(&models, "model", []string{whisper.DefaultModel}, "Models to install, e.g. tiny,base")
	cmd.Flags().BoolVar(&all, "all", false, "Install every supported model")
	return cmd
}

func (a *appState) setupModel(cmd *cobra.Command, name, modelDir string) error {
	resolved, err := whisper.ResolveModel(name, modelDir)
	if err != nil {
		return err
	}

	expectedChecksum := resolved.SHA256
	if expectedChecksum == "" && resolved.SHA256URL != "" {
		checksum, err := download.ResolveExpectedChecksum(cmd.Context(), resolved.SHA256URL, filepath.Base(resolved.Path), nil)
		if err != nil {
			return fmt.Errorf("resolve checksum for model %s: %w", resolved.Name, err)
		}
		expectedChecksum = checksum
	}

	if !resolved.NeedsDownload && expectedChecksum != "" {
		if err := download.VerifyFileChecksum(resolved.Path, expectedChecksum); err != nil {
			a.log().Warn("model checksum verification failed; downloading fresh copy", zap.String("model", resolved.Name), zap.Error(err))
			resolved.NeedsDownload = true
		}
	}

	if !resolved.NeedsDownload {
		a.log().Info("model already present", zap.String("model", resolved.Name), zap.String("path", resolved.Path))
		fmt.Fprintf(cmd.OutOrStdout(), "Model %s already present at %s\n", resolved.Name, resolved.Path)
		return nil
	}

	a.log().Info("downloading model", zap.String("model", resolved.Name), zap.String("path", resolved.Path))
	if err := a.download(cmd.Context(), download.Options{
		URL:            resolved.URL,
		Destination:    resolved.Path,
		ExpectedSHA256: expectedChecksum,
		ChecksumURL:    resolved.SHA256URL,
		NoProgress:     a.noProgress,
		Logger:         a.log(),
	}); err != nil {
		return fmt.Errorf("download model %s: %w", resolved.Name, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Model %s installed at %s\n", resolved.Name, resolved.Path)
	return nil
}
