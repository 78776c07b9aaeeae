package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

const queryTimeout = 10 * time.Second

func newHealthCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Show health and device information of a running server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), queryTimeout)
			defer cancel()

			raw, err := app.client().Health(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, raw)
		},
	}

	bindLoggingFlags(cmd, app)
	bindServerFlag(cmd, app)
	return cmd
}

func newModelsCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List available and loaded models of a running server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), queryTimeout)
			defer cancel()

			raw, err := app.client().Models(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, raw)
		},
	}

	bindLoggingFlags(cmd, app)
	bindServerFlag(cmd, app)
	return cmd
}

func printJSON(cmd *cobra.Command, raw json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return fmt.Errorf("server returned invalid JSON: %w", err)
	}
	buf.WriteByte('\n')
	_, err := cmd.OutOrStdout().Write(buf.Bytes())
	return err
}
