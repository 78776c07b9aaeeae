package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fmueller/voxscribe/internal/cli"
	"github.com/fmueller/voxscribe/internal/client"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := cli.NewRootCmd()
	if err := cmd.ExecuteContext(ctx); err != nil {
		reportError(os.Stderr, cmd, os.Args[1:], err)
		stop()
		os.Exit(1)
	}
}

func reportError(w io.Writer, root *cobra.Command, args []string, err error) {
	fmt.Fprintln(w, err)

	if client.IsKind(err, "model_load_failure") {
		fmt.Fprintln(w, "The server could not load the model; run 'voxscribe setup --model <name>' on the server host.")
	}
	if shouldPrintUsageHint(err) {
		fmt.Fprintf(w, "Run '%s --help' for usage.\n", helpHintTarget(root, args))
	}
}

func shouldPrintUsageHint(err error) bool {
	if err == nil {
		return false
	}

	message := strings.ToLower(strings.TrimSpace(err.Error()))
	patterns := []string{
		"unknown command",
		"unknown flag",
		"unknown shorthand flag",
		"accepts ",
		"requires at least",
		"requires at most",
		"invalid argument",
		"required flag",
	}

	for _, pattern := range patterns {
		if strings.Contains(message, pattern) {
			return true
		}
	}

	return false
}

func helpHintTarget(root *cobra.Command, args []string) string {
	if root == nil {
		return "voxscribe"
	}

	target := root.CommandPath()
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return target
	}

	if found, _, err := root.Find(args); err == nil && found != nil {
		return found.CommandPath()
	}

	return target
}
