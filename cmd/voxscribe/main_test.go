package main

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/fmueller/voxscribe/internal/cli"
	"github.com/fmueller/voxscribe/internal/client"
	"github.com/stretchr/testify/require"
)

func TestShouldPrintUsageHint(t *testing.T) {
	t.Parallel()

	require.True(t, shouldPrintUsageHint(errors.New("unknown command \"bad\" for \"voxscribe\"")))
	require.True(t, shouldPrintUsageHint(errors.New("unknown flag: --oops")))
	require.True(t, shouldPrintUsageHint(errors.New("accepts 1 arg(s), received 0")))
	require.True(t, shouldPrintUsageHint(errors.New(`invalid argument "x" for "--port" flag`)))
	require.False(t, shouldPrintUsageHint(errors.New("download model \"small\": context deadline exceeded")))
	require.False(t, shouldPrintUsageHint(nil))
}

func TestHelpHintTarget(t *testing.T) {
	t.Parallel()

	root := cli.NewRootCmd()
	require.Equal(t, "voxscribe", helpHintTarget(root, []string{"--badflag"}))
	require.Equal(t, "voxscribe", helpHintTarget(root, []string{"badcmd"}))
	require.Equal(t, "voxscribe transcribe", helpHintTarget(root, []string{"transcribe"}))
	require.Equal(t, "voxscribe serve", helpHintTarget(root, []string{"serve", "--port"}))
	require.Equal(t, "voxscribe", helpHintTarget(nil, nil))
}

func TestReportErrorSuggestsSetupForModelLoadFailure(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	err := fmt.Errorf("transcribe: %w", &client.APIError{StatusCode: 500, Kind: "model_load_failure", Detail: "model weights missing", RequestID: "req-9"})
	reportError(&out, cli.NewRootCmd(), []string{"transcribe"}, err)

	require.Contains(t, out.String(), "[request req-9]")
	require.Contains(t, out.String(), "voxscribe setup --model")
	require.NotContains(t, out.String(), "--help")
}

func TestReportErrorPlainFailure(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	err := &client.APIError{StatusCode: 502, Kind: "fetch_failure", Detail: "upstream returned 404"}
	reportError(&out, cli.NewRootCmd(), []string{"transcribe-url"}, err)
	require.Equal(t, "server returned 502 (fetch_failure): upstream returned 404\n", out.String())
}

func TestReportErrorPrintsUsageHint(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	reportError(&out, cli.NewRootCmd(), []string{"transcribe"}, errors.New("accepts 1 arg(s), received 0"))
	require.Contains(t, out.String(), "Run 'voxscribe transcribe --help' for usage.")
}
