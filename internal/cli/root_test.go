package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRootCommandRegistersCoreSubcommands(t *testing.T) {
	t.Parallel()

	cmd := NewRootCmd()

	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"serve", "health", "models", "transcribe", "transcribe-url", "setup", "devices", "version"} {
		require.Truef(t, names[want], "missing subcommand %s", want)
	}

	transcribe, _, err := cmd.Find([]string{"transcribe"})
	require.NoError(t, err)
	for _, flag := range []string{"model", "language", "device", "no-word-timestamps", "json", "output", "server", "timeout", "log-json"} {
		require.NotNilf(t, transcribe.Flags().Lookup(flag), "transcribe is missing --%s", flag)
	}
	require.Equal(t, "auto", transcribe.Flags().Lookup("language").DefValue)
	require.Equal(t, "false", transcribe.Flags().Lookup("no-word-timestamps").DefValue)

	serve, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)
	require.Equal(t, "8000", serve.Flags().Lookup("port").DefValue)
	require.Equal(t, "0.0.0.0", serve.Flags().Lookup("host").DefValue)
	require.NotNil(t, serve.Flags().Lookup("preload"))

	setup, _, err := cmd.Find([]string{"setup"})
	require.NoError(t, err)
	require.Equal(t, "[base]", setup.Flags().Lookup("model").DefValue)
}

func TestRootHelpParsesSuccessfully(t *testing.T) {
	t.Parallel()

	cmd := NewRootCmd()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs([]string{"--help"})

	err := cmd.Execute()
	require.NoError(t, err)
	require.Contains(t, out.String(), "serve")
	require.Contains(t, out.String(), "transcribe")
	require.Contains(t, out.String(), "setup")
	require.Contains(t, out.String(), "devices")
}

func TestSubcommandHelpParsesSuccessfully(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		args     []string
		contains string
	}{
		{name: "serve", args: []string{"serve", "--help"}, contains: "Run the transcription HTTP server"},
		{name: "transcribe", args: []string{"transcribe", "--help"}, contains: "Transcribe an audio file"},
		{name: "transcribe-url", args: []string{"transcribe-url", "--help"}, contains: "download and transcribe remote audio"},
		{name: "devices", args: []string{"devices", "--help"}, contains: "Show compute devices"},
		{name: "setup", args: []string{"setup", "--help"}, contains: "Download and verify speech model assets"},
		{name: "models", args: []string{"models", "--help"}, contains: "List available and loaded models"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cmd := NewRootCmd()
			out := new(bytes.Buffer)
			cmd.SetOut(out)
			cmd.SetErr(out)
			cmd.SetArgs(tt.args)

			err := cmd.Execute()
			require.NoError(t, err)
			require.Contains(t, out.String(), tt.contains)
		})
	}
}
