package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/fmueller/voxscribe/internal/service"
	"github.com/fmueller/voxscribe/internal/whisper"
)

func runCommand(t *testing.T, args []string) (stdout string, stderr string, err error) {
	t.Helper()

	cmd := NewRootCmd()
	outBuf := new(bytes.Buffer)
	errBuf := new(bytes.Buffer)

	cmd.SetOut(outBuf)
	cmd.SetErr(errBuf)
	cmd.SetArgs(args)

	err = cmd.Execute()
	return outBuf.String(), errBuf.String(), err
}

// fakeClient records calls made by the remote commands.
type fakeClient struct {
	mu     sync.Mutex
	result *service.Result
	err    error
	health json.RawMessage
	models json.RawMessage

	gotPath string
	gotURL  string
	gotOpts service.Options
}

func (f *fakeClient) Health(context.Context) (json.RawMessage, error) {
	return f.health, f.err
}

func (f *fakeClient) Models(context.Context) (json.RawMessage, error) {
	return f.models, f.err
}

func (f *fakeClient) TranscribeFile(_ context.Context, path string, opts service.Options) (*service.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotPath, f.gotOpts = path, opts
	return f.result, f.err
}

func (f *fakeClient) TranscribeURL(_ context.Context, rawURL string, opts service.Options) (*service.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotURL, f.gotOpts = rawURL, opts
	return f.result, f.err
}

func sampleResult() *service.Result {
	return &service.Result{
		Text:     "hello world",
		Language: "en",
		Segments: []whisper.Segment{
			{ID: 0, Start: 0, End: 1.25, Text: "hello world"},
		},
		ModelUsed:  "base",
		DeviceUsed: "cpu",
		Filename:   "clip.wav",
		Duration:   1.25,
		RequestID:  "req-1",
	}
}
