package cli

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}

func TestSpinnerDrawsAndStops(t *testing.T) {
	t.Parallel()

	out := &lockedBuffer{}
	s := startSpinner(out, "Transcribing clip.wav")
	require.NotNil(t, s)
	require.Eventually(t, func() bool { return out.Len() > 0 }, 2*time.Second, 10*time.Millisecond)

	s.Stop()
	s.Stop()
	require.True(t, s.bar.IsFinished())
}

func TestSpinnerDisabledWithoutWriter(t *testing.T) {
	t.Parallel()

	s := startSpinner(nil, "testing")
	require.Nil(t, s)
	s.Stop()
}

func TestProgressWriterHonoursNoProgress(t *testing.T) {
	t.Parallel()

	app := &appState{noProgress: true}
	require.Nil(t, app.progressWriter())
}
