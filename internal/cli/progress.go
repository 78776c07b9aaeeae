package cli

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
)

// spinner shows an indeterminate indicator while a server request is in
// flight. The bar animates itself; callers only start and stop it.
type spinner struct {
	bar  *progressbar.ProgressBar
	once sync.Once
}

// startSpinner draws to w. A nil w yields a spinner whose Stop does nothing.
func startSpinner(w io.Writer, label string) *spinner {
	if w == nil {
		return nil
	}

	return &spinner{bar: progressbar.NewOptions(
		-1,
		progressbar.OptionSetDescription(label),
		progressbar.OptionSetWriter(w),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionThrottle(80*time.Millisecond),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionClearOnFinish(),
	)}
}

// Stop halts the animation and clears the line. Safe to call more than once.
func (s *spinner) Stop() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		_ = s.bar.Finish()
	})
}

// progressWriter is where indicators draw, or nil when they are disabled.
func (a *appState) progressWriter() io.Writer {
	if !a.progressEnabled() {
		return nil
	}
	return os.Stderr
}
