package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"sync/atomic"
)

var (
	ErrTooLarge = errors.New("audio payload exceeds size limit")
	ErrReleased = errors.New("temporary audio already released")
)

var extensionPattern = regexp.MustCompile(`^\.[a-z0-9]{1,8}$`)

// SourceError means the bytes could not be read from where they came from.
type SourceError struct {
	Err error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("read audio source: %v", e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// StorageError means local temporary storage failed.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s temporary audio file: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Resource is a temporary copy of request audio on local disk. The holder
// must call Release exactly once.
type Resource struct {
	path     string
	size     int64
	released atomic.Bool
}

// Acquire copies src into a new file in dir (the system temp dir when empty)
// named with ext. A limit above zero caps the number of bytes accepted.
// Nothing is left on disk when Acquire fails.
func Acquire(src io.Reader, ext, dir string, limit int64) (*Resource, error) {
	if !extensionPattern.MatchString(ext) {
		ext = FallbackExtension
	}

	f, err := os.CreateTemp(dir, "voxscribe-*"+ext)
	if err != nil {
		return nil, &StorageError{Op: "create", Err: err}
	}

	success := false
	defer func() {
		if !success {
			_ = f.Close()
			_ = os.Remove(f.Name())
		}
	}()

	tracked := &trackingReader{r: src}
	var reader io.Reader = tracked
	if limit > 0 {
		reader = io.LimitReader(tracked, limit+1)
	}

	n, err := io.Copy(f, reader)
	if err != nil {
		if tracked.err != nil {
			return nil, &SourceError{Err: tracked.err}
		}
		return nil, &StorageError{Op: "write", Err: err}
	}
	if limit > 0 && n > limit {
		return nil, &SourceError{Err: fmt.Errorf("%w (%d bytes)", ErrTooLarge, limit)}
	}

	if err := f.Sync(); err != nil {
		return nil, &StorageError{Op: "sync", Err: err}
	}
	if err := f.Close(); err != nil {
		return nil, &StorageError{Op: "close", Err: err}
	}

	success = true
	return &Resource{path: f.Name(), size: n}, nil
}

func (r *Resource) Path() string {
	return r.path
}

func (r *Resource) Size() int64 {
	return r.size
}

func (r *Resource) Released() bool {
	return r.released.Load()
}

// Release removes the file. Later calls return ErrReleased.
func (r *Resource) Release() error {
	if !r.released.CompareAndSwap(false, true) {
		return ErrReleased
	}
	if err := os.Remove(r.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &StorageError{Op: "remove", Err: err}
	}
	return nil
}

// trackingReader remembers read failures so they can be told apart from write failures.
type trackingReader struct {
	r   io.Reader
	err error
}

func (t *trackingReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		t.err = err
	}
	return n, err
}
