package download

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fmueller/voxscribe/internal/version"
	"go.uber.org/zap"
)

const (
	DefaultFetchTimeout = 30 * time.Second
	maxRedirects        = 5
)

type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

type FetchOptions struct {
	// Timeout bounds connect, headers and body together.
	Timeout      time.Duration
	BlockPrivate bool
	Logger       *zap.Logger
}

// Fetcher retrieves remote audio for transcription.
type Fetcher struct {
	client *http.Client
	logger *zap.Logger
}

// Remote is an open response body. Callers must Close it.
type Remote struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
	URL           *url.URL
}

func (r *Remote) Close() error {
	if r == nil || r.Body == nil {
		return nil
	}
	return r.Body.Close()
}

func NewFetcher(opts FetchOptions) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultFetchTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	dialer := &net.Dialer{Timeout: opts.Timeout, KeepAlive: 30 * time.Second}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.BlockPrivate {
		dialer.Control = denyPrivateDial
		// A proxy would make the dial check see the proxy address instead of the target.
		transport.Proxy = nil
	}
	transport.DialContext = dialer.DialContext

	return &Fetcher{
		client: &http.Client{
			Timeout:       opts.Timeout,
			Transport:     transport,
			CheckRedirect: checkRedirect,
		},
		logger: opts.Logger,
	}
}

// NewFetcherWithClient is used when the caller owns transport policy.
func NewFetcherWithClient(client *http.Client, logger *zap.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: DefaultFetchTimeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{client: client, logger: logger}
}

func checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRedirects)
	}
	if _, err := ValidateURL(req.URL.String()); err != nil {
		return err
	}
	return nil
}

// Open issues a GET for rawURL and returns the streaming body on a 2xx response.
func (f *Fetcher) Open(ctx context.Context, rawURL string) (*Remote, error) {
	u, err := ValidateURL(rawURL)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set("Accept", "audio/*, application/octet-stream;q=0.8, */*;q=0.5")

	started := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", u.Redacted(), err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		_ = resp.Body.Close()
		return nil, &HTTPError{StatusCode: resp.StatusCode, URL: u.Redacted()}
	}

	contentType := strings.TrimSpace(resp.Header.Get("Content-Type"))
	f.logger.Debug("remote audio response",
		zap.String("url", u.Redacted()),
		zap.Int("status", resp.StatusCode),
		zap.String("content_type", contentType),
		zap.Int64("content_length", resp.ContentLength),
		zap.Duration("elapsed", time.Since(started)),
	)

	return &Remote{
		Body:          resp.Body,
		ContentType:   contentType,
		ContentLength: resp.ContentLength,
		URL:           resp.Request.URL,
	}, nil
}
