package download

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestValidateURL(t *testing.T) {
	t.Parallel()

	u, err := ValidateURL("  https://example.com/a.mp3?x=1 ")
	require.NoError(t, err)
	require.Equal(t, "example.com", u.Hostname())

	for _, raw := range []string{"", "ftp://example.com/a.mp3", "file:///etc/passwd", "https://", "not a url", "://bad"} {
		_, err := ValidateURL(raw)
		require.ErrorIsf(t, err, ErrInvalidURL, "url %q", raw)
	}
}

func TestIsPrivateIP(t *testing.T) {
	t.Parallel()

	for _, ip := range []string{"127.0.0.1", "10.1.2.3", "172.16.0.1", "192.168.1.1", "169.254.169.254", "::1", "fd00::1", "::ffff:127.0.0.1"} {
		require.Truef(t, isPrivateIP(net.ParseIP(ip)), "ip %s", ip)
	}
	for _, ip := range []string{"8.8.8.8", "1.1.1.1", "2606:4700:4700::1111"} {
		require.Falsef(t, isPrivateIP(net.ParseIP(ip)), "ip %s", ip)
	}
}

func TestFetcherOpenStreamsBody(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3-audio"))
	}))
	defer server.Close()

	fetcher := NewFetcher(FetchOptions{Timeout: 5 * time.Second})
	remote, err := fetcher.Open(context.Background(), server.URL+"/talk.mp3")
	require.NoError(t, err)
	defer remote.Close()

	body, err := io.ReadAll(remote.Body)
	require.NoError(t, err)
	require.Equal(t, "ID3-audio", string(body))
	require.Equal(t, "audio/mpeg", remote.ContentType)
	require.Equal(t, "/talk.mp3", remote.URL.Path)
}

func TestFetcherOpenReportsHTTPStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer server.Close()

	_, err := NewFetcher(FetchOptions{}).Open(context.Background(), server.URL)
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, http.StatusGone, httpErr.StatusCode)
}

func TestFetcherBlocksPrivateAddresses(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request must not reach a private address")
	}))
	defer server.Close()

	_, err := NewFetcher(FetchOptions{BlockPrivate: true}).Open(context.Background(), server.URL)
	require.ErrorIs(t, err, ErrBlockedAddress)
}

func TestFetcherTimeoutCoversSlowServers(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	started := time.Now()
	_, err := NewFetcher(FetchOptions{Timeout: 100 * time.Millisecond}).Open(context.Background(), server.URL)
	require.Error(t, err)
	require.Less(t, time.Since(started), 5*time.Second)
}

func TestFetcherRejectsInvalidURL(t *testing.T) {
	t.Parallel()

	_, err := NewFetcher(FetchOptions{}).Open(context.Background(), "gopher://example.com")
	require.ErrorIs(t, err, ErrInvalidURL)
}
