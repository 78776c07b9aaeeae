//go:build integration

package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestModelAndAudioFetchAgainstFixtureServer(t *testing.T) {
	weights := []byte("integration-weights")
	sum := sha256.Sum256(weights)
	sumHex := hex.EncodeToString(sum[:])

	target := filepath.Join(t.TempDir(), "ggml-tiny.bin")
	checksums := fmt.Sprintf("%s  %s\n", sumHex, filepath.Base(target))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ggml-tiny.bin":
			_, _ = w.Write(weights)
		case "/checksums.txt":
			_, _ = w.Write([]byte(checksums))
		case "/old/clip.wav":
			http.Redirect(w, r, "/clip.wav", http.StatusFound)
		case "/clip.wav":
			w.Header().Set("Content-Type", "audio/wav")
			_, _ = w.Write([]byte("RIFF-data"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	err := DownloadFile(context.Background(), Options{
		URL:         server.URL + "/ggml-tiny.bin",
		Destination: target,
		ChecksumURL: server.URL + "/checksums.txt",
		NoProgress:  true,
	})
	require.NoError(t, err)
	require.NoError(t, VerifyFileChecksum(target, sumHex))

	onDisk, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, weights, onDisk)

	remote, err := NewFetcher(FetchOptions{Timeout: 5 * time.Second}).Open(context.Background(), server.URL+"/old/clip.wav")
	require.NoError(t, err)
	defer remote.Close()

	body, err := io.ReadAll(remote.Body)
	require.NoError(t, err)
	require.Equal(t, "RIFF-data", string(body))
	require.Equal(t, "/clip.wav", remote.URL.Path)
}
