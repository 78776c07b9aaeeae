package audio

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSupportedFormats(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{".aac", ".flac", ".m4a", ".mp3", ".ogg", ".wav", ".wma"}, SupportedFormats())
}

func TestExtension(t *testing.T) {
	t.Parallel()

	require.Equal(t, ".mp3", Extension("Talk.MP3"))
	require.Equal(t, ".wav", Extension(`C:\Users\me\clip.WAV`))
	require.Equal(t, "", Extension("README"))
	require.True(t, IsSupportedExtension(".FLAC"))
	require.False(t, IsSupportedExtension(".txt"))
}

func TestExtensionForContentType(t *testing.T) {
	t.Parallel()

	ext, ok := ExtensionForContentType("audio/mpeg")
	require.True(t, ok)
	require.Equal(t, ".mp3", ext)

	ext, ok = ExtensionForContentType("Audio/X-WAV; charset=binary")
	require.True(t, ok)
	require.Equal(t, ".wav", ext)

	_, ok = ExtensionForContentType("text/html")
	require.False(t, ok)
}

func TestIsAudioContentType(t *testing.T) {
	t.Parallel()

	require.True(t, IsAudioContentType("audio/webm"))
	require.True(t, IsAudioContentType("application/ogg"))
	require.False(t, IsAudioContentType("text/html; charset=utf-8"))
	require.False(t, IsAudioContentType(""))
}
