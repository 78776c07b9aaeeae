package audio

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProbeWAVDetectsSilence(t *testing.T) {
	t.Parallel()

	path := writeWAV(t, "silent.wav", MakePCM16WAV(make([]int16, 16000), 16000, 1))

	levels, err := ProbeWAV(path)
	require.NoError(t, err)
	require.True(t, levels.Silent(-65))
	require.True(t, math.IsInf(levels.RMSdBFS, -1))
	require.True(t, math.IsInf(levels.PeakdBFS, -1))
	require.EqualValues(t, 16000, levels.Samples)
}

func TestProbeWAVDetectsSpeechLikeSignal(t *testing.T) {
	t.Parallel()

	samples := make([]int16, 16000)
	for i := range samples {
		samples[i] = int16(0.25 * 32767 * math.Sin(2*math.Pi*440*float64(i)/16000.0))
	}
	path := writeWAV(t, "voice.wav", MakePCM16WAV(samples, 16000, 1))

	levels, err := ProbeWAV(path)
	require.NoError(t, err)
	require.False(t, levels.Silent(-65))
	require.Greater(t, levels.PeakdBFS, -20.0)
	require.Greater(t, levels.RMSdBFS, -20.0)
}

func TestProbeWAVSkipsUnknownChunks(t *testing.T) {
	t.Parallel()

	wav := MakePCM16WAV([]int16{1000, -1000, 1000, -1000}, 16000, 1)
	list := append([]byte("LIST"), 0x03, 0, 0, 0, 'a', 'b', 'c', 0)
	withList := append(append(append([]byte{}, wav[:12]...), list...), wav[12:]...)
	path := writeWAV(t, "list.wav", withList)

	levels, err := ProbeWAV(path)
	require.NoError(t, err)
	require.EqualValues(t, 4, levels.Samples)
}

func TestProbeWAVInvalidFile(t *testing.T) {
	t.Parallel()

	path := writeWAV(t, "not-wav.wav", []byte("hello"))

	_, err := ProbeWAV(path)
	require.ErrorIs(t, err, ErrInvalidWAV)
}

func TestProbeWAVUnsupportedEncoding(t *testing.T) {
	t.Parallel()

	wav := MakePCM16WAV([]int16{0, 0}, 16000, 1)
	binary.LittleEndian.PutUint16(wav[20:22], 2)
	path := writeWAV(t, "adpcm.wav", wav)

	_, err := ProbeWAV(path)
	require.ErrorIs(t, err, ErrUnsupportedWAV)
}

func TestLevelsSilentPeakHeadroom(t *testing.T) {
	t.Parallel()

	require.True(t, Levels{RMSdBFS: -70, PeakdBFS: -60, Samples: 10}.Silent(-65))
	require.False(t, Levels{RMSdBFS: -70, PeakdBFS: -50, Samples: 10}.Silent(-65))
	require.True(t, Levels{}.Silent(-65))
}

func writeWAV(t *testing.T, name string, data []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}
