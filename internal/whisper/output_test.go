package whisper

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleCLIOutput = `{
  "systeminfo": "AVX = 1",
  "params": {"model": "ggml-base.bin", "language": "auto", "translate": false},
  "result": {"language": "en"},
  "transcription": [
    {
      "timestamps": {"from": "00:00:00,000", "to": "00:00:02,500"},
      "offsets": {"from": 0, "to": 2500},
      "text": " Hello world.",
      "tokens": [
        {"text": "[_BEG_]", "offsets": {"from": 0, "to": 0}, "p": 0.99},
        {"text": " Hello", "offsets": {"from": 0, "to": 800}, "p": 0.9},
        {"text": " wor", "offsets": {"from": 900, "to": 1400}, "p": 0.8},
        {"text": "ld", "offsets": {"from": 1400, "to": 1800}, "p": 0.6},
        {"text": ".", "offsets": {"from": 1800, "to": 1900}, "p": 0.7},
        {"text": "[_TT_125]", "offsets": {"from": 2500, "to": 2500}, "p": 0.5}
      ]
    },
    {
      "timestamps": {"from": "00:00:02,500", "to": "00:00:04,000"},
      "offsets": {"from": 2500, "to": 4000},
      "text": " Bye",
      "tokens": []
    }
  ]
}`

func TestParseCLIOutputSegments(t *testing.T) {
	t.Parallel()

	transcript, err := parseCLIOutput(strings.NewReader(sampleCLIOutput), false)
	require.NoError(t, err)
	require.Equal(t, "en", transcript.Language)
	require.Len(t, transcript.Segments, 2)

	first := transcript.Segments[0]
	require.Equal(t, 0, first.ID)
	require.InDelta(t, 0.0, first.Start, 1e-9)
	require.InDelta(t, 2.5, first.End, 1e-9)
	require.Equal(t, "Hello world.", first.Text)
	require.InDelta(t, 0.75, first.Confidence, 1e-9)
	require.Nil(t, first.Words)

	require.Equal(t, 1, transcript.Segments[1].ID)
	require.Zero(t, transcript.Segments[1].Confidence)
	require.Equal(t, "Hello world. Bye", transcript.Text())
	require.InDelta(t, 4.0, transcript.Duration(), 1e-9)
}

func TestParseCLIOutputWords(t *testing.T) {
	t.Parallel()

	transcript, err := parseCLIOutput(strings.NewReader(sampleCLIOutput), true)
	require.NoError(t, err)

	words := transcript.Segments[0].Words
	require.Len(t, words, 2)
	require.Equal(t, "Hello", words[0].Text)
	require.InDelta(t, 0.0, words[0].Start, 1e-9)
	require.InDelta(t, 0.8, words[0].End, 1e-9)
	require.InDelta(t, 0.9, words[0].Confidence, 1e-9)

	require.Equal(t, "world.", words[1].Text)
	require.InDelta(t, 0.9, words[1].Start, 1e-9)
	require.InDelta(t, 1.9, words[1].End, 1e-9)
	require.InDelta(t, 0.7, words[1].Confidence, 1e-9)

	require.Empty(t, transcript.Segments[1].Words)
}

func TestParseCLIOutputEmptyTranscription(t *testing.T) {
	t.Parallel()

	transcript, err := parseCLIOutput(strings.NewReader(`{"result": {}, "transcription": []}`), true)
	require.NoError(t, err)
	require.Empty(t, transcript.Language)
	require.NotNil(t, transcript.Segments)
	require.Empty(t, transcript.Text())
	require.Zero(t, transcript.Duration())
}

func TestParseCLIOutputRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := parseCLIOutput(strings.NewReader("not json"), false)
	require.Error(t, err)
}
