package whisper

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// cliOutput mirrors the JSON written by whisper-cli with -oj / -ojf.
type cliOutput struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []cliSegment `json:"transcription"`
}

type cliSegment struct {
	Offsets cliOffsets `json:"offsets"`
	Text    string     `json:"text"`
	Tokens  []cliToken `json:"tokens"`
}

type cliOffsets struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

type cliToken struct {
	Text    string     `json:"text"`
	Offsets cliOffsets `json:"offsets"`
	P       float64    `json:"p"`
}

func parseCLIOutput(r io.Reader, withWords bool) (*Transcript, error) {
	var raw cliOutput
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode whisper json output: %w", err)
	}

	transcript := &Transcript{
		Language: strings.TrimSpace(raw.Result.Language),
		Segments: make([]Segment, 0, len(raw.Transcription)),
	}

	for i, seg := range raw.Transcription {
		segment := Segment{
			ID:    i,
			Start: millis(seg.Offsets.From),
			End:   millis(seg.Offsets.To),
			Text:  strings.TrimSpace(seg.Text),
		}

		tokens := textTokens(seg.Tokens)
		segment.Confidence = meanProbability(tokens)
		if withWords {
			segment.Words = groupWords(tokens)
		}

		transcript.Segments = append(transcript.Segments, segment)
	}

	return transcript, nil
}

// textTokens drops control tokens such as [_BEG_] and [_TT_150].
func textTokens(tokens []cliToken) []cliToken {
	out := make([]cliToken, 0, len(tokens))
	for _, token := range tokens {
		if token.Text == "" || strings.HasPrefix(token.Text, "[_") {
			continue
		}
		out = append(out, token)
	}
	return out
}

// groupWords merges subword tokens; a leading space starts a new word.
func groupWords(tokens []cliToken) []Word {
	var (
		words []Word
		probs []float64
	)

	flush := func() {
		if len(words) == 0 || len(probs) == 0 {
			return
		}
		last := &words[len(words)-1]
		last.Text = strings.TrimSpace(last.Text)
		last.Confidence = mean(probs)
		probs = probs[:0]
	}

	for _, token := range tokens {
		startsWord := len(words) == 0 || strings.HasPrefix(token.Text, " ")
		if startsWord {
			flush()
			words = append(words, Word{
				Text:  token.Text,
				Start: millis(token.Offsets.From),
				End:   millis(token.Offsets.To),
			})
		} else {
			last := &words[len(words)-1]
			last.Text += token.Text
			last.End = millis(token.Offsets.To)
		}
		probs = append(probs, token.P)
	}
	flush()

	out := words[:0]
	for _, word := range words {
		if word.Text != "" {
			out = append(out, word)
		}
	}
	return out
}

func meanProbability(tokens []cliToken) float64 {
	probs := make([]float64, 0, len(tokens))
	for _, token := range tokens {
		probs = append(probs, token.P)
	}
	return mean(probs)
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func millis(ms int64) float64 {
	return float64(ms) / 1000.0
}
