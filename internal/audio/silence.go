package audio

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

var (
	ErrUnsupportedWAV = errors.New("unsupported wav format")
	ErrInvalidWAV     = errors.New("invalid wav file")
)

const (
	wavFormatPCM   = 1
	wavFormatFloat = 3
)

// Levels summarizes the loudness of a PCM stream.
type Levels struct {
	RMSdBFS  float64
	PeakdBFS float64
	Samples  int64
}

// Silent reports whether the levels stay under thresholdDBFS. Peaks get 6 dB of headroom
// so isolated clicks do not count as speech.
func (l Levels) Silent(thresholdDBFS float64) bool {
	if l.Samples == 0 {
		return true
	}
	if math.IsInf(l.RMSdBFS, -1) && math.IsInf(l.PeakdBFS, -1) {
		return true
	}
	return l.RMSdBFS <= thresholdDBFS && l.PeakdBFS <= thresholdDBFS+6
}

type wavFormat struct {
	code          uint16
	bitsPerSample uint16
}

func (w wavFormat) validate() error {
	switch w.code {
	case wavFormatPCM:
		switch w.bitsPerSample {
		case 8, 16, 24, 32:
			return nil
		}
	case wavFormatFloat:
		switch w.bitsPerSample {
		case 32, 64:
			return nil
		}
	}
	return ErrUnsupportedWAV
}

// ProbeWAV streams the data chunk of a RIFF/WAVE file and measures its levels.
func ProbeWAV(path string) (Levels, error) {
	f, err := os.Open(path)
	if err != nil {
		return Levels{}, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, 64<<10)

	var header [12]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Levels{}, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
	}
	if string(header[:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return Levels{}, ErrInvalidWAV
	}

	var format *wavFormat
	for {
		var chunk [8]byte
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			return Levels{}, fmt.Errorf("%w: no data chunk", ErrInvalidWAV)
		}
		id := string(chunk[:4])
		size := int64(binary.LittleEndian.Uint32(chunk[4:8]))

		switch id {
		case "fmt ":
			if size < 16 {
				return Levels{}, ErrInvalidWAV
			}
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return Levels{}, fmt.Errorf("read wav fmt chunk: %w", err)
			}
			format = &wavFormat{
				code:          binary.LittleEndian.Uint16(body[0:2]),
				bitsPerSample: binary.LittleEndian.Uint16(body[14:16]),
			}
			if err := skipPadding(r, size); err != nil {
				return Levels{}, err
			}
		case "data":
			if format == nil {
				return Levels{}, fmt.Errorf("%w: data chunk before fmt chunk", ErrInvalidWAV)
			}
			if err := format.validate(); err != nil {
				return Levels{}, err
			}
			var data io.Reader = r
			if size != math.MaxUint32 {
				data = io.LimitReader(r, size)
			}
			return measure(data, *format)
		default:
			if _, err := r.Discard(int(size + size%2)); err != nil {
				return Levels{}, fmt.Errorf("skip wav chunk %q: %w", id, err)
			}
		}
	}
}

func skipPadding(r *bufio.Reader, size int64) error {
	if size%2 == 0 {
		return nil
	}
	if _, err := r.Discard(1); err != nil {
		return fmt.Errorf("skip wav padding: %w", err)
	}
	return nil
}

func measure(r io.Reader, format wavFormat) (Levels, error) {
	width := int(format.bitsPerSample / 8)
	buf := make([]byte, width*4096)

	var (
		peak       float64
		sumSquares float64
		samples    int64
	)

	for {
		n, err := io.ReadFull(r, buf)
		for i := 0; i+width <= n; i += width {
			v := decodeSample(buf[i:i+width], format)
			if abs := math.Abs(v); abs > peak {
				peak = abs
			}
			sumSquares += v * v
			samples++
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			return Levels{}, fmt.Errorf("read wav data: %w", err)
		}
	}

	if samples == 0 {
		return Levels{RMSdBFS: math.Inf(-1), PeakdBFS: math.Inf(-1)}, nil
	}
	return Levels{
		RMSdBFS:  toDBFS(math.Sqrt(sumSquares / float64(samples))),
		PeakdBFS: toDBFS(peak),
		Samples:  samples,
	}, nil
}

// decodeSample returns the sample scaled to [-1, 1].
func decodeSample(b []byte, format wavFormat) float64 {
	if format.code == wavFormatFloat {
		if format.bitsPerSample == 64 {
			return math.Float64frombits(binary.LittleEndian.Uint64(b))
		}
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	}

	switch format.bitsPerSample {
	case 8:
		return (float64(b[0]) - 128) / 128
	case 16:
		return float64(int16(binary.LittleEndian.Uint16(b))) / 32768
	case 24:
		v := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
		if v&0x800000 != 0 {
			v |= ^0xFFFFFF
		}
		return float64(v) / 8388608
	default:
		return float64(int32(binary.LittleEndian.Uint32(b))) / 2147483648
	}
}

func toDBFS(amplitude float64) float64 {
	if amplitude <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(amplitude)
}
