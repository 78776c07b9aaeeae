package audio

import "encoding/binary"

// MakePCM16WAV encodes samples as a canonical 16-bit PCM WAV file.
func MakePCM16WAV(samples []int16, sampleRate int, channels int) []byte {
	const bytesPerSample = 2
	dataSize := len(samples) * bytesPerSample

	out := make([]byte, 0, 44+dataSize)
	out = append(out, "RIFF"...)
	out = binary.LittleEndian.AppendUint32(out, uint32(36+dataSize))
	out = append(out, "WAVE"...)

	out = append(out, "fmt "...)
	out = binary.LittleEndian.AppendUint32(out, 16)
	out = binary.LittleEndian.AppendUint16(out, wavFormatPCM)
	out = binary.LittleEndian.AppendUint16(out, uint16(channels))
	out = binary.LittleEndian.AppendUint32(out, uint32(sampleRate))
	out = binary.LittleEndian.AppendUint32(out, uint32(sampleRate*channels*bytesPerSample))
	out = binary.LittleEndian.AppendUint16(out, uint16(channels*bytesPerSample))
	out = binary.LittleEndian.AppendUint16(out, 8*bytesPerSample)

	out = append(out, "data"...)
	out = binary.LittleEndian.AppendUint32(out, uint32(dataSize))
	for _, s := range samples {
		out = binary.LittleEndian.AppendUint16(out, uint16(s))
	}
	return out
}
