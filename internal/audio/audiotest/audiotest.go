// Package audiotest builds small MP3 streams for tests.
package audiotest

import (
	"fmt"
	"os"
)

// SamplesPerFrame is the number of PCM frames one MPEG-1 Layer III frame
// decodes to.
const SamplesPerFrame = 1152

// SilentMP3 returns n MPEG-1 Layer III frames of silence at 128 kbit/s, mono,
// at sampleRate (32000, 44100 or 48000 Hz). Side information and main data
// are zero, which decoders treat as digital silence.
func SilentMP3(n int, sampleRate int) []byte {
	var rateIndex byte
	switch sampleRate {
	case 44100:
		rateIndex = 0
	case 48000:
		rateIndex = 1
	case 32000:
		rateIndex = 2
	default:
		panic(fmt.Sprintf("audiotest: unsupported sample rate %d", sampleRate))
	}

	const bitrateIndex = 9 // 128 kbit/s
	frameLen := 144 * 128000 / sampleRate
	header := []byte{
		0xFF,
		0xFB, // MPEG-1, Layer III, no CRC
		bitrateIndex<<4 | rateIndex<<2,
		0xC4, // mono, original
	}

	out := make([]byte, 0, n*frameLen)
	for range n {
		frame := make([]byte, frameLen)
		copy(frame, header)
		out = append(out, frame...)
	}
	return out
}

// WriteSilentMP3 writes SilentMP3(n, sampleRate) to path.
func WriteSilentMP3(path string, n int, sampleRate int) error {
	return os.WriteFile(path, SilentMP3(n, sampleRate), 0o644)
}
