// Package audio validates synthesized MP3 segments and merges them into a
// single WAV file.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
)

const (
	// Decoded MP3 audio is always 16-bit little-endian stereo.
	channels       = 2
	bitDepth       = 16
	bytesPerFrame  = channels * bitDepth / 8
	wavFormatPCM   = 1
	readChunkBytes = 1152 * bytesPerFrame * 8
)

// Info describes decoded audio.
type Info struct {
	SampleRate int
	Frames     int64
	Size       int64
}

// Duration returns the playback length.
func (i Info) Duration() time.Duration {
	if i.SampleRate == 0 {
		return 0
	}
	return time.Duration(i.Frames) * time.Second / time.Duration(i.SampleRate)
}

// Validate checks that path holds more than minBytes and decodes completely
// as MP3 with at least one sample.
func Validate(path string, minBytes int64) (Info, error) {
	st, err := os.Stat(path)
	if err != nil {
		return Info{}, err
	}
	if st.Size() <= minBytes {
		return Info{}, fmt.Errorf("%w: %d bytes", ErrTooSmall, st.Size())
	}

	f, err := os.Open(path)
	if err != nil {
		return Info{}, err
	}
	defer f.Close()

	d, err := mp3.NewDecoder(f)
	if err != nil {
		return Info{}, fmt.Errorf("decode %s: %w", path, err)
	}

	n, err := io.Copy(io.Discard, d)
	if err != nil {
		return Info{}, fmt.Errorf("decode %s: %w", path, err)
	}
	if n < bytesPerFrame {
		return Info{}, ErrNoAudio
	}

	return Info{SampleRate: d.SampleRate(), Frames: n / bytesPerFrame, Size: st.Size()}, nil
}

// Concat decodes every MP3 in paths in order and writes their PCM as one WAV
// file at dst. All inputs must share a sample rate. dst is removed on error.
func Concat(dst string, paths ...string) (info Info, err error) {
	if len(paths) == 0 {
		return Info{}, ErrNoInput
	}

	out, err := os.Create(dst)
	if err != nil {
		return Info{}, fmt.Errorf("failed to create %s: %w", dst, err)
	}
	defer func() {
		if cerr := out.Close(); err == nil && cerr != nil {
			err = cerr
		}
		if err != nil {
			os.Remove(dst)
		}
	}()

	var enc *wav.Encoder
	for _, p := range paths {
		frames, werr := appendMP3(p, func(rate int) (*wav.Encoder, error) {
			if enc == nil {
				enc = wav.NewEncoder(out, rate, bitDepth, channels, wavFormatPCM)
				info.SampleRate = rate
			} else if rate != info.SampleRate {
				return nil, fmt.Errorf("%w: %s is %d Hz, want %d Hz", ErrSampleRateMismatch, p, rate, info.SampleRate)
			}
			return enc, nil
		})
		if werr != nil {
			return Info{}, werr
		}
		info.Frames += frames
	}

	if err := enc.Close(); err != nil {
		return Info{}, fmt.Errorf("close wav encoder: %w", err)
	}

	st, err := out.Stat()
	if err != nil {
		return Info{}, err
	}
	info.Size = st.Size()

	return info, nil
}

// appendMP3 decodes path and writes its samples to the encoder returned by
// encoderFor, which receives the stream's sample rate before any data.
func appendMP3(path string, encoderFor func(rate int) (*wav.Encoder, error)) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	d, err := mp3.NewDecoder(f)
	if err != nil {
		return 0, fmt.Errorf("decode %s: %w", path, err)
	}

	enc, err := encoderFor(d.SampleRate())
	if err != nil {
		return 0, err
	}

	buf := make([]byte, readChunkBytes)
	ibuf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: d.SampleRate()},
		SourceBitDepth: bitDepth,
	}

	var frames int64
	for {
		n, rerr := io.ReadFull(d, buf)
		n -= n % bytesPerFrame
		if n > 0 {
			ibuf.Data = pcmToInts(ibuf.Data[:0], buf[:n])
			if err := enc.Write(ibuf); err != nil {
				return 0, fmt.Errorf("write wav: %w", err)
			}
			frames += int64(n / bytesPerFrame)
		}
		if errors.Is(rerr, io.EOF) || errors.Is(rerr, io.ErrUnexpectedEOF) {
			break
		}
		if rerr != nil {
			return 0, fmt.Errorf("decode %s: %w", path, rerr)
		}
	}

	return frames, nil
}

func pcmToInts(dst []int, pcm []byte) []int {
	for i := 0; i+1 < len(pcm); i += 2 {
		dst = append(dst, int(int16(binary.LittleEndian.Uint16(pcm[i:]))))
	}
	return dst
}
