// Package waveform renders decoded audio as a sequence of waveform frames.
package waveform

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/go-audio/wav"
)

// ErrInvalidWAV is returned when the PCM source is not a readable WAV file.
var ErrInvalidWAV = errors.New("invalid WAV file")

// PCM is a mono sample buffer with amplitudes in [-1, 1].
type PCM struct {
	Samples    []float64
	SampleRate int
}

// Duration returns the play time implied by the sample count.
func (p *PCM) Duration() time.Duration {
	if p.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(p.Samples)) / float64(p.SampleRate) * float64(time.Second))
}

// LoadPCMFile decodes the WAV file at path. See LoadPCM.
func LoadPCMFile(path string) (*PCM, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening pcm: %w", err)
	}
	defer f.Close()

	return LoadPCM(f)
}

// LoadPCM decodes an integer PCM WAV stream, downmixes it to mono by
// averaging channels and normalises it by its peak amplitude.
func LoadPCM(r io.ReadSeeker) (*PCM, error) {
	decoder := wav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return nil, ErrInvalidWAV
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("reading pcm buffer: %w", err)
	}
	if buf == nil {
		return nil, fmt.Errorf("%w: no pcm data", ErrInvalidWAV)
	}

	channels := int(decoder.NumChans)
	if channels < 1 {
		channels = 1
	}
	bitDepth := int(decoder.BitDepth)
	if bitDepth < 8 || bitDepth > 32 {
		return nil, fmt.Errorf("%w: unsupported bit depth %d", ErrInvalidWAV, bitDepth)
	}
	scale := 1.0 / float64(int64(1)<<(bitDepth-1))

	frames := len(buf.Data) / channels
	samples := make([]float64, frames)
	for i := range frames {
		var sum float64
		for c := range channels {
			sum += float64(buf.Data[i*channels+c])
		}
		samples[i] = sum / float64(channels) * scale
	}

	Normalize(samples)

	return &PCM{Samples: samples, SampleRate: int(decoder.SampleRate)}, nil
}

// Normalize scales samples in place so the peak magnitude is 1.
// Silence (all zero) is left untouched.
func Normalize(samples []float64) {
	var peak float64
	for _, s := range samples {
		peak = math.Max(peak, math.Abs(s))
	}
	if peak == 0 {
		return
	}
	for i := range samples {
		samples[i] /= peak
	}
}
