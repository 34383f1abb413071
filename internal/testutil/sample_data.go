// Package testutil provides test utilities including sample media generation.
package testutil

import (
	"fmt"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Sample upload stems. Deliberately includes characters that need sanitising.
var Stems = []string{
	"holiday clip",
	"Interview (final)",
	"band-practice",
	"voice_memo",
	"lecture#3",
}

// SampleDataGenerator produces pseudo-random upload fixtures.
type SampleDataGenerator struct {
	rng *rand.Rand
}

// NewSampleDataGenerator creates a generator seeded from the clock.
func NewSampleDataGenerator() *SampleDataGenerator {
	return NewSampleDataGeneratorWithSeed(time.Now().UnixNano())
}

// NewSampleDataGeneratorWithSeed creates a deterministic generator.
func NewSampleDataGeneratorWithSeed(seed int64) *SampleDataGenerator {
	return &SampleDataGenerator{rng: rand.New(rand.NewSource(seed))}
}

// RandomFilename returns a stem from Stems with the given extension.
func (g *SampleDataGenerator) RandomFilename(ext string) string {
	return fmt.Sprintf("%s.%s", Stems[g.rng.Intn(len(Stems))], ext)
}

// RandomNoise returns n samples of uniform 16-bit noise.
func (g *SampleDataGenerator) RandomNoise(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = g.rng.Intn(65536) - 32768
	}
	return out
}

// SineWave returns a 16-bit mono sine tone at freq Hz.
func SineWave(freq float64, d time.Duration, sampleRate int, amplitude float64) []int {
	n := int(d.Seconds() * float64(sampleRate))
	out := make([]int, n)
	for i := range out {
		out[i] = int(amplitude * 32767 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
	return out
}

// WriteWAV writes interleaved 16-bit PCM samples to path.
func WriteWAV(path string, samples []int, sampleRate, channels int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           samples,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		f.Close()
		return fmt.Errorf("writing wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("closing wav encoder: %w", err)
	}
	return f.Close()
}
