package waveform

import (
	"errors"
	"math"
	"time"
)

// ErrTooShort is returned when the audio is too short to yield a single frame.
var ErrTooShort = errors.New("audio too short to render")

// maxHalfWindow caps the number of samples shown either side of a frame's position.
const maxHalfWindow = 1000

// Plan maps output frames onto a PCM buffer.
type Plan struct {
	TotalFrames     int
	SamplesPerFrame int
	HalfWindow      int
	NumSamples      int
	FPS             int
}

// NewPlan computes frame count and window geometry:
//
//	total_frames      = floor(duration * fps)
//	samples_per_frame = floor(numSamples / total_frames)
//	half_window       = min(1000, floor(numSamples / 10))
//
// A plan with zero frames is rejected with ErrTooShort.
func NewPlan(numSamples int, duration time.Duration, fps int) (Plan, error) {
	if fps <= 0 {
		return Plan{}, errors.New("fps must be positive")
	}

	total := int(math.Floor(duration.Seconds() * float64(fps)))
	if total <= 0 {
		return Plan{}, ErrTooShort
	}

	return Plan{
		TotalFrames:     total,
		SamplesPerFrame: numSamples / total,
		HalfWindow:      min(maxHalfWindow, numSamples/10),
		NumSamples:      numSamples,
		FPS:             fps,
	}, nil
}

// Bounds returns the half-open sample range [start, end) shown by frame i.
// The range is clamped to the buffer and may be empty.
func (p Plan) Bounds(i int) (start, end int) {
	center := i * p.SamplesPerFrame
	start = max(0, center-p.HalfWindow)
	end = min(p.NumSamples, center+p.HalfWindow)
	if end < start {
		end = start
	}
	return start, end
}

// Progress returns frame i's position as a percentage of the whole.
func (p Plan) Progress(i int) float64 {
	return float64(i) / float64(p.TotalFrames) * 100
}
