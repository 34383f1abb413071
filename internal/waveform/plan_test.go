package waveform

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPlan(t *testing.T) {
	tests := []struct {
		name       string
		numSamples int
		duration   time.Duration
		fps        int
		frames     int
		spf        int
		halfWindow int
	}{
		{"two seconds at 24fps", 44100, 2 * time.Second, 24, 48, 918, 1000},
		{"two seconds at 30fps", 44100, 2 * time.Second, 30, 60, 735, 1000},
		{"fractional frames floor", 22050, 1500 * time.Millisecond, 30, 45, 490, 1000},
		{"short buffer shrinks window", 5000, time.Second, 30, 30, 166, 500},
		{"fewer samples than frames", 10, 2 * time.Second, 30, 60, 0, 1},
		{"no samples", 0, time.Second, 30, 30, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := NewPlan(tt.numSamples, tt.duration, tt.fps)
			require.NoError(t, err)
			assert.Equal(t, tt.frames, plan.TotalFrames)
			assert.Equal(t, tt.spf, plan.SamplesPerFrame)
			assert.Equal(t, tt.halfWindow, plan.HalfWindow)
		})
	}
}

func TestNewPlan_TooShort(t *testing.T) {
	_, err := NewPlan(100, 20*time.Millisecond, 30)
	assert.True(t, errors.Is(err, ErrTooShort))

	_, err = NewPlan(100, 0, 30)
	assert.True(t, errors.Is(err, ErrTooShort))
}

func TestNewPlan_InvalidFPS(t *testing.T) {
	_, err := NewPlan(100, time.Second, 0)
	assert.Error(t, err)
}

func TestPlan_Bounds(t *testing.T) {
	plan, err := NewPlan(44100, 2*time.Second, 24)
	require.NoError(t, err)

	start, end := plan.Bounds(0)
	assert.Equal(t, 0, start)
	assert.Equal(t, 1000, end)

	start, end = plan.Bounds(10)
	assert.Equal(t, 9180-1000, start)
	assert.Equal(t, 9180+1000, end)

	start, end = plan.Bounds(47)
	assert.Equal(t, 47*918-1000, start)
	assert.Equal(t, 44100, end)

	for i := range plan.TotalFrames {
		s, e := plan.Bounds(i)
		assert.GreaterOrEqual(t, s, 0)
		assert.LessOrEqual(t, e, plan.NumSamples)
		assert.LessOrEqual(t, s, e)
	}
}

func TestPlan_DegenerateBounds(t *testing.T) {
	plan, err := NewPlan(0, time.Second, 10)
	require.NoError(t, err)

	start, end := plan.Bounds(5)
	assert.Equal(t, 0, start)
	assert.Equal(t, 0, end)
}

func TestPlan_Progress(t *testing.T) {
	plan, err := NewPlan(1000, time.Second, 4)
	require.NoError(t, err)

	assert.InDelta(t, 0.0, plan.Progress(0), 1e-9)
	assert.InDelta(t, 50.0, plan.Progress(2), 1e-9)
	assert.InDelta(t, 75.0, plan.Progress(3), 1e-9)
}
