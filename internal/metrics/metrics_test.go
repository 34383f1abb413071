package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveConversion(t *testing.T) {
	m := New()

	m.ObserveConversion("video-to-mp3", true, 2*time.Second)
	m.ObserveConversion("video-to-mp3", false, time.Second)
	m.ObserveConversion("video-to-mp3", true, time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Conversions.WithLabelValues("video-to-mp3", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Conversions.WithLabelValues("video-to-mp3", OutcomeFailure)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.ConversionDuration))
}

func TestAddFrames(t *testing.T) {
	m := New()
	m.AddFrames(48)
	m.AddFrames(0)
	m.AddFrames(-3)

	assert.Equal(t, 48.0, testutil.ToFloat64(m.FramesRendered))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveConversion("audio-to-video", true, time.Second)
		m.AddFrames(10)
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveConversion("audio-to-video", true, time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `convertarr_conversions_total{direction="audio-to-video",outcome="success"} 1`)
	assert.Contains(t, body, "convertarr_frames_rendered_total 0")
	assert.Contains(t, body, "go_goroutines")
}
