package convert

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/convertarr/internal/ffmpeg"
	"github.com/jmylchreest/convertarr/internal/storage"
	tu "github.com/jmylchreest/convertarr/internal/testutil"
)

func skipIfNoFFmpeg(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping ffmpeg integration test in short mode")
	}
	for _, bin := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not installed", bin)
		}
	}
}

func newRealConverter(t *testing.T) (*Converter, *storage.Layout) {
	t.Helper()
	cfg := testConfig(t)
	cfg.Render.Width = 320
	cfg.Render.Height = 180

	layout, err := storage.NewLayout(cfg.Storage)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tools := ffmpeg.NewToolchain(cfg.FFmpeg, cfg.Convert, logger)
	return NewConverter(cfg, layout, tools).WithLogger(logger), layout
}

func TestIntegration_AudioToVideo(t *testing.T) {
	skipIfNoFFmpeg(t)
	conv, layout := newRealConverter(t)

	// A WAV with an .mp3 name; ffmpeg detects the container from content.
	src := filepath.Join(t.TempDir(), "tone.mp3")
	require.NoError(t, tu.WriteWAV(src, tu.SineWave(440, 2*time.Second, 44100, 0.8), 44100, 1))

	f, err := os.Open(src)
	require.NoError(t, err)
	defer f.Close()

	res, err := conv.AudioToVideo(context.Background(), Upload{Filename: "tone.mp3", Body: f}, Options{FPS: 24})
	require.NoError(t, err)
	assert.Equal(t, 48, res.Frames)
	assert.Empty(t, dirNames(t, layout.UploadDir()))

	probe, err := ffmpeg.NewProber("ffprobe").Probe(context.Background(), filepath.Join(layout.OutputDir(), res.Filename))
	require.NoError(t, err)
	d, err := probe.Duration()
	require.NoError(t, err)
	assert.InDelta(t, 2.0, d.Seconds(), 0.15)
}

func TestIntegration_CorruptVideo(t *testing.T) {
	skipIfNoFFmpeg(t)
	conv, layout := newRealConverter(t)

	_, err := conv.VideoToMP3(context.Background(), upload("broken.mp4", "this is not a video file"))
	require.Error(t, err)
	assert.Equal(t, KindConversionFailed, KindOf(err))
	assert.Contains(t, err.Error(), "Conversion failed: ")
	assert.Greater(t, len(err.Error()), len("Conversion failed: "), "stderr is surfaced")

	assert.Empty(t, dirNames(t, layout.OutputDir()))
	assert.Empty(t, dirNames(t, layout.UploadDir()))
}
