package ffmpeg

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jmylchreest/convertarr/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// skipIfNoFFmpeg skips the test if ffmpeg is not installed.
func skipIfNoFFmpeg(t *testing.T) string {
	t.Helper()
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		t.Skip("ffmpeg not installed")
	}
	return path
}

// fakeBinary writes a shell script standing in for ffmpeg.
func fakeBinary(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755))
	return path
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCommandBuilder_Build(t *testing.T) {
	cmd := NewCommandBuilder("ffmpeg").
		HideBanner().
		NoOverwrite().
		Input("in.mp4").
		AudioQuality(9).
		Output("out.mp3").
		Build()

	assert.Equal(t, []string{"-loglevel", "error", "-hide_banner", "-n", "-i", "in.mp4", "-q:a", "9", "out.mp3"}, cmd.Args)
	assert.Equal(t, "ffmpeg -loglevel error -hide_banner -n -i in.mp4 -q:a 9 out.mp3", cmd.String())
}

func TestCommandBuilder_MultipleInputs(t *testing.T) {
	cmd := NewCommandBuilder("ffmpeg").
		Overwrite().
		Input("frames/frame_%06d.png", "-framerate", "24").
		Input("song.mp3").
		VideoCodec("libx264").
		AudioCodec("aac").
		AudioBitrate("192k").
		PixelFormat("yuv420p").
		Shortest().
		Output("out.mp4").
		Build()

	assert.Equal(t, []string{
		"-loglevel", "error", "-y",
		"-framerate", "24", "-i", "frames/frame_%06d.png",
		"-i", "song.mp3",
		"-c:v", "libx264", "-c:a", "aac", "-b:a", "192k", "-pix_fmt", "yuv420p", "-shortest",
		"out.mp4",
	}, cmd.Args)
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		version string
		major   int
		minor   int
	}{
		{"release", "ffmpeg version 6.1.1 Copyright (c) 2000-2023\nbuilt with gcc 13\n", "6.1.1", 6, 1},
		{"git build", "ffmpeg version n7.0-2-gabc Copyright\n", "n7.0-2-gabc", 7, 0},
		{"distro", "ffmpeg version 4.4.2-0ubuntu0.22.04.1 Copyright\n", "4.4.2-0ubuntu0.22.04.1", 4, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := parseVersion(tt.output)
			require.NoError(t, err)
			assert.Equal(t, tt.version, info.Version)
			assert.Equal(t, tt.major, info.MajorVersion)
			assert.Equal(t, tt.minor, info.MinorVersion)
		})
	}

	_, err := parseVersion("not ffmpeg at all")
	assert.Error(t, err)
}

func TestLocator_Check(t *testing.T) {
	t.Run("fake binary", func(t *testing.T) {
		bin := fakeBinary(t, `echo "ffmpeg version 6.0 Copyright (c) the FFmpeg developers"`)

		info, err := NewLocator(bin, "").Check(context.Background())
		require.NoError(t, err)
		assert.Equal(t, bin, info.FFmpegPath)
		assert.Equal(t, "6.0", info.Version)
	})

	t.Run("failing binary", func(t *testing.T) {
		bin := fakeBinary(t, "exit 3")

		_, err := NewLocator(bin, "").Check(context.Background())
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNotAvailable))
	})

	t.Run("missing binary", func(t *testing.T) {
		_, err := NewLocator(filepath.Join(t.TempDir(), "nope"), "").Check(context.Background())
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNotAvailable))
	})

	t.Run("hung binary", func(t *testing.T) {
		bin := fakeBinary(t, `sleep 5; echo "ffmpeg version 6.0"`)

		start := time.Now()
		_, err := NewLocator(bin, "").WithTimeout(200 * time.Millisecond).Check(context.Background())
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNotAvailable))
		assert.True(t, errors.Is(err, context.DeadlineExceeded))
		assert.Less(t, time.Since(start), 3*time.Second)
	})

	t.Run("real ffmpeg", func(t *testing.T) {
		path := skipIfNoFFmpeg(t)
		info, err := NewLocator(path, "").Check(context.Background())
		require.NoError(t, err)
		assert.NotEmpty(t, info.Version)
	})
}

func TestCommand_Run(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		cmd := &Command{Binary: fakeBinary(t, "exit 0")}
		require.NoError(t, cmd.Run(context.Background()))
	})

	t.Run("exit error carries stderr", func(t *testing.T) {
		cmd := &Command{Binary: fakeBinary(t, `echo "in.mp4: Invalid data found when processing input" >&2; exit 1`)}

		err := cmd.Run(context.Background())
		var exitErr *ExitError
		require.True(t, errors.As(err, &exitErr))
		assert.Equal(t, 1, exitErr.ExitCode)
		assert.Equal(t, "in.mp4: Invalid data found when processing input", exitErr.Stderr)
		assert.Equal(t, exitErr.Stderr, err.Error())
	})

	t.Run("exit error without stderr", func(t *testing.T) {
		bin := fakeBinary(t, "exit 2")
		err := (&Command{Binary: bin}).Run(context.Background())
		assert.Contains(t, err.Error(), "exited with status 2")
	})

	t.Run("timeout", func(t *testing.T) {
		cmd := &Command{Binary: fakeBinary(t, "exec sleep 5")}
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		err := cmd.Run(ctx)
		assert.True(t, errors.Is(err, ErrTimeout))
	})

	t.Run("missing binary", func(t *testing.T) {
		err := (&Command{Binary: "/nonexistent/ffmpeg"}).Run(context.Background())
		assert.True(t, errors.Is(err, ErrNotAvailable))
	})
}

func TestToolchain_Invocations(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args")
	bin := fakeBinary(t, `echo "$@" >> `+argsFile)

	tc := NewToolchain(
		config.FFmpegConfig{BinaryPath: bin, Timeout: time.Minute},
		config.ConvertConfig{MP3Quality: 9, PCMSampleRate: 22050, VideoCodec: "libx264", AudioBitrate: "192k"},
		discardLogger(),
	)
	ctx := context.Background()

	require.NoError(t, tc.ExtractMP3(ctx, "in.mp4", "out.mp3"))
	require.NoError(t, tc.ExtractPCM(ctx, "in.mp3", "pcm.wav"))
	require.NoError(t, tc.MuxFrames(ctx, "frames/frame_%06d.png", 30, "in.mp3", "out.mp4"))

	data, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)

	assert.Equal(t, "-loglevel error -hide_banner -n -i in.mp4 -q:a 9 out.mp3", lines[0])
	assert.Equal(t, "-loglevel error -hide_banner -n -i in.mp3 -c:a pcm_s16le -ar 22050 -ac 1 pcm.wav", lines[1])
	assert.Equal(t, "-loglevel error -hide_banner -y -framerate 30 -i frames/frame_%06d.png -i in.mp3 "+
		"-c:v libx264 -c:a aac -b:a 192k -pix_fmt yuv420p -shortest out.mp4", lines[2])
}

func TestToolchain_Timeout(t *testing.T) {
	bin := fakeBinary(t, "exec sleep 5")
	tc := NewToolchain(config.FFmpegConfig{BinaryPath: bin, Timeout: 100 * time.Millisecond}, config.ConvertConfig{}, discardLogger())

	err := tc.ExtractMP3(context.Background(), "in.mp4", "out.mp3")
	assert.True(t, errors.Is(err, ErrTimeout))
}

func TestToolchain_CheckTimeout(t *testing.T) {
	bin := fakeBinary(t, `sleep 5; echo "ffmpeg version 6.0"`)
	tc := NewToolchain(config.FFmpegConfig{
		BinaryPath:   bin,
		Timeout:      200 * time.Millisecond,
		ProbeTimeout: 200 * time.Millisecond,
	}, config.ConvertConfig{}, discardLogger())

	start := time.Now()
	_, err := tc.Check(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotAvailable))
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestProbeResult_Duration(t *testing.T) {
	r := &ProbeResult{Format: ProbeFormat{Duration: "2.500000"}}
	d, err := r.Duration()
	require.NoError(t, err)
	assert.Equal(t, 2500*time.Millisecond, d)

	r = &ProbeResult{
		Format:  ProbeFormat{Duration: "N/A"},
		Streams: []ProbeStream{{CodecType: "audio", Duration: "1.0"}, {CodecType: "video", Duration: "3.0"}},
	}
	d, err = r.Duration()
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, d)
	assert.Equal(t, "audio", r.AudioStream().CodecType)

	_, err = (&ProbeResult{}).Duration()
	assert.Error(t, err)
}
