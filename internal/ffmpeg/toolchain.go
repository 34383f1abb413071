package ffmpeg

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jmylchreest/convertarr/internal/config"
	"github.com/jmylchreest/convertarr/internal/observability"
)

// Toolchain runs the fixed ffmpeg invocations used by conversions. Every
// invocation resolves the binary afresh and runs under the configured timeout.
type Toolchain struct {
	locator      *Locator
	timeout      time.Duration
	probeTimeout time.Duration
	mp3Quality   int
	sampleRate   int
	videoCodec   string
	audioBitrate string
	logger       *slog.Logger
}

// NewToolchain creates a toolchain from configuration.
func NewToolchain(ff config.FFmpegConfig, conv config.ConvertConfig, logger *slog.Logger) *Toolchain {
	return &Toolchain{
		locator:      NewLocator(ff.BinaryPath, ff.ProbePath).WithTimeout(ff.ProbeTimeout),
		timeout:      ff.Timeout,
		probeTimeout: ff.ProbeTimeout,
		mp3Quality:   conv.MP3Quality,
		sampleRate:   conv.PCMSampleRate,
		videoCodec:   conv.VideoCodec,
		audioBitrate: conv.AudioBitrate,
		logger:       observability.WithComponent(logger, "ffmpeg"),
	}
}

// Check reports whether ffmpeg is invocable.
func (t *Toolchain) Check(ctx context.Context) (*BinaryInfo, error) {
	return t.locator.Check(ctx)
}

// SampleRate is the rate PCM is extracted at.
func (t *Toolchain) SampleRate() int {
	return t.sampleRate
}

// ExtractMP3 transcodes the audio track of in to an MP3 at out.
// Equivalent to: ffmpeg -i in -q:a 9 -n out
func (t *Toolchain) ExtractMP3(ctx context.Context, in, out string) error {
	ffmpegPath, err := t.locator.FFmpeg()
	if err != nil {
		return err
	}
	cmd := NewCommandBuilder(ffmpegPath).
		HideBanner().
		NoOverwrite().
		Input(in).
		AudioQuality(t.mp3Quality).
		Output(out).
		Build()
	return t.run(ctx, cmd)
}

// ExtractPCM decodes in to mono 16-bit PCM WAV at out.
// Equivalent to: ffmpeg -i in -acodec pcm_s16le -ar 22050 -ac 1 -n out
func (t *Toolchain) ExtractPCM(ctx context.Context, in, out string) error {
	ffmpegPath, err := t.locator.FFmpeg()
	if err != nil {
		return err
	}
	cmd := NewCommandBuilder(ffmpegPath).
		HideBanner().
		NoOverwrite().
		Input(in).
		AudioCodec("pcm_s16le").
		SampleRate(t.sampleRate).
		AudioChannels(1).
		Output(out).
		Build()
	return t.run(ctx, cmd)
}

// MuxFrames assembles an image sequence at fps with the audio of audioPath.
// Equivalent to: ffmpeg -framerate F -i pattern -i audio -c:v libx264 -c:a aac
// -b:a 192k -pix_fmt yuv420p -shortest -y out
func (t *Toolchain) MuxFrames(ctx context.Context, framePattern string, fps int, audioPath, out string) error {
	ffmpegPath, err := t.locator.FFmpeg()
	if err != nil {
		return err
	}
	cmd := NewCommandBuilder(ffmpegPath).
		HideBanner().
		Overwrite().
		Input(framePattern, "-framerate", strconv.Itoa(fps)).
		Input(audioPath).
		VideoCodec(t.videoCodec).
		AudioCodec("aac").
		AudioBitrate(t.audioBitrate).
		PixelFormat("yuv420p").
		Shortest().
		Output(out).
		Build()
	return t.run(ctx, cmd)
}

// ProbeDuration returns the media duration of path using ffprobe.
func (t *Toolchain) ProbeDuration(ctx context.Context, path string) (time.Duration, error) {
	probePath, err := t.locator.FFprobe()
	if err != nil {
		return 0, err
	}
	result, err := NewProber(probePath).WithTimeout(t.probeTimeout).Probe(ctx, path)
	if err != nil {
		return 0, err
	}
	return result.Duration()
}

func (t *Toolchain) run(ctx context.Context, cmd *Command) error {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	t.logger.Log(ctx, observability.LevelTrace, "running ffmpeg", slog.String("command", cmd.String()))

	if err := cmd.Run(ctx); err != nil {
		t.logger.DebugContext(ctx, "ffmpeg failed",
			slog.String("command", cmd.String()),
			slog.Duration("elapsed", cmd.Elapsed()),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("ffmpeg %s: %w", cmd.Output, err)
	}

	t.logger.DebugContext(ctx, "ffmpeg completed",
		slog.String("output", cmd.Output),
		slog.Duration("elapsed", cmd.Elapsed()),
	)
	return nil
}
