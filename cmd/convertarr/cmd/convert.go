package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/jmylchreest/convertarr/internal/config"
	"github.com/jmylchreest/convertarr/internal/convert"
	"github.com/jmylchreest/convertarr/internal/ffmpeg"
	"github.com/jmylchreest/convertarr/internal/models"
	"github.com/jmylchreest/convertarr/internal/storage"
	"github.com/jmylchreest/convertarr/pkg/bytesize"
)

var convertFPS int

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert a local file without starting the server",
	Long: `Run a single conversion against local files using the same pipeline
as the HTTP endpoints. Uploaded files, frames and intermediates are kept in a
scratch directory that is removed when the command exits.`,
}

var convertVideoCmd = &cobra.Command{
	Use:   "video-to-mp3 INPUT OUTPUT",
	Short: "Extract the audio track of a video as MP3",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConvert(cmd, models.DirectionVideoToMP3, args[0], args[1])
	},
}

var convertAudioCmd = &cobra.Command{
	Use:   "audio-to-video INPUT OUTPUT",
	Short: "Render an audio file as a waveform video",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConvert(cmd, models.DirectionAudioToVideo, args[0], args[1])
	},
}

func init() {
	convertAudioCmd.Flags().IntVar(&convertFPS, "fps", 0, "output frame rate (0 uses convert.default_fps)")

	convertCmd.AddCommand(convertVideoCmd, convertAudioCmd)
	rootCmd.AddCommand(convertCmd)
}

func runConvert(cmd *cobra.Command, direction models.Direction, input, output string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	scratch, err := os.MkdirTemp("", "convertarr-cli-")
	if err != nil {
		return fmt.Errorf("creating scratch directory: %w", err)
	}
	defer os.RemoveAll(scratch)

	res, err := convertFile(cmd.Context(), cfg, scratch, direction, input, output)
	if err != nil {
		return err
	}

	printSummary(cmd.OutOrStdout(), res, output)
	return nil
}

// convertFile runs one conversion with storage rooted at scratch and copies
// the published artifact to output.
func convertFile(ctx context.Context, cfg *config.Config, scratch string, direction models.Direction, input, output string) (*convert.Result, error) {
	cfg.Storage.BaseDir = scratch

	layout, err := storage.NewLayout(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}

	logger := slog.Default()
	tools := ffmpeg.NewToolchain(cfg.FFmpeg, cfg.Convert, logger)
	converter := convert.NewConverter(cfg, layout, tools).WithLogger(logger)

	in, err := os.Open(input)
	if err != nil {
		return nil, fmt.Errorf("opening input: %w", err)
	}
	defer in.Close()

	up := convert.Upload{Filename: filepath.Base(input), Body: in}

	var res *convert.Result
	switch direction {
	case models.DirectionVideoToMP3:
		res, err = converter.VideoToMP3(ctx, up)
	default:
		res, err = converter.AudioToVideo(ctx, up, convert.Options{FPS: convertFPS})
	}
	if err != nil {
		return nil, err
	}

	if err := copyArtifact(layout, res.Filename, output); err != nil {
		return nil, err
	}
	return res, nil
}

func copyArtifact(layout *storage.Layout, name, output string) error {
	src, _, err := layout.OpenOutput(name)
	if err != nil {
		return fmt.Errorf("opening artifact: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("creating output: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("writing output: %w", err)
	}
	return dst.Close()
}

func printSummary(w io.Writer, res *convert.Result, output string) {
	p := message.NewPrinter(language.English)

	p.Fprintf(w, "Wrote %s (%s)\n", output, bytesize.Format(bytesize.Size(res.Size)))
	if res.Direction == models.DirectionAudioToVideo {
		p.Fprintf(w, "Rendered %d frames at %d fps from %v of audio\n",
			res.Frames, res.FPS, res.MediaDuration.Round(10*time.Millisecond))
	}
	p.Fprintf(w, "Finished in %v\n", res.Elapsed.Round(time.Millisecond))
}
