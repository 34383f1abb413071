// Package convert orchestrates conversions: it validates uploads, drives
// the ffmpeg toolchain and the waveform renderer inside a per-request
// workspace, publishes the artifact and removes temporary files.
package convert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/jmylchreest/convertarr/internal/config"
	"github.com/jmylchreest/convertarr/internal/ffmpeg"
	"github.com/jmylchreest/convertarr/internal/metrics"
	"github.com/jmylchreest/convertarr/internal/models"
	"github.com/jmylchreest/convertarr/internal/observability"
	"github.com/jmylchreest/convertarr/internal/progress"
	"github.com/jmylchreest/convertarr/internal/storage"
	"github.com/jmylchreest/convertarr/internal/waveform"
)

// Stage IDs reported to the progress service.
const (
	StageUpload  = "upload"
	StageExtract = "extract"
	StageRender  = "render"
	StageMux     = "mux"
	StagePublish = "publish"
)

// DownloadPrefix is the URL path artifacts are served under.
const DownloadPrefix = "/download/"

// Toolchain is the set of ffmpeg invocations a conversion needs.
type Toolchain interface {
	Check(ctx context.Context) (*ffmpeg.BinaryInfo, error)
	ExtractMP3(ctx context.Context, in, out string) error
	ExtractPCM(ctx context.Context, in, out string) error
	MuxFrames(ctx context.Context, framePattern string, fps int, audioPath, out string) error
	ProbeDuration(ctx context.Context, path string) (time.Duration, error)
}

// Recorder persists conversion history.
type Recorder interface {
	Create(ctx context.Context, conversion *models.Conversion) error
}

// Upload is a client-supplied file.
type Upload struct {
	// Filename is the name as sent by the client, before sanitising.
	Filename string
	Body     io.Reader
}

// Options tune an audio to video conversion.
type Options struct {
	// FPS is the output frame rate. Zero selects the configured default.
	FPS int
}

// Result describes a successful conversion.
type Result struct {
	ID            models.ULID      `json:"id"`
	Direction     models.Direction `json:"direction"`
	Filename      string           `json:"filename"`
	URL           string           `json:"url"`
	Size          int64            `json:"size"`
	FPS           int              `json:"fps,omitempty"`
	Frames        int              `json:"frames,omitempty"`
	MediaDuration time.Duration    `json:"media_duration,omitempty"`
	Elapsed       time.Duration    `json:"elapsed"`
	Cleanup       CleanupResult    `json:"cleanup"`
}

// Converter runs conversions. It is safe for concurrent use.
type Converter struct {
	tools  Toolchain
	layout *storage.Layout

	video      Whitelist
	audio      Whitelist
	defaultFPS int
	maxFPS     int

	render config.RenderConfig
	style  waveform.Style

	recorder Recorder
	metrics  *metrics.Metrics
	progress *progress.Service
	logger   *slog.Logger
	now      func() time.Time
}

// NewConverter creates a converter from configuration.
func NewConverter(cfg *config.Config, layout *storage.Layout, tools Toolchain) *Converter {
	return &Converter{
		tools:      tools,
		layout:     layout,
		video:      NewWhitelist(cfg.Convert.VideoExtensions),
		audio:      NewWhitelist(cfg.Convert.AudioExtensions),
		defaultFPS: cfg.Convert.DefaultFPS,
		maxFPS:     cfg.Convert.MaxFPS,
		render:     cfg.Render,
		style:      waveform.DefaultStyle(),
		logger:     slog.Default(),
		now:        time.Now,
	}
}

// WithLogger sets the logger.
func (c *Converter) WithLogger(logger *slog.Logger) *Converter {
	c.logger = observability.WithComponent(logger, "convert")
	return c
}

// WithRecorder enables conversion history.
func (c *Converter) WithRecorder(r Recorder) *Converter {
	c.recorder = r
	return c
}

// WithMetrics enables Prometheus instrumentation.
func (c *Converter) WithMetrics(m *metrics.Metrics) *Converter {
	c.metrics = m
	return c
}

// WithProgressService enables live progress tracking.
func (c *Converter) WithProgressService(svc *progress.Service) *Converter {
	c.progress = svc
	return c
}

// WithClock overrides the time source used for output names.
func (c *Converter) WithClock(now func() time.Time) *Converter {
	c.now = now
	return c
}

// Whitelist returns the accepted extensions for a direction.
func (c *Converter) Whitelist(d models.Direction) Whitelist {
	if d == models.DirectionAudioToVideo {
		return c.audio
	}
	return c.video
}

// ResolveFPS applies the default to zero and bounds the frame rate.
func (c *Converter) ResolveFPS(fps int) (int, error) {
	if fps == 0 {
		return c.defaultFPS, nil
	}
	if fps < 1 || fps > c.maxFPS {
		return 0, invalidInput("Invalid fps: must be between 1 and %d", c.maxFPS)
	}
	return fps, nil
}

// VideoToMP3 extracts the audio track of a video upload as MP3.
func (c *Converter) VideoToMP3(ctx context.Context, up Upload) (*Result, error) {
	return c.run(ctx, models.DirectionVideoToMP3, up, 0)
}

// AudioToVideo renders a waveform video for an audio upload.
func (c *Converter) AudioToVideo(ctx context.Context, up Upload, opts Options) (*Result, error) {
	fps, err := c.ResolveFPS(opts.FPS)
	if err != nil {
		return nil, err
	}
	return c.run(ctx, models.DirectionAudioToVideo, up, fps)
}

// job is the state of one running conversion.
type job struct {
	direction models.Direction
	name      string
	stem      string
	fps       int
	ws        *storage.Workspace
	tracker   *progress.Tracker
	files     artifacts
	record    *models.Conversion
}

func (c *Converter) validate(d models.Direction, up Upload) error {
	if up.Body == nil {
		return invalidInput(MsgNoFile)
	}
	if up.Filename == "" {
		return invalidInput(MsgNoFileSelected)
	}
	wl := c.Whitelist(d)
	if !wl.Allows(up.Filename) {
		return invalidInput("Invalid file type. Allowed: %s", wl)
	}
	return nil
}

// uploadName sanitises the client file name, keeping its extension.
func uploadName(filename string) string {
	ext := storage.Ext(filename)
	name := storage.SanitizeFilename(filename)
	if storage.Stem(name) == "" || storage.Ext(name) != ext {
		name = "upload." + ext
	}
	return name
}

func stagesFor(d models.Direction) []progress.StageInfo {
	if d == models.DirectionAudioToVideo {
		return []progress.StageInfo{
			{ID: StageUpload, Name: "Saving upload", Weight: 0.05},
			{ID: StageExtract, Name: "Extracting audio", Weight: 0.1},
			{ID: StageRender, Name: "Rendering frames", Weight: 0.6},
			{ID: StageMux, Name: "Encoding video", Weight: 0.2},
			{ID: StagePublish, Name: "Publishing", Weight: 0.05},
		}
	}
	return []progress.StageInfo{
		{ID: StageUpload, Name: "Saving upload", Weight: 0.1},
		{ID: StageExtract, Name: "Encoding MP3", Weight: 0.8},
		{ID: StagePublish, Name: "Publishing", Weight: 0.1},
	}
}

func (c *Converter) run(ctx context.Context, d models.Direction, up Upload, fps int) (result *Result, err error) {
	if err := c.validate(d, up); err != nil {
		return nil, err
	}

	if _, err := c.tools.Check(ctx); err != nil {
		return nil, NewError(KindDependencyUnavailable, MsgFFmpegMissing, err)
	}

	name := uploadName(up.Filename)
	id := models.NewULID()
	logger := c.logger.With(
		slog.String("conversion_id", id.String()),
		slog.String("direction", string(d)),
		slog.String("source", name),
	)
	if reqID := observability.RequestIDFromContext(ctx); reqID != "" {
		logger = observability.WithRequestID(logger, reqID)
	}
	defer observability.TimedOperationWithError(ctx, logger, string(d), &err)()

	ws, err := c.layout.NewWorkspace()
	if err != nil {
		return nil, NewError(KindInternal, "", err)
	}

	started := c.now()
	j := &job{
		direction: d,
		name:      name,
		stem:      storage.Stem(name),
		fps:       fps,
		ws:        ws,
		tracker:   c.progress.Begin(id, d, name, stagesFor(d)),
		record: &models.Conversion{
			BaseModel:  models.BaseModel{ID: id},
			Direction:  d,
			SourceName: name,
		},
	}

	result, err = c.execute(ctx, j, up)
	elapsed := c.now().Sub(started)
	cleaned := cleanup(ws, j.files, logger)

	if err != nil {
		ce := classify(err)
		ce.Cleanup = cleaned
		c.finish(ctx, j, elapsed, ce, logger)
		return nil, ce
	}

	result.ID = id
	result.Elapsed = elapsed
	result.Cleanup = cleaned
	c.finish(ctx, j, elapsed, nil, logger)
	logger.Info("conversion succeeded",
		slog.String("output", result.Filename),
		slog.Int64("size", result.Size),
		slog.Duration("elapsed", elapsed),
	)
	return result, nil
}

// execute runs the direction-specific steps and publishes the artifact.
func (c *Converter) execute(ctx context.Context, j *job, up Upload) (*Result, error) {
	j.tracker.StartStage(StageUpload)
	path, size, err := j.ws.SaveUpload(j.name, up.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, NewError(KindOversize, "", err)
		}
		return nil, fmt.Errorf("saving upload: %w", err)
	}
	j.files.upload = path
	j.record.SourceSize = size

	var (
		out string
		ext string
		res = &Result{Direction: j.direction}
	)
	switch j.direction {
	case models.DirectionVideoToMP3:
		out, ext, err = c.videoToMP3(ctx, j)
	case models.DirectionAudioToVideo:
		out, ext, err = c.audioToVideo(ctx, j, res)
	default:
		err = fmt.Errorf("unknown direction %q", j.direction)
	}
	if err != nil {
		return nil, err
	}

	j.tracker.StartStage(StagePublish)
	filename, err := c.layout.PublishOutput(out, j.stem, ext, c.now())
	if err != nil {
		return nil, err
	}

	res.Filename = filename
	res.URL = DownloadPrefix + filename
	if f, info, err := c.layout.OpenOutput(filename); err == nil {
		res.Size = info.Size()
		_ = f.Close()
	}

	j.record.OutputName = filename
	j.record.OutputSize = res.Size
	return res, nil
}

func (c *Converter) videoToMP3(ctx context.Context, j *job) (string, string, error) {
	out := j.ws.Path("output.mp3")
	j.tracker.StartStage(StageExtract)
	if err := c.tools.ExtractMP3(ctx, j.files.upload, out); err != nil {
		return "", "", err
	}
	return out, "mp3", nil
}

func (c *Converter) audioToVideo(ctx context.Context, j *job, res *Result) (string, string, error) {
	j.tracker.StartStage(StageExtract)
	in := j.files.upload

	duration, probeErr := c.tools.ProbeDuration(ctx, in)

	j.files.pcm = j.ws.Path("audio.wav")
	if err := c.tools.ExtractPCM(ctx, in, j.files.pcm); err != nil {
		return "", "", err
	}

	pcm, err := waveform.LoadPCMFile(j.files.pcm)
	if err != nil {
		return "", "", NewError(KindConversionFailed, conversionFailedAs+err.Error(), err)
	}
	if probeErr != nil || duration <= 0 {
		c.logger.DebugContext(ctx, "using decoded sample count for duration", slog.Any("probe_error", probeErr))
		duration = pcm.Duration()
	}

	plan, err := waveform.NewPlan(len(pcm.Samples), duration, j.fps)
	if err != nil {
		if errors.Is(err, waveform.ErrTooShort) {
			return "", "", NewError(KindInvalidInput, MsgTooShort, err)
		}
		return "", "", err
	}

	framesDir, err := j.ws.MkdirAll("frames")
	if err != nil {
		return "", "", err
	}
	j.files.frames = framesDir

	j.tracker.StartStage(StageRender)
	var rendered atomic.Int64
	seq := &waveform.Sequence{
		Renderer: waveform.NewRenderer(c.render.Width, c.render.Height, c.style),
		Workers:  c.render.Workers,
		OnFrame: func() {
			j.tracker.SetItemProgress(StageRender, int(rendered.Add(1)), plan.TotalFrames)
		},
	}
	written, err := seq.Write(ctx, framesDir, pcm.Samples, plan)
	c.metrics.AddFrames(written)
	if err != nil {
		return "", "", fmt.Errorf("rendering frames: %w", err)
	}

	j.tracker.StartStage(StageMux)
	out := j.ws.Path("output.mp4")
	pattern := filepath.Join(framesDir, waveform.FramePattern)
	if err := c.tools.MuxFrames(ctx, pattern, j.fps, in, out); err != nil {
		return "", "", err
	}

	res.FPS = j.fps
	res.Frames = written
	res.MediaDuration = duration
	j.record.FPS = j.fps
	j.record.Frames = written
	j.record.MediaDuration = duration
	return out, "mp4", nil
}

// finish records history, metrics and progress for a terminal conversion.
func (c *Converter) finish(ctx context.Context, j *job, elapsed time.Duration, ce *Error, logger *slog.Logger) {
	rec := j.record
	rec.Elapsed = elapsed
	rec.CompletedAt = c.now()
	rec.Status = models.ConversionStatusSucceeded
	if ce != nil {
		rec.Status = models.ConversionStatusFailed
		rec.OutputName = ""
		rec.ErrorKind = ce.Kind.String()
		rec.Error = ce.Error()
		j.tracker.Fail(ce)
	} else {
		j.tracker.Complete("Conversion complete")
	}

	c.metrics.ObserveConversion(string(j.direction), ce == nil, elapsed)

	if c.recorder == nil {
		return
	}
	// The request may already be cancelled; history is still written.
	if err := c.recorder.Create(context.WithoutCancel(ctx), rec); err != nil {
		logger.Warn("recording conversion failed", slog.String("error", err.Error()))
	}
}
