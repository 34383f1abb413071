package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrTimeout is returned when an invocation exceeds its deadline.
var ErrTimeout = errors.New("ffmpeg timed out")

// maxStderrLines bounds the diagnostic tail kept from a failed run.
const maxStderrLines = 100

// ExitError reports a non-zero exit from ffmpeg or ffprobe.
type ExitError struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	if e.Stderr != "" {
		return e.Stderr
	}
	return fmt.Sprintf("%s exited with status %d", e.Command, e.ExitCode)
}

type input struct {
	args []string
	path string
}

// CommandBuilder builds ffmpeg commands with a fluent API.
type CommandBuilder struct {
	binary     string
	logLevel   string
	globalArgs []string
	inputs     []input
	outputArgs []string
	output     string
}

// NewCommandBuilder creates a new ffmpeg command builder.
func NewCommandBuilder(ffmpegPath string) *CommandBuilder {
	return &CommandBuilder{
		binary:   ffmpegPath,
		logLevel: "error",
	}
}

// LogLevel sets the ffmpeg log level. "error" keeps stderr to diagnostics only.
func (b *CommandBuilder) LogLevel(level string) *CommandBuilder {
	b.logLevel = level
	return b
}

// HideBanner hides the ffmpeg banner.
func (b *CommandBuilder) HideBanner() *CommandBuilder {
	b.globalArgs = append(b.globalArgs, "-hide_banner")
	return b
}

// Overwrite replaces an existing output file (-y).
func (b *CommandBuilder) Overwrite() *CommandBuilder {
	b.globalArgs = append(b.globalArgs, "-y")
	return b
}

// NoOverwrite fails instead of replacing an existing output file (-n).
func (b *CommandBuilder) NoOverwrite() *CommandBuilder {
	b.globalArgs = append(b.globalArgs, "-n")
	return b
}

// Input adds an input with optional per-input options placed before -i.
func (b *CommandBuilder) Input(path string, args ...string) *CommandBuilder {
	b.inputs = append(b.inputs, input{args: args, path: path})
	return b
}

// VideoCodec sets the video codec.
func (b *CommandBuilder) VideoCodec(codec string) *CommandBuilder {
	return b.OutputArgs("-c:v", codec)
}

// AudioCodec sets the audio codec.
func (b *CommandBuilder) AudioCodec(codec string) *CommandBuilder {
	return b.OutputArgs("-c:a", codec)
}

// AudioBitrate sets the audio bitrate.
func (b *CommandBuilder) AudioBitrate(bitrate string) *CommandBuilder {
	return b.OutputArgs("-b:a", bitrate)
}

// AudioQuality sets the VBR quality scale (-q:a).
func (b *CommandBuilder) AudioQuality(q int) *CommandBuilder {
	return b.OutputArgs("-q:a", strconv.Itoa(q))
}

// AudioChannels sets the number of audio channels.
func (b *CommandBuilder) AudioChannels(channels int) *CommandBuilder {
	return b.OutputArgs("-ac", strconv.Itoa(channels))
}

// SampleRate sets the audio sample rate.
func (b *CommandBuilder) SampleRate(rate int) *CommandBuilder {
	return b.OutputArgs("-ar", strconv.Itoa(rate))
}

// PixelFormat sets the output pixel format.
func (b *CommandBuilder) PixelFormat(format string) *CommandBuilder {
	return b.OutputArgs("-pix_fmt", format)
}

// Shortest ends the output with the shortest input stream.
func (b *CommandBuilder) Shortest() *CommandBuilder {
	return b.OutputArgs("-shortest")
}

// OutputArgs adds output arguments.
func (b *CommandBuilder) OutputArgs(args ...string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, args...)
	return b
}

// Output sets the output path.
func (b *CommandBuilder) Output(output string) *CommandBuilder {
	b.output = output
	return b
}

// Build builds the command.
func (b *CommandBuilder) Build() *Command {
	args := []string{"-loglevel", b.logLevel}
	args = append(args, b.globalArgs...)
	for _, in := range b.inputs {
		args = append(args, in.args...)
		args = append(args, "-i", in.path)
	}
	args = append(args, b.outputArgs...)
	args = append(args, b.output)

	return &Command{
		Binary: b.binary,
		Args:   args,
		Output: b.output,
	}
}

// Command is a single ffmpeg (or ffprobe) invocation.
type Command struct {
	Binary string
	Args   []string
	Output string

	mu          sync.Mutex
	stderrLines []string
	elapsed     time.Duration
}

// String returns the command line.
func (c *Command) String() string {
	return c.Binary + " " + strings.Join(c.Args, " ")
}

// Run executes the command and waits for completion. A non-zero exit is
// reported as *ExitError carrying the tail of stderr. The command is killed
// when ctx is done.
func (c *Command) Run(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, c.Binary, c.Args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("creating stderr pipe: %w", err)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: starting %s: %w", ErrNotAvailable, c.Binary, err)
	}

	done := make(chan struct{})
	go c.captureStderr(stderr, done)
	<-done

	err = cmd.Wait()

	c.mu.Lock()
	c.elapsed = time.Since(start)
	c.mu.Unlock()

	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s: %s", ErrTimeout, c.Elapsed().Round(time.Millisecond), c.String())
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{
			Command:  c.Binary,
			ExitCode: exitErr.ExitCode(),
			Stderr:   strings.TrimSpace(strings.Join(c.StderrLines(), "\n")),
		}
	}
	return fmt.Errorf("running %s: %w", c.Binary, err)
}

// captureStderr keeps the most recent stderr lines in memory.
func (c *Command) captureStderr(stderr io.Reader, done chan struct{}) {
	defer close(done)

	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		c.mu.Lock()
		if len(c.stderrLines) >= maxStderrLines {
			c.stderrLines = c.stderrLines[1:]
		}
		c.stderrLines = append(c.stderrLines, scanner.Text())
		c.mu.Unlock()
	}
}

// StderrLines returns a copy of the captured stderr lines.
func (c *Command) StderrLines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	lines := make([]string, len(c.stderrLines))
	copy(lines, c.stderrLines)
	return lines
}

// Elapsed returns the wall time of the last run.
func (c *Command) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.elapsed
}
