// Package ffmpeg locates and drives the external ffmpeg and ffprobe tools.
package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jmylchreest/convertarr/internal/util"
)

// Environment variables consulted when no explicit binary path is configured.
const (
	FFmpegEnvVar  = "CONVERTARR_FFMPEG_BINARY"
	FFprobeEnvVar = "CONVERTARR_FFPROBE_BINARY"
)

// ErrNotAvailable is returned when ffmpeg cannot be located or started.
var ErrNotAvailable = errors.New("ffmpeg not available")

// DefaultCheckTimeout bounds "ffmpeg -version" when no timeout is configured.
const DefaultCheckTimeout = 10 * time.Second

// checkWaitDelay is how long Check waits for output pipes after killing ffmpeg.
const checkWaitDelay = 100 * time.Millisecond

var versionRegex = regexp.MustCompile(`^n?(\d+)\.(\d+)`)

// BinaryInfo describes the ffmpeg installation found by a Locator.
type BinaryInfo struct {
	FFmpegPath   string `json:"ffmpeg_path"`
	FFprobePath  string `json:"ffprobe_path,omitempty"`
	Version      string `json:"version"`
	MajorVersion int    `json:"major_version"`
	MinorVersion int    `json:"minor_version"`
	BuildInfo    string `json:"build_info,omitempty"`
}

// Locator finds the ffmpeg and ffprobe binaries. Results are never cached:
// every Check re-resolves paths and re-runs "ffmpeg -version".
type Locator struct {
	BinaryPath string
	ProbePath  string
	// Timeout bounds each "ffmpeg -version" run. Zero uses DefaultCheckTimeout.
	Timeout time.Duration
}

// NewLocator creates a locator. Empty paths mean auto-detect.
func NewLocator(binaryPath, probePath string) *Locator {
	return &Locator{BinaryPath: binaryPath, ProbePath: probePath}
}

// WithTimeout sets the version check timeout.
func (l *Locator) WithTimeout(timeout time.Duration) *Locator {
	l.Timeout = timeout
	return l
}

// FFmpeg resolves the ffmpeg binary.
// Search order: configured path -> CONVERTARR_FFMPEG_BINARY -> PATH.
func (l *Locator) FFmpeg() (string, error) {
	path, err := util.FindBinary("ffmpeg", l.BinaryPath, FFmpegEnvVar)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNotAvailable, err)
	}
	return path, nil
}

// FFprobe resolves the ffprobe binary. ffprobe is optional.
func (l *Locator) FFprobe() (string, error) {
	return util.FindBinary("ffprobe", l.ProbePath, FFprobeEnvVar)
}

// Check verifies that ffmpeg can be invoked and reports its version.
func (l *Locator) Check(ctx context.Context) (*BinaryInfo, error) {
	ffmpegPath, err := l.FFmpeg()
	if err != nil {
		return nil, err
	}

	timeout := l.Timeout
	if timeout <= 0 {
		timeout = DefaultCheckTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, ffmpegPath, "-version")
	cmd.WaitDelay = checkWaitDelay
	output, err := cmd.Output()
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %s -version did not finish within %s: %w", ErrNotAvailable, ffmpegPath, timeout, ctx.Err())
	}
	if err != nil {
		return nil, fmt.Errorf("%w: running %s -version: %w", ErrNotAvailable, ffmpegPath, err)
	}

	info, err := parseVersion(string(output))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotAvailable, err)
	}
	info.FFmpegPath = ffmpegPath
	if probePath, err := l.FFprobe(); err == nil {
		info.FFprobePath = probePath
	}
	return info, nil
}

// parseVersion extracts version details from "ffmpeg -version" output.
// Handles "ffmpeg version 6.0", "ffmpeg version n6.0-2-g..." and "ffmpeg version 6.0.1".
func parseVersion(output string) (*BinaryInfo, error) {
	info := &BinaryInfo{}
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "ffmpeg version"):
			parts := strings.Fields(line)
			if len(parts) < 3 {
				continue
			}
			info.Version = parts[2]
			if m := versionRegex.FindStringSubmatch(parts[2]); len(m) == 3 {
				info.MajorVersion, _ = strconv.Atoi(m[1])
				info.MinorVersion, _ = strconv.Atoi(m[2])
			}
		case strings.HasPrefix(line, "built with"):
			info.BuildInfo = strings.TrimPrefix(line, "built with ")
		}
	}

	if info.Version == "" {
		return nil, fmt.Errorf("failed to parse ffmpeg version")
	}
	return info, nil
}
