package convert

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmylchreest/convertarr/internal/ffmpeg"
)

// Kind classifies conversion errors for the request boundary.
type Kind int

const (
	// KindInternal is any error not otherwise classified.
	KindInternal Kind = iota
	// KindInvalidInput is raised before any processing starts.
	KindInvalidInput
	// KindDependencyUnavailable means ffmpeg cannot be located or run.
	KindDependencyUnavailable
	// KindConversionFailed means ffmpeg or frame rendering failed.
	KindConversionFailed
	// KindNotFound means a requested artifact does not exist.
	KindNotFound
	// KindOversize means the upload exceeded the configured ceiling.
	KindOversize
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindDependencyUnavailable:
		return "dependency_unavailable"
	case KindConversionFailed:
		return "conversion_failed"
	case KindNotFound:
		return "not_found"
	case KindOversize:
		return "oversize"
	default:
		return "internal"
	}
}

// User-facing messages.
const (
	MsgNoFile          = "No file provided"
	MsgNoFileSelected  = "No file selected"
	MsgFFmpegMissing   = "FFmpeg not installed. Please install FFmpeg."
	MsgTooShort        = "audio too short to render"
	MsgFileNotFound    = "File not found"
	conversionFailedAs = "Conversion failed: "
)

// Error is a classified conversion error. Message is safe to show to
// clients; Err carries the underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error

	// Cleanup reports temporary artifact removal for failed conversions.
	Cleanup CleanupResult
}

// NewError creates a classified error.
func NewError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err, or KindInternal when err is not an *Error.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindInternal
}

func invalidInput(format string, args ...any) *Error {
	return NewError(KindInvalidInput, fmt.Sprintf(format, args...), nil)
}

// classify maps toolchain and rendering errors onto a Kind. Errors that are
// already classified pass through unchanged.
func classify(err error) *Error {
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}

	var exitErr *ffmpeg.ExitError
	switch {
	case errors.Is(err, ffmpeg.ErrNotAvailable):
		return NewError(KindDependencyUnavailable, MsgFFmpegMissing, err)
	case errors.As(err, &exitErr):
		return NewError(KindConversionFailed, conversionFailedAs+exitErr.Error(), err)
	case errors.Is(err, ffmpeg.ErrTimeout), errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return NewError(KindConversionFailed, conversionFailedAs+err.Error(), err)
	default:
		return NewError(KindInternal, err.Error(), err)
	}
}
