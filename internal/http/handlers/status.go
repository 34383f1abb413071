package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/convertarr/internal/ffmpeg"
)

// ToolChecker reports whether ffmpeg can be run.
type ToolChecker interface {
	Check(ctx context.Context) (*ffmpeg.BinaryInfo, error)
}

// StatusHandler reports ffmpeg availability for the UI.
type StatusHandler struct {
	tools  ToolChecker
	logger *slog.Logger
}

// NewStatusHandler creates a status handler.
func NewStatusHandler(tools ToolChecker) *StatusHandler {
	return &StatusHandler{tools: tools, logger: slog.Default()}
}

// WithLogger sets the logger for the handler.
func (h *StatusHandler) WithLogger(logger *slog.Logger) *StatusHandler {
	h.logger = logger
	return h
}

// StatusInput is the input for the status endpoint.
type StatusInput struct{}

// StatusBody reports ffmpeg availability.
type StatusBody struct {
	FFmpeg        bool   `json:"ffmpeg" doc:"Whether ffmpeg can be executed"`
	FFmpegVersion string `json:"ffmpeg_version,omitempty" doc:"Version reported by ffmpeg -version"`
}

// StatusOutput is the output for the status endpoint.
type StatusOutput struct {
	Body StatusBody
}

// Register registers the status route with the API.
func (h *StatusHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getStatus",
		Method:      http.MethodGet,
		Path:        "/api/status",
		Summary:     "Tool status",
		Description: "Runs ffmpeg -version and reports whether conversions can run",
		Tags:        []string{"System"},
	}, h.GetStatus)
}

// GetStatus checks ffmpeg on every call; results are never cached.
func (h *StatusHandler) GetStatus(ctx context.Context, _ *StatusInput) (*StatusOutput, error) {
	info, err := h.tools.Check(ctx)
	if err != nil {
		h.logger.Debug("ffmpeg check failed", slog.String("error", err.Error()))
		return &StatusOutput{Body: StatusBody{FFmpeg: false}}, nil
	}
	return &StatusOutput{Body: StatusBody{FFmpeg: true, FFmpegVersion: info.Version}}, nil
}
