package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/convertarr/internal/models"
	"github.com/jmylchreest/convertarr/internal/progress"
)

// ProgressEventsPath is the SSE stream of conversion progress.
const ProgressEventsPath = "/api/v1/progress/events"

// ProgressHandler handles progress tracking and SSE endpoints.
type ProgressHandler struct {
	service           *progress.Service
	heartbeatInterval time.Duration
	logger            *slog.Logger
}

// NewProgressHandler creates a new progress handler.
func NewProgressHandler(service *progress.Service) *ProgressHandler {
	return &ProgressHandler{
		service:           service,
		heartbeatInterval: 30 * time.Second,
		logger:            slog.Default(),
	}
}

// WithLogger sets the logger for the handler.
func (h *ProgressHandler) WithLogger(logger *slog.Logger) *ProgressHandler {
	h.logger = logger
	return h
}

// SetHeartbeatInterval sets the SSE heartbeat interval (for testing).
func (h *ProgressHandler) SetHeartbeatInterval(interval time.Duration) {
	h.heartbeatInterval = interval
}

// ListOperationsInput is the input for listing operations.
type ListOperationsInput struct {
	Direction  string `query:"direction" enum:"video-to-mp3,audio-to-video" doc:"Filter by conversion direction"`
	ActiveOnly bool   `query:"active_only" doc:"Only return running conversions"`
}

// ListOperationsBody is the response body for listing operations.
type ListOperationsBody struct {
	Operations []*progress.Operation `json:"operations"`
}

// ListOperationsOutput is the output for listing operations.
type ListOperationsOutput struct {
	Body ListOperationsBody
}

// GetOperationInput is the input for getting a single operation.
type GetOperationInput struct {
	ID string `path:"id" doc:"Conversion ID (ULID)"`
}

// GetOperationOutput is the output for getting a single operation.
type GetOperationOutput struct {
	Body *progress.Operation
}

// Register registers the progress routes with the API.
func (h *ProgressHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listOperations",
		Method:      http.MethodGet,
		Path:        "/api/v1/progress/operations",
		Summary:     "List operations",
		Description: "Returns running and recently finished conversions",
		Tags:        []string{"Progress"},
	}, h.ListOperations)

	huma.Register(api, huma.Operation{
		OperationID: "getOperation",
		Method:      http.MethodGet,
		Path:        "/api/v1/progress/operations/{id}",
		Summary:     "Get operation",
		Description: "Returns progress for a single conversion",
		Tags:        []string{"Progress"},
	}, h.GetOperation)
}

// RegisterSSE registers the SSE endpoint on a chi router.
// Huma does not stream, so this route bypasses it.
func (h *ProgressHandler) RegisterSSE(router interface {
	Get(pattern string, handlerFn http.HandlerFunc)
}) {
	router.Get(ProgressEventsPath, h.HandleSSEEvents)
}

// ListOperations returns current and recent operations, oldest first.
func (h *ProgressHandler) ListOperations(_ context.Context, input *ListOperationsInput) (*ListOperationsOutput, error) {
	ops := h.service.List(&progress.Filter{
		Direction:  models.Direction(input.Direction),
		ActiveOnly: input.ActiveOnly,
	})
	return &ListOperationsOutput{Body: ListOperationsBody{Operations: ops}}, nil
}

// GetOperation returns a single operation.
func (h *ProgressHandler) GetOperation(_ context.Context, input *GetOperationInput) (*GetOperationOutput, error) {
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid operation ID", err)
	}
	op, err := h.service.Get(id)
	if err != nil {
		return nil, huma.Error404NotFound("operation not found")
	}
	return &GetOperationOutput{Body: op}, nil
}

// HandleSSEEvents streams progress events until the client disconnects.
// Terminal events are always delivered, so only the direction filter is
// honoured here.
func (h *ProgressHandler) HandleSSEEvents(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	filter := &progress.Filter{Direction: models.Direction(r.URL.Query().Get("direction"))}
	sub := h.service.Subscribe(filter)
	defer h.service.Unsubscribe(sub.ID)

	rc := http.NewResponseController(w)

	heartbeat := time.NewTicker(h.heartbeatInterval)
	defer heartbeat.Stop()

	ctx := r.Context()

	// Initial comment triggers onopen in browsers.
	fmt.Fprint(w, ":connected\n\n")
	if err := rc.Flush(); err != nil {
		h.logger.Error("failed to flush initial SSE connection", slog.String("error", err.Error()))
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ":heartbeat %d\n\n", time.Now().Unix())
			if err := rc.Flush(); err != nil {
				h.logger.Debug("heartbeat flush failed, client likely disconnected", slog.String("error", err.Error()))
				return
			}
		case event, ok := <-sub.Events:
			if !ok {
				return
			}
			if err := writeSSEEvent(w, event); err != nil {
				h.logger.Error("failed to write SSE event",
					slog.String("event_type", event.Type),
					slog.String("operation_id", event.Operation.ID.String()),
					slog.String("error", err.Error()),
				)
				return
			}
			if err := rc.Flush(); err != nil {
				h.logger.Debug("event flush failed, client likely disconnected", slog.String("error", err.Error()))
				return
			}
		}
	}
}

// writeSSEEvent writes one event as a single "event:/data:" frame.
func writeSSEEvent(w http.ResponseWriter, event *progress.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	message := []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, data))
	n, err := w.Write(message)
	if err != nil {
		return err
	}
	if n < len(message) {
		return fmt.Errorf("short write: wrote %d of %d bytes", n, len(message))
	}
	return nil
}
