package handlers_test

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/convertarr/internal/http/handlers"
	"github.com/jmylchreest/convertarr/internal/models"
	"github.com/jmylchreest/convertarr/internal/progress"
)

func newTestProgressHandler() (*handlers.ProgressHandler, *progress.Service) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := progress.NewService(logger)
	return handlers.NewProgressHandler(svc).WithLogger(logger), svc
}

func setupProgressRouter(handler *handlers.ProgressHandler) *chi.Mux {
	router, api := newTestAPI()
	handler.Register(api)
	handler.RegisterSSE(router)
	return router
}

func testStages() []progress.StageInfo {
	return []progress.StageInfo{
		{ID: "upload", Name: "Saving upload", Weight: 0.2},
		{ID: "extract", Name: "Encoding MP3", Weight: 0.8},
	}
}

func TestProgressHandler_ListOperations(t *testing.T) {
	handler, svc := newTestProgressHandler()
	router := setupProgressRouter(handler)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/progress/operations", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var empty handlers.ListOperationsBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&empty))
	assert.Empty(t, empty.Operations)

	svc.Begin(models.NewULID(), models.DirectionVideoToMP3, "clip.mp4", testStages())
	done := svc.Begin(models.NewULID(), models.DirectionAudioToVideo, "song.wav", testStages())
	done.Complete("done")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/progress/operations", nil))
	var all handlers.ListOperationsBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&all))
	assert.Len(t, all.Operations, 2)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/progress/operations?active_only=true", nil))
	var active handlers.ListOperationsBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&active))
	require.Len(t, active.Operations, 1)
	assert.Equal(t, "clip.mp4", active.Operations[0].Source)
}

func TestProgressHandler_GetOperation(t *testing.T) {
	handler, svc := newTestProgressHandler()
	router := setupProgressRouter(handler)

	id := models.NewULID()
	svc.Begin(id, models.DirectionVideoToMP3, "clip.mp4", testStages()).StartStage("extract")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/progress/operations/"+id.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var op progress.Operation
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&op))
	assert.Equal(t, id, op.ID)
	assert.Equal(t, progress.StateProcessing, op.State)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/progress/operations/"+models.NewULID().String(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProgressHandler_SSEHeartbeat(t *testing.T) {
	handler, _ := newTestProgressHandler()
	handler.SetHeartbeatInterval(50 * time.Millisecond)
	router := setupProgressRouter(handler)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, handlers.ProgressEventsPath, nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	var wg sync.WaitGroup
	wg.Go(func() {
		router.ServeHTTP(rec, req)
	})
	wg.Wait()

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, ":connected\n\n"))
	assert.Contains(t, body, ":heartbeat")
}

func TestProgressHandler_SSELifecycle(t *testing.T) {
	handler, svc := newTestProgressHandler()
	srv := httptest.NewServer(setupProgressRouter(handler))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+handlers.ProgressEventsPath+"?direction=audio-to-video", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, ":connected\n", line)

	// Filtered out by direction.
	svc.Begin(models.NewULID(), models.DirectionVideoToMP3, "clip.mp4", testStages()).Complete("done")

	id := models.NewULID()
	tracker := svc.Begin(id, models.DirectionAudioToVideo, "song.wav", testStages())
	tracker.StartStage("upload")
	tracker.Complete("Conversion complete")

	var types []string
	for {
		eventType, data := readSSEEvent(t, reader)
		var ev progress.Event
		require.NoError(t, json.Unmarshal([]byte(data), &ev))
		assert.Equal(t, id, ev.Operation.ID)
		types = append(types, eventType)
		if eventType == progress.EventTypeCompleted {
			assert.Equal(t, progress.StateCompleted, ev.Operation.State)
			assert.InDelta(t, 1.0, ev.Operation.Progress, 1e-9)
			break
		}
	}
	assert.Equal(t, progress.EventTypeProgress, types[0])
}

// readSSEEvent returns the next event name and data, skipping comments.
func readSSEEvent(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	var eventType, data string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimSuffix(line, "\n")
		switch {
		case line == "":
			if eventType != "" || data != "" {
				return eventType, data
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event: "):
			eventType = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
}
