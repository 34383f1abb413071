package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/convertarr/internal/ffmpeg"
	"github.com/jmylchreest/convertarr/internal/http/handlers"
)

type fakeChecker struct {
	info  *ffmpeg.BinaryInfo
	err   error
	calls int
}

func (f *fakeChecker) Check(context.Context) (*ffmpeg.BinaryInfo, error) {
	f.calls++
	return f.info, f.err
}

func newTestAPI() (*chi.Mux, huma.API) {
	router := chi.NewRouter()
	api := humachi.New(router, huma.DefaultConfig("Test API", "1.0.0"))
	return router, api
}

func TestStatusHandler(t *testing.T) {
	t.Run("available", func(t *testing.T) {
		checker := &fakeChecker{info: &ffmpeg.BinaryInfo{Version: "6.1.1"}}
		router, api := newTestAPI()
		handlers.NewStatusHandler(checker).Register(api)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var body handlers.StatusBody
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.True(t, body.FFmpeg)
		assert.Equal(t, "6.1.1", body.FFmpegVersion)
	})

	t.Run("unavailable", func(t *testing.T) {
		checker := &fakeChecker{err: ffmpeg.ErrNotAvailable}
		router, api := newTestAPI()
		handlers.NewStatusHandler(checker).Register(api)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var body map[string]any
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, false, body["ffmpeg"])
	})

	t.Run("checks on every request", func(t *testing.T) {
		checker := &fakeChecker{err: errors.New("exec: not found")}
		router, api := newTestAPI()
		handlers.NewStatusHandler(checker).Register(api)

		for range 3 {
			router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/status", nil))
		}
		assert.Equal(t, 3, checker.calls)
	})
}
