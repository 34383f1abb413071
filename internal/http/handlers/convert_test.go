package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/convertarr/internal/config"
	"github.com/jmylchreest/convertarr/internal/convert"
	"github.com/jmylchreest/convertarr/internal/http/handlers"
)

type stubConverter struct {
	result *convert.Result
	err    error

	calls    int
	filename string
	body     []byte
	opts     convert.Options
}

func (s *stubConverter) VideoToMP3(_ context.Context, up convert.Upload) (*convert.Result, error) {
	return s.record(up, convert.Options{})
}

func (s *stubConverter) AudioToVideo(_ context.Context, up convert.Upload, opts convert.Options) (*convert.Result, error) {
	return s.record(up, opts)
}

func (s *stubConverter) record(up convert.Upload, opts convert.Options) (*convert.Result, error) {
	s.calls++
	s.filename = up.Filename
	s.opts = opts
	s.body, _ = io.ReadAll(up.Body)
	return s.result, s.err
}

func newConvertRouter(conv handlers.Converter, limit config.ByteSize) *chi.Mux {
	router := chi.NewRouter()
	handlers.NewConvertHandler(conv, limit).RegisterRoutes(router)
	return router
}

// multipartRequest builds a POST with one file part and optional fields.
func multipartRequest(t *testing.T, path, filename string, content []byte, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body handlers.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Error
}

func TestConvertHandler_Success(t *testing.T) {
	conv := &stubConverter{result: &convert.Result{
		Filename: "clip_20240102_150405.mp3",
		URL:      "/download/clip_20240102_150405.mp3",
	}}
	router := newConvertRouter(conv, config.ByteSize(1<<20))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartRequest(t, "/convert/video-to-mp3", "clip.mp4", []byte("video bytes"), nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body handlers.ConvertResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.True(t, body.Success)
	assert.Equal(t, "clip_20240102_150405.mp3", body.Filename)
	assert.Equal(t, "/download/clip_20240102_150405.mp3", body.URL)

	assert.Equal(t, 1, conv.calls)
	assert.Equal(t, "clip.mp4", conv.filename)
	assert.Equal(t, []byte("video bytes"), conv.body)
}

func TestConvertHandler_FPS(t *testing.T) {
	t.Run("passes fps through", func(t *testing.T) {
		conv := &stubConverter{result: &convert.Result{Filename: "a.mp4", URL: "/download/a.mp4"}}
		router := newConvertRouter(conv, config.ByteSize(1<<20))

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, multipartRequest(t, "/convert/audio-to-video", "a.wav", []byte("x"), map[string]string{"fps": "24"}))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 24, conv.opts.FPS)
	})

	t.Run("absent fps selects default", func(t *testing.T) {
		conv := &stubConverter{result: &convert.Result{Filename: "a.mp4", URL: "/download/a.mp4"}}
		router := newConvertRouter(conv, config.ByteSize(1<<20))

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, multipartRequest(t, "/convert/audio-to-video", "a.wav", []byte("x"), nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 0, conv.opts.FPS)
	})

	t.Run("non-integer fps is rejected", func(t *testing.T) {
		conv := &stubConverter{}
		router := newConvertRouter(conv, config.ByteSize(1<<20))

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, multipartRequest(t, "/convert/audio-to-video", "a.wav", []byte("x"), map[string]string{"fps": "fast"}))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decodeError(t, rec), "Invalid fps")
		assert.Zero(t, conv.calls)
	})
}

func TestConvertHandler_MissingFile(t *testing.T) {
	t.Run("not multipart", func(t *testing.T) {
		conv := &stubConverter{}
		router := newConvertRouter(conv, config.ByteSize(1<<20))

		req := httptest.NewRequest(http.MethodPost, "/convert/video-to-mp3", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, convert.MsgNoFile, decodeError(t, rec))
		assert.Zero(t, conv.calls)
	})

	t.Run("other field only", func(t *testing.T) {
		conv := &stubConverter{}
		router := newConvertRouter(conv, config.ByteSize(1<<20))

		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		require.NoError(t, mw.WriteField("fps", "30"))
		require.NoError(t, mw.Close())
		req := httptest.NewRequest(http.MethodPost, "/convert/audio-to-video", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, convert.MsgNoFile, decodeError(t, rec))
	})

	t.Run("empty filename", func(t *testing.T) {
		conv := &stubConverter{}
		router := newConvertRouter(conv, config.ByteSize(1<<20))

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, multipartRequest(t, "/convert/video-to-mp3", "", nil, nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, convert.MsgNoFileSelected, decodeError(t, rec))
		assert.Zero(t, conv.calls)
	})
}

func TestConvertHandler_TooLarge(t *testing.T) {
	conv := &stubConverter{}
	router := newConvertRouter(conv, config.ByteSize(1024))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartRequest(t, "/convert/video-to-mp3", "big.mp4", bytes.Repeat([]byte("x"), 8192), nil))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "File too large. Maximum: 1 KB", decodeError(t, rec))
	assert.Zero(t, conv.calls)
}

func TestConvertHandler_ErrorKinds(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantMessage string
	}{
		{
			name:        "invalid input",
			err:         convert.NewError(convert.KindInvalidInput, "Invalid file type. Allowed: mp4, avi, mov, mkv", nil),
			wantStatus:  http.StatusBadRequest,
			wantMessage: "Invalid file type. Allowed: mp4, avi, mov, mkv",
		},
		{
			name:        "ffmpeg missing",
			err:         convert.NewError(convert.KindDependencyUnavailable, convert.MsgFFmpegMissing, nil),
			wantStatus:  http.StatusInternalServerError,
			wantMessage: convert.MsgFFmpegMissing,
		},
		{
			name:        "conversion failed",
			err:         convert.NewError(convert.KindConversionFailed, "Conversion failed: moov atom not found", nil),
			wantStatus:  http.StatusInternalServerError,
			wantMessage: "Conversion failed: moov atom not found",
		},
		{
			name:        "oversize",
			err:         convert.NewError(convert.KindOversize, "", nil),
			wantStatus:  http.StatusRequestEntityTooLarge,
			wantMessage: "File too large. Maximum: 1 MB",
		},
		{
			name:        "unclassified",
			err:         errors.New("disk full"),
			wantStatus:  http.StatusInternalServerError,
			wantMessage: "disk full",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conv := &stubConverter{err: tt.err}
			router := newConvertRouter(conv, config.ByteSize(1<<20))

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, multipartRequest(t, "/convert/video-to-mp3", "clip.mp4", []byte("x"), nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantMessage, decodeError(t, rec))
		})
	}
}

// deadlineRecorder records the connection deadlines a handler sets through
// http.ResponseController.
type deadlineRecorder struct {
	*httptest.ResponseRecorder
	readDeadline  time.Time
	writeDeadline time.Time
}

func (d *deadlineRecorder) SetReadDeadline(t time.Time) error {
	d.readDeadline = t
	return nil
}

func (d *deadlineRecorder) SetWriteDeadline(t time.Time) error {
	d.writeDeadline = t
	return nil
}

func TestConvertHandler_ExtendsDeadlinesForUploads(t *testing.T) {
	for _, path := range []string{"/convert/video-to-mp3", "/convert/audio-to-video"} {
		t.Run(path, func(t *testing.T) {
			conv := &stubConverter{result: &convert.Result{Filename: "a.mp3", URL: "/download/a.mp3"}}
			router := chi.NewRouter()
			handlers.NewConvertHandler(conv, config.ByteSize(1<<20)).
				WithTimeouts(time.Hour, 15*time.Minute).
				RegisterRoutes(router)

			rec := &deadlineRecorder{ResponseRecorder: httptest.NewRecorder()}
			start := time.Now()
			router.ServeHTTP(rec, multipartRequest(t, path, "clip.mp4", []byte("bytes"), nil))

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.WithinDuration(t, start.Add(time.Hour), rec.readDeadline, 5*time.Second)
			assert.WithinDuration(t, start.Add(time.Hour+15*time.Minute), rec.writeDeadline, 5*time.Second)
		})
	}
}

func TestConvertHandler_NoTimeoutsKeepsServerDeadlines(t *testing.T) {
	conv := &stubConverter{result: &convert.Result{Filename: "a.mp3", URL: "/download/a.mp3"}}
	router := newConvertRouter(conv, config.ByteSize(1<<20))

	rec := &deadlineRecorder{ResponseRecorder: httptest.NewRecorder()}
	router.ServeHTTP(rec, multipartRequest(t, "/convert/video-to-mp3", "clip.mp4", []byte("bytes"), nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, rec.readDeadline.IsZero())
	assert.True(t, rec.writeDeadline.IsZero())
}
