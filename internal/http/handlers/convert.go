package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jmylchreest/convertarr/internal/config"
	"github.com/jmylchreest/convertarr/internal/convert"
)

// multipartMemory is the part of an upload held in memory; the rest spills
// to temporary files that are removed when the request ends.
const multipartMemory = 32 << 20

// uploadField is the multipart field carrying the file.
const uploadField = "file"

// Converter runs conversions for the upload routes.
type Converter interface {
	VideoToMP3(ctx context.Context, up convert.Upload) (*convert.Result, error)
	AudioToVideo(ctx context.Context, up convert.Upload, opts convert.Options) (*convert.Result, error)
}

// ConvertHandler serves the two upload routes.
type ConvertHandler struct {
	converter Converter
	maxUpload config.ByteSize
	logger    *slog.Logger

	uploadTimeout   time.Duration
	responseTimeout time.Duration
}

// NewConvertHandler creates a handler that rejects request bodies larger
// than maxUpload.
func NewConvertHandler(converter Converter, maxUpload config.ByteSize) *ConvertHandler {
	return &ConvertHandler{
		converter: converter,
		maxUpload: maxUpload,
		logger:    slog.Default(),
	}
}

// WithLogger sets the logger for the handler.
func (h *ConvertHandler) WithLogger(logger *slog.Logger) *ConvertHandler {
	h.logger = logger
	return h
}

// WithTimeouts extends the connection deadlines of upload requests: the body
// may take up to upload to arrive and the response is due response after
// that. Zero values keep the server-wide timeouts.
func (h *ConvertHandler) WithTimeouts(upload, response time.Duration) *ConvertHandler {
	h.uploadTimeout = upload
	h.responseTimeout = response
	return h
}

// RegisterRoutes registers the upload routes on a chi router. Multipart
// uploads are handled outside huma so the body can be streamed to disk.
func (h *ConvertHandler) RegisterRoutes(r chi.Router) {
	r.Post("/convert/video-to-mp3", h.VideoToMP3)
	r.Post("/convert/audio-to-video", h.AudioToVideo)
}

// VideoToMP3 handles POST /convert/video-to-mp3.
func (h *ConvertHandler) VideoToMP3(w http.ResponseWriter, r *http.Request) {
	up, ok := h.readUpload(w, r)
	if !ok {
		return
	}
	defer up.close()

	result, err := h.converter.VideoToMP3(r.Context(), up.Upload)
	h.respond(w, r, result, err)
}

// AudioToVideo handles POST /convert/audio-to-video. An optional "fps" form
// field selects the output frame rate.
func (h *ConvertHandler) AudioToVideo(w http.ResponseWriter, r *http.Request) {
	up, ok := h.readUpload(w, r)
	if !ok {
		return
	}
	defer up.close()

	var opts convert.Options
	if raw := r.FormValue("fps"); raw != "" {
		fps, err := strconv.Atoi(raw)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "Invalid fps: must be an integer")
			return
		}
		opts.FPS = fps
	}

	result, err := h.converter.AudioToVideo(r.Context(), up.Upload, opts)
	h.respond(w, r, result, err)
}

type formUpload struct {
	convert.Upload
	file multipart.File
	form *multipart.Form
}

func (u *formUpload) close() {
	if u.file != nil {
		_ = u.file.Close()
	}
	if u.form != nil {
		_ = u.form.RemoveAll()
	}
}

// extendDeadlines lifts the server read and write timeouts for this request.
func (h *ConvertHandler) extendDeadlines(w http.ResponseWriter, r *http.Request) {
	if h.uploadTimeout <= 0 {
		return
	}
	rc := http.NewResponseController(w)
	readBy := time.Now().Add(h.uploadTimeout)

	if err := rc.SetReadDeadline(readBy); err != nil {
		h.logger.WarnContext(r.Context(), "cannot extend upload read deadline", slog.String("error", err.Error()))
		return
	}
	if h.responseTimeout > 0 {
		if err := rc.SetWriteDeadline(readBy.Add(h.responseTimeout)); err != nil {
			h.logger.WarnContext(r.Context(), "cannot extend upload write deadline", slog.String("error", err.Error()))
		}
	}
}

// readUpload parses the multipart body and extracts the file field. It
// writes the error response itself and reports false when the request
// cannot proceed.
func (h *ConvertHandler) readUpload(w http.ResponseWriter, r *http.Request) (*formUpload, bool) {
	h.extendDeadlines(w, r)
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload.Int64())

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, h.tooLargeMessage())
			return nil, false
		}
		// Not multipart at all, or no parts: nothing was uploaded.
		writeJSONError(w, http.StatusBadRequest, convert.MsgNoFile)
		return nil, false
	}

	up := &formUpload{form: r.MultipartForm}
	file, header, err := r.FormFile(uploadField)
	if err != nil {
		up.close()
		// A file input submitted without a selection arrives as a plain
		// value because the part has no filename.
		if _, present := r.MultipartForm.Value[uploadField]; present {
			writeJSONError(w, http.StatusBadRequest, convert.MsgNoFileSelected)
			return nil, false
		}
		writeJSONError(w, http.StatusBadRequest, convert.MsgNoFile)
		return nil, false
	}

	up.file = file
	up.Upload = convert.Upload{Filename: header.Filename, Body: file}
	return up, true
}

func (h *ConvertHandler) tooLargeMessage() string {
	return fmt.Sprintf("File too large. Maximum: %s", h.maxUpload.Human())
}

func (h *ConvertHandler) respond(w http.ResponseWriter, r *http.Request, result *convert.Result, err error) {
	if err != nil {
		status := statusForKind(convert.KindOf(err))
		message := err.Error()
		if status == http.StatusRequestEntityTooLarge {
			message = h.tooLargeMessage()
		}
		if status >= http.StatusInternalServerError {
			h.logger.Error("conversion request failed",
				slog.String("path", r.URL.Path),
				slog.String("kind", convert.KindOf(err).String()),
				slog.String("error", err.Error()),
			)
		}
		writeJSONError(w, status, message)
		return
	}

	writeJSON(w, http.StatusOK, ConvertResponse{
		Success:  true,
		Filename: result.Filename,
		URL:      result.URL,
	})
}

func statusForKind(k convert.Kind) int {
	switch k {
	case convert.KindInvalidInput:
		return http.StatusBadRequest
	case convert.KindNotFound:
		return http.StatusNotFound
	case convert.KindOversize:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

func downloadURL(name string) string {
	return convert.DownloadPrefix + name
}
