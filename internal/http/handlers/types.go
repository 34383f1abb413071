// Package handlers provides HTTP API handlers for convertarr.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/jmylchreest/convertarr/internal/models"
)

// ErrorResponse is the body of every non-2xx response on the upload and
// download routes.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ConvertResponse is the body of a successful conversion.
type ConvertResponse struct {
	Success  bool   `json:"success"`
	Filename string `json:"filename"`
	URL      string `json:"url"`
}

// Pagination contains pagination parameters for list requests.
type Pagination struct {
	Page  int `query:"page" default:"1" minimum:"1" doc:"Page number (1-indexed)"`
	Limit int `query:"limit" default:"50" minimum:"1" maximum:"500" doc:"Items per page"`
}

// Offset returns the number of items to skip.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.Limit
}

// PaginationMeta contains pagination metadata in responses.
type PaginationMeta struct {
	CurrentPage int   `json:"current_page"`
	PageSize    int   `json:"page_size"`
	TotalItems  int64 `json:"total_items"`
	TotalPages  int64 `json:"total_pages"`
}

// NewPaginationMeta computes metadata for a page of total items.
func NewPaginationMeta(p Pagination, total int64) PaginationMeta {
	pages := int64(0)
	if p.Limit > 0 {
		pages = (total + int64(p.Limit) - 1) / int64(p.Limit)
	}
	return PaginationMeta{
		CurrentPage: p.Page,
		PageSize:    p.Limit,
		TotalItems:  total,
		TotalPages:  pages,
	}
}

// ConversionResponse represents a conversion history record.
type ConversionResponse struct {
	ID            models.ULID             `json:"id"`
	Direction     models.Direction        `json:"direction"`
	Status        models.ConversionStatus `json:"status"`
	SourceName    string                  `json:"source_name"`
	SourceSize    int64                   `json:"source_size"`
	OutputName    string                  `json:"output_name,omitempty"`
	OutputSize    int64                   `json:"output_size,omitempty"`
	URL           string                  `json:"url,omitempty"`
	ErrorKind     string                  `json:"error_kind,omitempty"`
	Error         string                  `json:"error,omitempty"`
	FPS           int                     `json:"fps,omitempty"`
	Frames        int                     `json:"frames,omitempty"`
	MediaSeconds  float64                 `json:"media_seconds,omitempty"`
	ElapsedMillis int64                   `json:"elapsed_ms"`
	CompletedAt   time.Time               `json:"completed_at"`
}

// ConversionFromModel converts a model to a response.
func ConversionFromModel(c *models.Conversion) ConversionResponse {
	resp := ConversionResponse{
		ID:            c.ID,
		Direction:     c.Direction,
		Status:        c.Status,
		SourceName:    c.SourceName,
		SourceSize:    c.SourceSize,
		OutputName:    c.OutputName,
		OutputSize:    c.OutputSize,
		ErrorKind:     c.ErrorKind,
		Error:         c.Error,
		FPS:           c.FPS,
		Frames:        c.Frames,
		MediaSeconds:  c.MediaDuration.Seconds(),
		ElapsedMillis: c.Elapsed.Milliseconds(),
		CompletedAt:   c.CompletedAt,
	}
	if c.Succeeded() {
		resp.URL = downloadURL(c.OutputName)
	}
	return resp
}

// writeJSON writes v as the JSON response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes {"error": message} with the given status.
func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
