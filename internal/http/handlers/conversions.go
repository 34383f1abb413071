package handlers

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/convertarr/internal/models"
	"github.com/jmylchreest/convertarr/internal/repository"
)

// ConversionHandler exposes conversion history.
type ConversionHandler struct {
	repo repository.ConversionRepository
}

// NewConversionHandler creates a new conversion history handler.
func NewConversionHandler(repo repository.ConversionRepository) *ConversionHandler {
	return &ConversionHandler{repo: repo}
}

// ListConversionsInput is the input for listing conversions.
type ListConversionsInput struct {
	Pagination
	Direction string `query:"direction" enum:"video-to-mp3,audio-to-video" doc:"Filter by conversion direction"`
	Status    string `query:"status" enum:"succeeded,failed" doc:"Filter by outcome"`
}

// ListConversionsBody is the response body for listing conversions.
type ListConversionsBody struct {
	Items      []ConversionResponse `json:"items"`
	Pagination PaginationMeta       `json:"pagination"`
}

// ListConversionsOutput is the output for listing conversions.
type ListConversionsOutput struct {
	Body ListConversionsBody
}

// GetConversionInput is the input for getting a conversion.
type GetConversionInput struct {
	ID string `path:"id" doc:"Conversion ID (ULID)"`
}

// GetConversionOutput is the output for getting a conversion.
type GetConversionOutput struct {
	Body ConversionResponse
}

// Register registers the history routes with the API.
func (h *ConversionHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listConversions",
		Method:      http.MethodGet,
		Path:        "/api/v1/conversions",
		Summary:     "List conversions",
		Description: "Returns conversion history, newest first",
		Tags:        []string{"Conversions"},
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID: "getConversion",
		Method:      http.MethodGet,
		Path:        "/api/v1/conversions/{id}",
		Summary:     "Get conversion",
		Description: "Returns a single conversion history record",
		Tags:        []string{"Conversions"},
	}, h.Get)
}

// List returns a page of conversion history.
func (h *ConversionHandler) List(ctx context.Context, input *ListConversionsInput) (*ListConversionsOutput, error) {
	filter := repository.ConversionFilter{
		Direction: models.Direction(input.Direction),
		Status:    models.ConversionStatus(input.Status),
	}

	conversions, total, err := h.repo.List(ctx, filter, input.Offset(), input.Limit)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list conversions", err)
	}

	items := make([]ConversionResponse, 0, len(conversions))
	for _, c := range conversions {
		items = append(items, ConversionFromModel(c))
	}

	return &ListConversionsOutput{
		Body: ListConversionsBody{
			Items:      items,
			Pagination: NewPaginationMeta(input.Pagination, total),
		},
	}, nil
}

// Get returns a conversion by ID.
func (h *ConversionHandler) Get(ctx context.Context, input *GetConversionInput) (*GetConversionOutput, error) {
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid conversion ID", err)
	}

	conversion, err := h.repo.GetByID(ctx, id)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to get conversion", err)
	}
	if conversion == nil {
		return nil, huma.Error404NotFound("conversion not found")
	}

	return &GetConversionOutput{Body: ConversionFromModel(conversion)}, nil
}
