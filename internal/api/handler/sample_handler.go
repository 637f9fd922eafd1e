package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/courier-tracking/internal/core/ports"
)

// SampleDispatcher is the interface the handler uses to enqueue device samples.
type SampleDispatcher interface {
	Enqueue(ctx context.Context, in ports.SampleInput) error
	EnqueueBatch(ctx context.Context, in []ports.SampleInput) error
}

// SampleHandler handles position samples and device errors posted by the
// courier app.
type SampleHandler struct {
	service    ports.TrackingService
	dispatcher SampleDispatcher
}

// NewSampleHandler creates a SampleHandler backed by the given dispatcher.
func NewSampleHandler(service ports.TrackingService, dispatcher SampleDispatcher) *SampleHandler {
	return &SampleHandler{service: service, dispatcher: dispatcher}
}

// Receive handles POST /v1/deliveries/:id/samples. Enqueues a single sample, returns 202.
//
// @Summary      Post a courier position sample
// @Tags         samples
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string         true  "Delivery ID"
// @Param        body  body      sampleRequest  true  "Position sample"
// @Success      202   {object}  acceptedResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Router       /v1/deliveries/{id}/samples [post]
func (h *SampleHandler) Receive(c echo.Context) error {
	deliveryID, err := h.authorize(c)
	if err != nil {
		return err
	}

	var req sampleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	if err := h.dispatcher.Enqueue(c.Request().Context(), toSampleInput(deliveryID, req)); err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "sample not accepted")
	}
	return c.JSON(http.StatusAccepted, acceptedResponse{Message: "sample accepted"})
}

// ReceiveBatch handles POST /v1/deliveries/:id/samples/batch. Enqueues the
// samples in order, returns 202.
//
// @Summary      Post a batch of courier position samples
// @Tags         samples
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string           true  "Delivery ID"
// @Param        body  body      []sampleRequest  true  "Samples, oldest first"
// @Success      202   {object}  acceptedResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Router       /v1/deliveries/{id}/samples/batch [post]
func (h *SampleHandler) ReceiveBatch(c echo.Context) error {
	deliveryID, err := h.authorize(c)
	if err != nil {
		return err
	}

	var reqs []sampleRequest
	if err := c.Bind(&reqs); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if len(reqs) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "batch cannot be empty")
	}
	if len(reqs) > maxBatchSamples {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge,
			fmt.Sprintf("batch exceeds %d samples", maxBatchSamples))
	}

	inputs := make([]ports.SampleInput, 0, len(reqs))
	for i, req := range reqs {
		if err := c.Validate(&req); err != nil {
			return echo.NewHTTPError(http.StatusUnprocessableEntity,
				fmt.Sprintf("sample[%d]: %s", i, err.Error()))
		}
		inputs = append(inputs, toSampleInput(deliveryID, req))
	}

	if err := h.dispatcher.EnqueueBatch(c.Request().Context(), inputs); err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "samples not accepted")
	}
	return c.JSON(http.StatusAccepted, acceptedResponse{
		Message: "samples accepted",
		Count:   len(inputs),
	})
}

// LocationError handles POST /v1/deliveries/:id/location-errors.
//
// @Summary      Report a device geolocation failure
// @Tags         samples
// @Accept       json
// @Security     BearerAuth
// @Param        id    path  string                true  "Delivery ID"
// @Param        body  body  locationErrorRequest  true  "Device error code"
// @Success      204
// @Failure      400  {object}  errorResponse
// @Failure      403  {object}  errorResponse
// @Failure      422  {object}  errorResponse
// @Router       /v1/deliveries/{id}/location-errors [post]
func (h *SampleHandler) LocationError(c echo.Context) error {
	deliveryID, err := h.authorize(c)
	if err != nil {
		return err
	}

	var req locationErrorRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	if err := h.service.ReportLocationError(c.Request().Context(), deliveryID, req.Code); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// authorize checks the caller may post for the delivery in the path.
func (h *SampleHandler) authorize(c echo.Context) (string, error) {
	actor, err := ctxActor(c)
	if err != nil {
		return "", err
	}
	deliveryID := c.Param("id")
	if err := h.service.Authorize(c.Request().Context(), deliveryID, actor); err != nil {
		return "", err
	}
	return deliveryID, nil
}

// toSampleInput maps the HTTP request to the service DTO.
func toSampleInput(deliveryID string, r sampleRequest) ports.SampleInput {
	return ports.SampleInput{
		DeliveryID:     deliveryID,
		Lat:            r.Latitude,
		Lng:            r.Longitude,
		AccuracyMeters: r.Accuracy,
		CapturedAt:     r.CapturedAt,
	}
}
