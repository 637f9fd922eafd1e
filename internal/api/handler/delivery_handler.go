package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/courier-tracking/internal/core/domain"
	"github.com/99minutos/courier-tracking/internal/core/ports"
)

// DeliveryHandler exposes the delivery lifecycle: register, start, deliver.
type DeliveryHandler struct {
	service ports.TrackingService
}

func NewDeliveryHandler(service ports.TrackingService) *DeliveryHandler {
	return &DeliveryHandler{service: service}
}

// Register handles POST /v1/deliveries.
//
// @Summary      Register a delivery for tracking
// @Tags         deliveries
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      registerDeliveryRequest  true  "Delivery to track"
// @Success      201   {object}  trackingResponse
// @Failure      400   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Router       /v1/deliveries [post]
func (h *DeliveryHandler) Register(c echo.Context) error {
	var req registerDeliveryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	view, err := h.service.RegisterDelivery(c.Request().Context(), ports.RegisterDeliveryInput{
		DeliveryID: req.DeliveryID,
		OrderID:    req.OrderID,
		CourierID:  req.CourierID,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toTrackingResponse(view))
}

// Get handles GET /v1/deliveries/:id.
//
// @Summary      Get the tracking state of a delivery
// @Tags         deliveries
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Delivery ID"
// @Success      200  {object}  trackingResponse
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /v1/deliveries/{id} [get]
func (h *DeliveryHandler) Get(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}

	view, err := h.service.Get(c.Request().Context(), c.Param("id"), actor)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toTrackingResponse(view))
}

// Start handles POST /v1/deliveries/:id/start. A start the tracking backend
// did not confirm is still applied locally and answered with 202.
//
// @Summary      Start a delivery (pending to in_transit)
// @Tags         deliveries
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string                true   "Delivery ID"
// @Param        body  body      startDeliveryRequest  false  "Last known courier position"
// @Success      200   {object}  trackingResponse
// @Success      202   {object}  trackingResponse
// @Failure      403   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Router       /v1/deliveries/{id}/start [post]
func (h *DeliveryHandler) Start(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}

	var req startDeliveryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	if (req.Latitude == nil) != (req.Longitude == nil) {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "latitude and longitude must be sent together")
	}

	in := ports.StartDeliveryInput{DeliveryID: c.Param("id"), Actor: actor}
	if req.Latitude != nil {
		in.LastKnown = &ports.CoordinatesInput{Lat: *req.Latitude, Lng: *req.Longitude}
	}

	view, err := h.service.StartDelivery(c.Request().Context(), in)
	return respondUnconfirmed(c, view, err)
}

// Confirm handles POST /v1/deliveries/:id/confirm, re-sending the start to
// the tracking backend.
//
// @Summary      Re-confirm a started delivery with the tracking backend
// @Tags         deliveries
// @Security     BearerAuth
// @Param        id   path  string  true  "Delivery ID"
// @Success      204
// @Failure      404  {object}  errorResponse
// @Failure      409  {object}  errorResponse
// @Failure      502  {object}  errorResponse
// @Router       /v1/deliveries/{id}/confirm [post]
func (h *DeliveryHandler) Confirm(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}
	if err := h.service.ConfirmStart(c.Request().Context(), c.Param("id"), actor); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Delivered handles POST /v1/deliveries/:id/delivered.
//
// @Summary      Mark a delivery as delivered
// @Tags         deliveries
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Delivery ID"
// @Success      200  {object}  trackingResponse
// @Success      202  {object}  trackingResponse
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Failure      409  {object}  errorResponse
// @Router       /v1/deliveries/{id}/delivered [post]
func (h *DeliveryHandler) Delivered(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}

	view, err := h.service.MarkDelivered(c.Request().Context(), c.Param("id"), actor)
	return respondUnconfirmed(c, view, err)
}

// RetryDestination handles POST /v1/deliveries/:id/destination/retry.
//
// @Summary      Retry resolving the delivery address
// @Tags         deliveries
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Delivery ID"
// @Success      200  {object}  trackingResponse
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /v1/deliveries/{id}/destination/retry [post]
func (h *DeliveryHandler) RetryDestination(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}

	view, err := h.service.RetryDestination(c.Request().Context(), c.Param("id"), actor)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toTrackingResponse(view))
}

// ResumeLocation handles POST /v1/deliveries/:id/location/resume. The
// courier app calls it once the device can deliver positions again after a
// reported location error.
//
// @Summary      Resume device location tracking
// @Tags         samples
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Delivery ID"
// @Success      200  {object}  trackingResponse
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Failure      409  {object}  errorResponse
// @Router       /v1/deliveries/{id}/location/resume [post]
func (h *DeliveryHandler) ResumeLocation(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}

	view, err := h.service.ResumeLocation(c.Request().Context(), c.Param("id"), actor)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toTrackingResponse(view))
}

// respondUnconfirmed renders a transition result. When only the backend
// confirmation failed the local transition stands and the answer is 202.
func respondUnconfirmed(c echo.Context, view *ports.TrackingView, err error) error {
	if err == nil {
		return c.JSON(http.StatusOK, toTrackingResponse(view))
	}
	if view != nil && errors.Is(err, domain.ErrSyncTransport) {
		resp := toTrackingResponse(view)
		resp.Notices = append(resp.Notices, "backend: "+err.Error())
		return c.JSON(http.StatusAccepted, resp)
	}
	return err
}
