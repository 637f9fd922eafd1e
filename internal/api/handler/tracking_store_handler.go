package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/courier-tracking/internal/core/ports"
)

type positionRequest struct {
	Latitude  float64   `json:"latitude"  validate:"latitude"`
	Longitude float64   `json:"longitude" validate:"longitude"`
	Timestamp time.Time `json:"timestamp"`
}

type sessionResponse struct {
	DeliveryID string `json:"delivery_id"`
	Status     string `json:"status"`
	StartedAt  string `json:"started_at"`
}

// TrackingStoreHandler is the backend side of position sync: the session
// store the engine opens, pushes positions into and closes.
type TrackingStoreHandler struct {
	service ports.SessionService
}

func NewTrackingStoreHandler(service ports.SessionService) *TrackingStoreHandler {
	return &TrackingStoreHandler{service: service}
}

// Start handles POST /tracking/:id/start. Starting an open session is a no-op.
//
// @Summary      Open a tracking session
// @Tags         tracking-store
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Delivery ID"
// @Success      200  {object}  sessionResponse
// @Failure      409  {object}  errorResponse
// @Router       /tracking/{id}/start [post]
func (h *TrackingStoreHandler) Start(c echo.Context) error {
	session, err := h.service.Start(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sessionResponse{
		DeliveryID: session.DeliveryID,
		Status:     string(session.Status),
		StartedAt:  session.StartedAt.UTC().Format(time.RFC3339),
	})
}

// Position handles PUT /tracking/:id/position.
//
// @Summary      Record the courier position of an open session
// @Tags         tracking-store
// @Accept       json
// @Security     BearerAuth
// @Param        id    path  string           true  "Delivery ID"
// @Param        body  body  positionRequest  true  "Courier position"
// @Success      204
// @Failure      404  {object}  errorResponse  "session_not_started"
// @Failure      409  {object}  errorResponse  "session_closed"
// @Failure      422  {object}  errorResponse
// @Router       /tracking/{id}/position [put]
func (h *TrackingStoreHandler) Position(c echo.Context) error {
	var req positionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	err := h.service.RecordPosition(c.Request().Context(), ports.PositionInput{
		DeliveryID: c.Param("id"),
		Latitude:   req.Latitude,
		Longitude:  req.Longitude,
		Timestamp:  req.Timestamp,
	})
	if err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Delivered handles POST /tracking/:id/delivered.
//
// @Summary      Close a tracking session
// @Tags         tracking-store
// @Security     BearerAuth
// @Param        id   path  string  true  "Delivery ID"
// @Success      204
// @Failure      404  {object}  errorResponse
// @Router       /tracking/{id}/delivered [post]
func (h *TrackingStoreHandler) Delivered(c echo.Context) error {
	if err := h.service.Close(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
