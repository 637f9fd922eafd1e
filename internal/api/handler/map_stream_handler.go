package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/courier-tracking/internal/core/ports"
	"github.com/99minutos/courier-tracking/internal/infrastructure/mapsurface"
)

const streamKeepAlive = 15 * time.Second

// MapStream is the subscription side of the live map surfaces.
type MapStream interface {
	Subscribe(deliveryID string) (<-chan mapsurface.Event, func())
}

// MapStreamHandler streams a delivery's live map messages as server-sent events.
type MapStreamHandler struct {
	service ports.TrackingService
	stream  MapStream
}

func NewMapStreamHandler(service ports.TrackingService, stream MapStream) *MapStreamHandler {
	return &MapStreamHandler{service: service, stream: stream}
}

// Stream handles GET /v1/deliveries/:id/map/stream.
//
// @Summary      Stream the live map of a delivery
// @Description  Server-sent events: init once, then updatePosition, then dispose.
// @Tags         deliveries
// @Produce      text/event-stream
// @Security     BearerAuth
// @Param        id   path  string  true  "Delivery ID"
// @Success      200
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /v1/deliveries/{id}/map/stream [get]
func (h *MapStreamHandler) Stream(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}
	deliveryID := c.Param("id")
	ctx := c.Request().Context()
	if err := h.service.Authorize(ctx, deliveryID, actor); err != nil {
		return err
	}

	events, cancel := h.stream.Subscribe(deliveryID)
	defer cancel()

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	ticker := time.NewTicker(streamKeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := fmt.Fprint(res, ": keep-alive\n\n"); err != nil {
				return nil
			}
			res.Flush()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := writeEvent(res, ev); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}

func writeEvent(res *echo.Response, ev mapsurface.Event) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(res, "event: %s\ndata: %s\n\n", ev.Name, data)
	return err
}
