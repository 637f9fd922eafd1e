package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/99minutos/courier-tracking/internal/core/domain"
)

// errorResponse is the canonical error envelope for all API errors.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// NewHTTPErrorHandler returns an echo.HTTPErrorHandler that:
//   - Maps known domain errors to their HTTP status and a stable code.
//   - Logs unexpected errors internally without leaking details to the client.
//   - Renders a consistent JSON envelope: {"error": "<message>", "code": "<code>"}.
func NewHTTPErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, resp := resolveError(err, log, c)
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = c.JSON(status, resp)
	}
}

func resolveError(err error, log zerolog.Logger, c echo.Context) (int, errorResponse) {
	// Echo's own errors (bind failures, 404 from router, middleware rejections).
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, errorResponse{Error: fmt.Sprintf("%v", he.Message), Code: statusCode(he.Code)}
	}

	switch {
	case errors.Is(err, domain.ErrTrackingNotFound):
		return http.StatusNotFound, errorResponse{Error: "delivery tracking not found", Code: "tracking_not_found"}
	case errors.Is(err, domain.ErrOrderNotFound):
		return http.StatusNotFound, errorResponse{Error: "order not found", Code: "order_not_found"}
	case errors.Is(err, domain.ErrSessionNotStarted):
		return http.StatusNotFound, errorResponse{Error: "tracking session not started", Code: "session_not_started"}
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, errorResponse{Error: "access forbidden", Code: "forbidden"}
	case errors.Is(err, domain.ErrAlreadyInState):
		return http.StatusConflict, errorResponse{Error: err.Error(), Code: "already_in_state"}
	case errors.Is(err, domain.ErrNotInTransit):
		return http.StatusConflict, errorResponse{Error: "delivery is not in transit", Code: "not_in_transit"}
	case errors.Is(err, domain.ErrDuplicateTracking):
		return http.StatusConflict, errorResponse{Error: "delivery tracking already exists", Code: "duplicate_tracking"}
	case errors.Is(err, domain.ErrSessionClosed):
		return http.StatusConflict, errorResponse{Error: "tracking session closed", Code: "session_closed"}
	case errors.Is(err, domain.ErrPositionUnavailable):
		return http.StatusUnprocessableEntity, errorResponse{Error: "courier position unavailable", Code: "position_unavailable"}
	case errors.Is(err, domain.ErrInvalidSample):
		return http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "invalid_sample"}
	case errors.Is(err, domain.ErrSyncTransport):
		return http.StatusBadGateway, errorResponse{Error: "tracking backend unreachable", Code: "sync_transport"}
	}

	// Unexpected error: log the real cause, return a generic message.
	log.Error().
		Err(err).
		Str("method", c.Request().Method).
		Str("path", c.Path()).
		Msg("unhandled error")

	return http.StatusInternalServerError, errorResponse{Error: "internal server error", Code: "internal"}
}

// statusCode turns an HTTP status into a snake_case code ("Not Found" -> "not_found").
func statusCode(status int) string {
	text := http.StatusText(status)
	if text == "" {
		return "error"
	}
	return strings.ReplaceAll(strings.ToLower(text), " ", "_")
}
