package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/courier-tracking/internal/core/domain"
	"github.com/99minutos/courier-tracking/internal/core/ports"
)

// ctxActor extracts the auth claims injected by the Auth middleware and
// performs a fast-fail check before any service call:
//   - role must be non-empty (presence proves the middleware ran).
//   - courier role requires a non-empty courier_id; without it the JWT is
//     structurally valid but cannot be matched to any delivery, reject with 401.
func ctxActor(c echo.Context) (ports.Actor, error) {
	role, _ := c.Get("role").(string)
	if role == "" {
		return ports.Actor{}, echo.NewHTTPError(http.StatusUnauthorized, "missing authentication claims")
	}

	courierID, _ := c.Get("courier_id").(string)
	if role == domain.RoleCourier && courierID == "" {
		return ports.Actor{}, echo.NewHTTPError(http.StatusUnauthorized, "token missing courier identity")
	}

	return ports.Actor{Role: role, CourierID: courierID}, nil
}
