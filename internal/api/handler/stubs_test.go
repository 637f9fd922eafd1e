package handler

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/courier-tracking/internal/core/domain"
	"github.com/99minutos/courier-tracking/internal/core/ports"
)

type stubTrackingService struct {
	registerFn  func(ctx context.Context, in ports.RegisterDeliveryInput) (*ports.TrackingView, error)
	startFn     func(ctx context.Context, in ports.StartDeliveryInput) (*ports.TrackingView, error)
	confirmFn   func(ctx context.Context, id string, actor ports.Actor) error
	deliveredFn func(ctx context.Context, id string, actor ports.Actor) (*ports.TrackingView, error)
	retryFn     func(ctx context.Context, id string, actor ports.Actor) (*ports.TrackingView, error)
	resumeFn    func(ctx context.Context, id string, actor ports.Actor) (*ports.TrackingView, error)
	getFn       func(ctx context.Context, id string, actor ports.Actor) (*ports.TrackingView, error)
	authorizeFn func(ctx context.Context, id string, actor ports.Actor) error
	reportFn    func(ctx context.Context, id, code string) error
}

func (s *stubTrackingService) RegisterDelivery(ctx context.Context, in ports.RegisterDeliveryInput) (*ports.TrackingView, error) {
	return s.registerFn(ctx, in)
}

func (s *stubTrackingService) StartDelivery(ctx context.Context, in ports.StartDeliveryInput) (*ports.TrackingView, error) {
	return s.startFn(ctx, in)
}

func (s *stubTrackingService) ConfirmStart(ctx context.Context, id string, actor ports.Actor) error {
	return s.confirmFn(ctx, id, actor)
}

func (s *stubTrackingService) MarkDelivered(ctx context.Context, id string, actor ports.Actor) (*ports.TrackingView, error) {
	return s.deliveredFn(ctx, id, actor)
}

func (s *stubTrackingService) RetryDestination(ctx context.Context, id string, actor ports.Actor) (*ports.TrackingView, error) {
	return s.retryFn(ctx, id, actor)
}

func (s *stubTrackingService) ResumeLocation(ctx context.Context, id string, actor ports.Actor) (*ports.TrackingView, error) {
	return s.resumeFn(ctx, id, actor)
}

func (s *stubTrackingService) Get(ctx context.Context, id string, actor ports.Actor) (*ports.TrackingView, error) {
	return s.getFn(ctx, id, actor)
}

func (s *stubTrackingService) Authorize(ctx context.Context, id string, actor ports.Actor) error {
	if s.authorizeFn == nil {
		return nil
	}
	return s.authorizeFn(ctx, id, actor)
}

func (s *stubTrackingService) IngestSample(context.Context, ports.SampleInput) error {
	return nil
}

func (s *stubTrackingService) ReportLocationError(ctx context.Context, id, code string) error {
	return s.reportFn(ctx, id, code)
}

// newContext builds an echo context for a request on /.../:id carrying the
// given role claims.
func newContext(method, body, role, courierID, deliveryID string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	e.Validator = NewValidator()

	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, "/", r)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if deliveryID != "" {
		c.SetParamNames("id")
		c.SetParamValues(deliveryID)
	}
	if role != "" {
		c.Set("role", role)
	}
	if courierID != "" {
		c.Set("courier_id", courierID)
	}
	return c, rec
}

func inTransitView(id string) *ports.TrackingView {
	return &ports.TrackingView{
		DeliveryID:      id,
		OrderID:         "ORD-1",
		CourierID:       "C-1",
		Status:          string(domain.StatusInTransit),
		CourierPosition: &ports.CoordinatesInput{Lat: 19.43, Lng: -99.13},
	}
}

func httpStatus(err error) int {
	if he, ok := err.(*echo.HTTPError); ok {
		return he.Code
	}
	return http.StatusInternalServerError
}
