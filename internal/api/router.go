package api

import (
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/99minutos/courier-tracking/docs"
	"github.com/99minutos/courier-tracking/internal/api/handler"
	"github.com/99minutos/courier-tracking/internal/api/middleware"
	"github.com/99minutos/courier-tracking/internal/core/domain"
	"github.com/99minutos/courier-tracking/internal/core/ports"
)

// Deps are the services the HTTP layer is wired to.
type Deps struct {
	Tracking   ports.TrackingService
	Sessions   ports.SessionService
	Dispatcher handler.SampleDispatcher
	Maps       handler.MapStream
	Checks     map[string]handler.DependencyCheck
	JWTSecret  string
	Log        zerolog.Logger
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(d.Log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(d.Log))
	e.Use(middleware.Metrics())

	// --- Handlers ---
	deliveries := handler.NewDeliveryHandler(d.Tracking)
	samples := handler.NewSampleHandler(d.Tracking, d.Dispatcher)
	mapStream := handler.NewMapStreamHandler(d.Tracking, d.Maps)
	store := handler.NewTrackingStoreHandler(d.Sessions)
	auth := middleware.Auth(d.JWTSecret)

	// --- Health probes and tooling (no auth required) ---
	e.GET("/health", handler.NewHealthHandler().Liveness)
	e.GET("/health/ready", handler.NewHealthDependenciesHandler(d.Checks).Readiness)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	// --- Delivery lifecycle ---
	v1 := e.Group("/v1/deliveries", auth)
	v1.POST("", deliveries.Register, middleware.RBAC(domain.RoleAdmin, domain.RoleDispatcher))

	staff := middleware.RBAC(domain.RoleAdmin, domain.RoleDispatcher, domain.RoleCourier)
	v1.GET("/:id", deliveries.Get, staff)
	v1.POST("/:id/start", deliveries.Start, staff)
	v1.POST("/:id/confirm", deliveries.Confirm, staff)
	v1.POST("/:id/delivered", deliveries.Delivered, staff)
	v1.POST("/:id/destination/retry", deliveries.RetryDestination, staff)
	v1.GET("/:id/map/stream", mapStream.Stream, staff)

	// --- Device feed ---
	device := middleware.RBAC(domain.RoleAdmin, domain.RoleCourier)
	v1.POST("/:id/samples", samples.Receive, device)
	v1.POST("/:id/samples/batch", samples.ReceiveBatch, device)
	v1.POST("/:id/location-errors", samples.LocationError, device)
	v1.POST("/:id/location/resume", deliveries.ResumeLocation, device)

	// --- Tracking store ---
	tracking := e.Group("/tracking", auth, middleware.RBAC(domain.RoleAdmin, domain.RoleService))
	tracking.POST("/:id/start", store.Start)
	tracking.PUT("/:id/position", store.Position)
	tracking.POST("/:id/delivered", store.Delivered)

	return e
}

// requestLogger logs one line per request through zerolog.
func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Error != nil {
				ev = log.Warn().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	})
}
