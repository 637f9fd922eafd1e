// Package metrics defines and registers all custom Prometheus metrics for the
// courier tracking service. It is the single source of truth for metric
// names, labels, and help strings.
//
// Metrics are registered with the default Prometheus registry on package
// initialisation (promauto) and exposed by the /metrics route.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "courier_tracking"

// ── Position pipeline ─────────────────────────────────────────────────────────

// SamplesTotal counts device samples seen by live sessions.
// Label:
//   - result: "accepted", "insignificant" (inside the significance threshold)
//     or "discarded" (session no longer InTransit)
var SamplesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "samples_total",
		Help:      "Position samples evaluated by tracking sessions, by result.",
	},
	[]string{"result"},
)

// PositionPushesTotal counts position pushes to the tracking backend.
// Label:
//   - result: "ok", "race" (session not started yet), "error", "throttled"
var PositionPushesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "position_pushes_total",
		Help:      "Position pushes to the tracking backend, by result.",
	},
	[]string{"result"},
)

// PositionPushDuration measures the latency of a single position push.
var PositionPushDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "position_push_duration_seconds",
		Help:      "Duration of position pushes to the tracking backend.",
		Buckets:   prometheus.DefBuckets,
	},
)

// PositionSourceFallbacksTotal counts low-accuracy fallbacks after a timeout.
var PositionSourceFallbacksTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "position_source_fallbacks_total",
		Help:      "Number of times a position source fell back to low accuracy.",
	},
)

// ── Address resolution and routing ────────────────────────────────────────────

// GeocodeAttemptsTotal counts geocoding provider calls.
// Labels:
//   - strategy: query strategy name (e.g. "full", "street_number")
//   - result: "hit", "empty", "timeout", "error"
var GeocodeAttemptsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "geocode_attempts_total",
		Help:      "Geocoding provider calls, by strategy and result.",
	},
	[]string{"strategy", "result"},
)

// GeocodeCacheTotal counts memo lookups.
// Label:
//   - result: "hit" or "miss"
var GeocodeCacheTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "geocode_cache_total",
		Help:      "Geocode memo lookups, by result (hit/miss).",
	},
	[]string{"result"},
)

// RouteRequestsTotal counts route computations.
// Label:
//   - result: "ok" or "unavailable"
var RouteRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "route_requests_total",
		Help:      "Route computations, by result.",
	},
	[]string{"result"},
)

// ── Sessions and surfaces ─────────────────────────────────────────────────────

// ActiveSessions is the number of live tracking sessions.
var ActiveSessions = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_sessions",
		Help:      "Number of live tracking sessions held in memory.",
	},
)

// TransitionsTotal counts state machine transitions.
// Label:
//   - to: target status
var TransitionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transitions_total",
		Help:      "Tracking state machine transitions, by target status.",
	},
	[]string{"to"},
)

// LiveSurfaces is the number of live map surfaces currently allocated.
var LiveSurfaces = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "live_map_surfaces",
		Help:      "Number of live map surfaces currently allocated.",
	},
)

// ── Ingestion and HTTP ────────────────────────────────────────────────────────

// SamplesQueueDepth tracks samples waiting in each dispatcher worker channel.
// Label:
//   - worker_id: numeric worker index
var SamplesQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "samples_queue_depth",
		Help:      "Current number of samples pending in each dispatcher worker channel.",
	},
	[]string{"worker_id"},
)

// HTTPRequestsTotal counts handled HTTP requests.
var HTTPRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests handled, by method, route and status code.",
	},
	[]string{"method", "route", "code"},
)

// HTTPRequestDuration measures request latency per route.
var HTTPRequestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency, by method and route.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "route"},
)
