package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/99minutos/courier-tracking/internal/core/domain"
	"github.com/99minutos/courier-tracking/internal/core/ports"
	"github.com/99minutos/courier-tracking/internal/pkg/metrics"
)

const defaultGeocodeTimeout = 10 * time.Second

// QueryStrategy derives a provider query from the raw address. ok=false
// skips the strategy.
type QueryStrategy struct {
	Name   string
	Derive func(address string) (query string, ok bool)
}

// DefaultStrategies tries the full address, then street + number only.
var DefaultStrategies = []QueryStrategy{
	{Name: "full", Derive: fullAddress},
	{Name: "street_number", Derive: leadingSegments(2)},
}

func fullAddress(address string) (string, bool) {
	q := strings.TrimSpace(address)
	return q, q != ""
}

// leadingSegments keeps the first n comma-separated segments.
func leadingSegments(n int) func(string) (string, bool) {
	return func(address string) (string, bool) {
		parts := strings.Split(address, ",")
		if len(parts) <= n {
			return "", false
		}
		kept := make([]string, 0, n)
		for _, p := range parts[:n] {
			if p = strings.TrimSpace(p); p != "" {
				kept = append(kept, p)
			}
		}
		if len(kept) == 0 {
			return "", false
		}
		return strings.Join(kept, ", "), true
	}
}

// AddressResolver converts a delivery address into coordinates. Each
// strategy is tried once, in order, with the same timeout; only an empty
// result moves on to the next strategy.
type AddressResolver struct {
	geocoder   ports.Geocoder
	cache      ports.GeocodeCache
	strategies []QueryStrategy
	timeout    time.Duration
	log        zerolog.Logger
}

// NewAddressResolver returns a resolver using DefaultStrategies. cache may be nil.
func NewAddressResolver(geocoder ports.Geocoder, cache ports.GeocodeCache, timeout time.Duration, log zerolog.Logger) *AddressResolver {
	if timeout <= 0 {
		timeout = defaultGeocodeTimeout
	}
	return &AddressResolver{
		geocoder:   geocoder,
		cache:      cache,
		strategies: DefaultStrategies,
		timeout:    timeout,
		log:        log.With().Str("component", "address_resolver").Logger(),
	}
}

// WithStrategies replaces the strategy list.
func (r *AddressResolver) WithStrategies(strategies ...QueryStrategy) *AddressResolver {
	r.strategies = strategies
	return r
}

// Resolve returns the destination coordinates for deliveryID. Failures are
// always a *domain.ResolutionError.
func (r *AddressResolver) Resolve(ctx context.Context, deliveryID, address string) (domain.Coordinates, error) {
	if r.cache != nil && deliveryID != "" {
		pos, ok, err := r.cache.Get(ctx, deliveryID)
		switch {
		case err != nil:
			r.log.Warn().Err(err).Str("delivery_id", deliveryID).Msg("geocode cache read failed, querying provider")
		case ok:
			metrics.GeocodeCacheTotal.WithLabelValues("hit").Inc()
			return pos, nil
		default:
			metrics.GeocodeCacheTotal.WithLabelValues("miss").Inc()
		}
	}

	tried := make(map[string]struct{}, len(r.strategies))
	for _, st := range r.strategies {
		query, ok := st.Derive(address)
		if !ok {
			continue
		}
		if _, dup := tried[query]; dup {
			continue
		}
		tried[query] = struct{}{}

		pos, found, err := r.attempt(ctx, st.Name, query)
		if err != nil {
			return domain.Coordinates{}, err
		}
		if !found {
			continue
		}

		if r.cache != nil && deliveryID != "" {
			if err := r.cache.Set(ctx, deliveryID, pos); err != nil {
				r.log.Warn().Err(err).Str("delivery_id", deliveryID).Msg("failed to cache geocode result")
			}
		}
		r.log.Info().
			Str("delivery_id", deliveryID).
			Str("strategy", st.Name).
			Msg("destination resolved")
		return pos, nil
	}

	return domain.Coordinates{}, &domain.ResolutionError{Query: address}
}

func (r *AddressResolver) attempt(ctx context.Context, strategy, query string) (domain.Coordinates, bool, error) {
	actx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	results, err := r.geocoder.Lookup(actx, query, 1)
	if err != nil {
		timedOut := errors.Is(err, context.DeadlineExceeded) || errors.Is(actx.Err(), context.DeadlineExceeded)
		if timedOut {
			metrics.GeocodeAttemptsTotal.WithLabelValues(strategy, "timeout").Inc()
			r.log.Warn().Str("strategy", strategy).Dur("timeout", r.timeout).Msg("geocode lookup aborted by timeout")
		} else {
			metrics.GeocodeAttemptsTotal.WithLabelValues(strategy, "error").Inc()
			r.log.Warn().Err(err).Str("strategy", strategy).Msg("geocode lookup failed")
		}
		return domain.Coordinates{}, false, &domain.ResolutionError{Query: query, TimedOut: timedOut, Err: err}
	}

	for _, pos := range results {
		if pos.Valid() {
			metrics.GeocodeAttemptsTotal.WithLabelValues(strategy, "hit").Inc()
			return pos, true, nil
		}
	}
	metrics.GeocodeAttemptsTotal.WithLabelValues(strategy, "empty").Inc()
	return domain.Coordinates{}, false, nil
}
