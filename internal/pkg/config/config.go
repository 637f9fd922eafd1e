package config

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Port            string        `env:"PORT,             default=8080"`
	Env             string        `env:"ENV,              default=development" validate:"oneof=development staging production"`
	LogLevel        string        `env:"LOG_LEVEL,        default=info"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT, default=15s"`

	JWT         JWTConfig
	Mongo       MongoConfig
	Redis       RedisConfig
	Geolocation GeolocationConfig
	Geocoding   GeocodingConfig
	Routing     RoutingConfig
	Backend     BackendConfig
	Sync        SyncConfig
	Dispatcher  DispatcherConfig
}

type JWTConfig struct {
	Secret string `env:"JWT_SECRET" validate:"required"`
	// ServiceSubject identifies this engine in the tokens it presents to the tracking store.
	ServiceSubject  string        `env:"JWT_SERVICE_SUBJECT,   default=courier-tracking"`
	ServiceTokenTTL time.Duration `env:"JWT_SERVICE_TOKEN_TTL, default=1h"`
}

type MongoConfig struct {
	URI      string        `env:"MONGO_URI,     default=mongodb://localhost:27017" validate:"required"`
	Database string        `env:"MONGO_DB,      default=courier_tracking"          validate:"required"`
	Timeout  time.Duration `env:"MONGO_TIMEOUT, default=10s"`
}

type RedisConfig struct {
	Addr     string        `env:"REDIS_ADDR,      default=localhost:6379" validate:"required"`
	Password string        `env:"REDIS_PASSWORD"`
	DB       int           `env:"REDIS_DB,        default=0"              validate:"gte=0"`
	Timeout  time.Duration `env:"REDIS_TIMEOUT,   default=3s"`
	CacheTTL time.Duration `env:"GEOCODE_CACHE_TTL, default=24h"`
}

// GeolocationConfig is the sampling policy of the first attempt. The single
// fallback doubles Timeout and accepts samples up to FallbackAge old.
type GeolocationConfig struct {
	HighAccuracy  bool          `env:"GEO_HIGH_ACCURACY,  default=true"`
	Timeout       time.Duration `env:"GEO_TIMEOUT,        default=30s" validate:"gt=0"`
	MaxSampleAge  time.Duration `env:"GEO_MAX_SAMPLE_AGE, default=10s" validate:"gte=0"`
	FallbackAge   time.Duration `env:"GEO_FALLBACK_AGE,   default=60s" validate:"gte=0"`
	AccuracyLimit float64       `env:"GEO_ACCURACY_LIMIT, default=100" validate:"gt=0"`
	Retention     time.Duration `env:"GEO_RETENTION,      default=10m" validate:"gt=0"`
}

type GeocodingConfig struct {
	BaseURL      string        `env:"GEOCODER_URL,        default=https://nominatim.openstreetmap.org" validate:"url"`
	UserAgent    string        `env:"GEOCODER_USER_AGENT, default=courier-tracking/1.0"`
	CountryCodes string        `env:"GEOCODER_COUNTRY_CODES"`
	Timeout      time.Duration `env:"GEOCODER_TIMEOUT,    default=10s" validate:"gt=0"`
}

type RoutingConfig struct {
	BaseURL string        `env:"ROUTER_URL,     default=https://router.project-osrm.org" validate:"url"`
	Profile string        `env:"ROUTER_PROFILE, default=driving"`
	Timeout time.Duration `env:"ROUTER_TIMEOUT, default=8s" validate:"gt=0"`
}

type BackendConfig struct {
	// BaseURL defaults to this process's own tracking store.
	BaseURL string        `env:"BACKEND_URL,     default=http://localhost:8080" validate:"url"`
	Timeout time.Duration `env:"BACKEND_TIMEOUT, default=5s" validate:"gt=0"`
	// Token, when set, replaces the minted service token.
	Token string `env:"BACKEND_TOKEN"`
}

type SyncConfig struct {
	Threshold   float64       `env:"SYNC_THRESHOLD,    default=0.0001" validate:"gt=0"`
	RatePerSec  float64       `env:"SYNC_RATE,         default=1"      validate:"gt=0"`
	Burst       int           `env:"SYNC_BURST,        default=2"      validate:"gte=1"`
	PushTimeout time.Duration `env:"SYNC_PUSH_TIMEOUT, default=5s"`
}

type DispatcherConfig struct {
	Workers int `env:"DISPATCHER_WORKERS, default=8" validate:"gte=1"`
}

// Load reads configuration from environment variables using go-envconfig
// and validates it.
func Load(ctx context.Context) (*Config, error) {
	return load(ctx, envconfig.OsLookuper())
}

func load(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return nil, fmt.Errorf("config: load: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ranges and required values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: invalid: %w", err)
	}
	return nil
}

// IsProduction reports whether logs should be emitted as plain JSON.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
