package config

import (
	"context"
	"time"
)

// ListenerConfig holds the network/TLS settings for a single listener (main or management).
type ListenerConfig struct {
	Port              int
	EnablePlainText   bool
	EnableTLS         bool
	TLSCertFile       string
	TLSKeyFile        string
	ReadHeaderTimeout time.Duration
}

type contextKey struct{}

// WithContext returns a new context carrying the given Config.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, contextKey{}, cfg)
}

// FromContext retrieves the Config from the context.
func FromContext(ctx context.Context) *Config {
	cfg, _ := ctx.Value(contextKey{}).(*Config)
	return cfg
}

const (
	ModeProd    = "prod"
	ModeTesting = "testing"
)

// Config holds all configuration for the chat service.
type Config struct {
	// Mode controls security behavior: "prod" (default) or "testing".
	// In testing mode, X-User-ID / X-User-Region headers are accepted.
	Mode string

	// Regional backends. Region A is the document deployment, region B the
	// relational deployment. Each selects a store plugin by kind plus its
	// connection URL.
	RegionAStoreKind string // "mongo"
	RegionADBURL     string
	RegionBStoreKind string // "postgres"
	RegionBDBURL     string

	// Mongo database name for the region A deployment.
	MongoDatabase string

	// Run datastore migrations on startup.
	DatastoreMigrateAtStart bool

	// Redis
	RedisURL string

	// Cache backend for unread counts: "redis" or "none".
	CacheType string

	// Unread count cache TTL.
	UnreadCacheTTL time.Duration

	// In-process profile cache (ristretto).
	ProfileCacheSize int64
	ProfileCacheTTL  time.Duration

	// AllowNonContactDirect is the workspace override: direct-conversation
	// sends to non-contacts are permitted (and logged) instead of rejected.
	AllowNonContactDirect bool

	// OIDC
	OIDCIssuer       string
	OIDCDiscoveryURL string
	// OIDCRegionClaim is the token claim carrying the principal's region.
	OIDCRegionClaim string

	// APIKeys maps API key values to "userID@region" principals
	// (CHAT_SERVICE_API_KEYS=key1=alice@a,key2=bob@b).
	APIKeys map[string]string

	// Server
	Listener           ListenerConfig
	ManagementListener ListenerConfig
	// ManagementListenerEnabled is true when --management-port was explicitly
	// provided. When false, management endpoints are served on the main port.
	ManagementListenerEnabled bool
	// ManagementAccessLog enables access logging for /health, /ready, /metrics.
	// Disabled by default to suppress probe noise.
	ManagementAccessLog bool
	CORSEnabled         bool
	CORSOrigins         string

	// MetricsLabels is a comma-separated list of key=value pairs added as
	// constant labels to all Prometheus metrics.
	MetricsLabels string

	// Body size limit (bytes)
	MaxBodySize int64

	// Graceful shutdown drain timeout (seconds)
	DrainTimeout int

	// DB pool
	DBMaxOpenConns int
	DBMaxIdleConns int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Mode:                    ModeProd,
		RegionAStoreKind:        "mongo",
		RegionBStoreKind:        "postgres",
		MongoDatabase:           "workspace_chat",
		DatastoreMigrateAtStart: true,
		CacheType:               "none",
		UnreadCacheTTL:          30 * time.Second,
		ProfileCacheSize:        10_000,
		ProfileCacheTTL:         time.Minute,
		AllowNonContactDirect:   true,
		OIDCRegionClaim:         "region",
		Listener: ListenerConfig{
			Port:              8080,
			EnablePlainText:   true,
			ReadHeaderTimeout: 5 * time.Second,
		},
		ManagementListener: ListenerConfig{
			EnablePlainText: true,
		},
		MaxBodySize:    1 * 1024 * 1024,
		DrainTimeout:   30,
		DBMaxOpenConns: 25,
		DBMaxIdleConns: 5,
	}
}
