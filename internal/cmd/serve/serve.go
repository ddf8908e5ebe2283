package serve

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v3"
	"github.com/workstream-im/chat-service/internal/config"
	registrycache "github.com/workstream-im/chat-service/internal/registry/cache"
	registrystore "github.com/workstream-im/chat-service/internal/registry/store"

	// Import all plugins to trigger init() registration
	_ "github.com/workstream-im/chat-service/internal/plugin/cache/noop"
	_ "github.com/workstream-im/chat-service/internal/plugin/cache/redis"
	_ "github.com/workstream-im/chat-service/internal/plugin/route/system"
	_ "github.com/workstream-im/chat-service/internal/plugin/store/mongo"
	_ "github.com/workstream-im/chat-service/internal/plugin/store/postgres"
)

// Command returns the serve sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	var readHeaderTimeoutSecs int = 5
	var apiKeysCSV string
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the chat service HTTP server",
		Flags: flags(&cfg, &readHeaderTimeoutSecs, &apiKeysCSV),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg.Listener.ReadHeaderTimeout = time.Duration(readHeaderTimeoutSecs) * time.Second
			cfg.ManagementListener.ReadHeaderTimeout = cfg.Listener.ReadHeaderTimeout
			cfg.ManagementListenerEnabled = cmd.IsSet("management-port")
			cfg.APIKeys = parseAPIKeysCSV(apiKeysCSV)
			return run(config.WithContext(ctx, &cfg), cfg)
		},
	}
}

func flags(cfg *config.Config, readHeaderTimeoutSecs *int, apiKeysCSV *string) []cli.Flag {
	return []cli.Flag{

		// ── Server ────────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "mode",
			Category:    "Server:",
			Sources:     cli.EnvVars("CHAT_SERVICE_MODE"),
			Destination: &cfg.Mode,
			Value:       cfg.Mode,
			Usage:       "Security mode (prod|testing); testing accepts X-User-ID / X-User-Region headers",
		},
		&cli.StringFlag{
			Name:        "tls-cert-file",
			Category:    "Server:",
			Sources:     cli.EnvVars("CHAT_SERVICE_TLS_CERT_FILE"),
			Destination: &cfg.Listener.TLSCertFile,
			Usage:       "TLS certificate file",
		},
		&cli.StringFlag{
			Name:        "tls-key-file",
			Category:    "Server:",
			Sources:     cli.EnvVars("CHAT_SERVICE_TLS_KEY_FILE"),
			Destination: &cfg.Listener.TLSKeyFile,
			Usage:       "TLS private key file",
		},
		&cli.IntFlag{
			Name:        "read-header-timeout-seconds",
			Category:    "Server:",
			Sources:     cli.EnvVars("CHAT_SERVICE_READ_HEADER_TIMEOUT_SECONDS"),
			Destination: readHeaderTimeoutSecs,
			Value:       *readHeaderTimeoutSecs,
			Usage:       "HTTP read header timeout in seconds",
		},
		&cli.BoolFlag{
			Name:        "management-access-log",
			Category:    "Server:",
			Sources:     cli.EnvVars("CHAT_SERVICE_MANAGEMENT_ACCESS_LOG"),
			Destination: &cfg.ManagementAccessLog,
			Usage:       "Enable HTTP access logging for management endpoints (/health, /ready, /metrics)",
		},
		&cli.BoolFlag{
			Name:        "cors-enabled",
			Category:    "Server:",
			Sources:     cli.EnvVars("CHAT_SERVICE_CORS_ENABLED"),
			Destination: &cfg.CORSEnabled,
			Usage:       "Enable CORS handling",
		},
		&cli.StringFlag{
			Name:        "cors-origins",
			Category:    "Server:",
			Sources:     cli.EnvVars("CHAT_SERVICE_CORS_ORIGINS"),
			Destination: &cfg.CORSOrigins,
			Usage:       "Comma-separated allowed CORS origins (empty = any)",
		},

		// ── Network Listener ──────────────────────────────────────
		&cli.IntFlag{
			Name:        "port",
			Category:    "Network Listener:",
			Sources:     cli.EnvVars("CHAT_SERVICE_PORT"),
			Destination: &cfg.Listener.Port,
			Value:       cfg.Listener.Port,
			Usage:       "HTTP server port",
		},
		&cli.BoolFlag{
			Name:        "tls",
			Category:    "Network Listener:",
			Sources:     cli.EnvVars("CHAT_SERVICE_TLS"),
			Destination: &cfg.Listener.EnableTLS,
			Value:       cfg.Listener.EnableTLS,
			Usage:       "Serve TLS instead of plaintext HTTP",
		},

		// ── Management Network Listener ───────────────────────────
		&cli.IntFlag{
			Name:        "management-port",
			Category:    "Management Network Listener:",
			Sources:     cli.EnvVars("CHAT_SERVICE_MANAGEMENT_PORT"),
			Destination: &cfg.ManagementListener.Port,
			Value:       cfg.ManagementListener.Port,
			Usage:       "Dedicated port for health and metrics (0 = OS-assigned random port); when unset, served on the main port",
		},

		// ── Region A (document store) ─────────────────────────────
		&cli.StringFlag{
			Name:        "region-a-db-kind",
			Category:    "Region A:",
			Sources:     cli.EnvVars("CHAT_SERVICE_REGION_A_DB_KIND"),
			Destination: &cfg.RegionAStoreKind,
			Value:       cfg.RegionAStoreKind,
			Usage:       "Region A backend store (" + strings.Join(registrystore.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "region-a-db-url",
			Category:    "Region A:",
			Sources:     cli.EnvVars("CHAT_SERVICE_REGION_A_DB_URL"),
			Destination: &cfg.RegionADBURL,
			Usage:       "Region A database connection URL (empty disables the region)",
		},
		&cli.StringFlag{
			Name:        "region-a-mongo-database",
			Category:    "Region A:",
			Sources:     cli.EnvVars("CHAT_SERVICE_REGION_A_MONGO_DATABASE"),
			Destination: &cfg.MongoDatabase,
			Value:       cfg.MongoDatabase,
			Usage:       "Mongo database name for the region A deployment",
		},

		// ── Region B (relational store) ───────────────────────────
		&cli.StringFlag{
			Name:        "region-b-db-kind",
			Category:    "Region B:",
			Sources:     cli.EnvVars("CHAT_SERVICE_REGION_B_DB_KIND"),
			Destination: &cfg.RegionBStoreKind,
			Value:       cfg.RegionBStoreKind,
			Usage:       "Region B backend store (" + strings.Join(registrystore.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "region-b-db-url",
			Category:    "Region B:",
			Sources:     cli.EnvVars("CHAT_SERVICE_REGION_B_DB_URL"),
			Destination: &cfg.RegionBDBURL,
			Usage:       "Region B database connection URL (empty disables the region)",
		},
		&cli.IntFlag{
			Name:        "db-max-open-conns",
			Category:    "Region B:",
			Sources:     cli.EnvVars("CHAT_SERVICE_DB_MAX_OPEN_CONNS"),
			Destination: &cfg.DBMaxOpenConns,
			Value:       cfg.DBMaxOpenConns,
			Usage:       "Maximum number of open database connections per backend",
		},
		&cli.IntFlag{
			Name:        "db-max-idle-conns",
			Category:    "Region B:",
			Sources:     cli.EnvVars("CHAT_SERVICE_DB_MAX_IDLE_CONNS"),
			Destination: &cfg.DBMaxIdleConns,
			Value:       cfg.DBMaxIdleConns,
			Usage:       "Maximum number of idle database connections per backend",
		},

		// ── Cache ─────────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "cache-kind",
			Category:    "Cache:",
			Sources:     cli.EnvVars("CHAT_SERVICE_CACHE_KIND"),
			Destination: &cfg.CacheType,
			Value:       cfg.CacheType,
			Usage:       "Unread-count cache backend (" + strings.Join(registrycache.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "redis-url",
			Category:    "Cache:",
			Sources:     cli.EnvVars("CHAT_SERVICE_REDIS_URL"),
			Destination: &cfg.RedisURL,
			Usage:       "Redis connection URL",
		},
		&cli.DurationFlag{
			Name:        "unread-cache-ttl",
			Category:    "Cache:",
			Sources:     cli.EnvVars("CHAT_SERVICE_UNREAD_CACHE_TTL"),
			Destination: &cfg.UnreadCacheTTL,
			Value:       cfg.UnreadCacheTTL,
			Usage:       "TTL for cached unread counts",
		},
		&cli.DurationFlag{
			Name:        "profile-cache-ttl",
			Category:    "Cache:",
			Sources:     cli.EnvVars("CHAT_SERVICE_PROFILE_CACHE_TTL"),
			Destination: &cfg.ProfileCacheTTL,
			Value:       cfg.ProfileCacheTTL,
			Usage:       "TTL for the in-process profile cache",
		},

		// ── Policy ────────────────────────────────────────────────
		&cli.BoolFlag{
			Name:        "allow-non-contact-direct",
			Category:    "Policy:",
			Sources:     cli.EnvVars("CHAT_SERVICE_ALLOW_NON_CONTACT_DIRECT"),
			Destination: &cfg.AllowNonContactDirect,
			Value:       cfg.AllowNonContactDirect,
			Usage:       "Workspace override: permit (and log) direct sends to non-contacts",
		},

		// ── Authorization ─────────────────────────────────────────
		&cli.StringFlag{
			Name:        "oidc-issuer",
			Category:    "Authorization:",
			Sources:     cli.EnvVars("CHAT_SERVICE_OIDC_ISSUER"),
			Destination: &cfg.OIDCIssuer,
			Usage:       "OIDC issuer URL (enables OIDC auth)",
		},
		&cli.StringFlag{
			Name:        "oidc-discovery-url",
			Category:    "Authorization:",
			Sources:     cli.EnvVars("CHAT_SERVICE_OIDC_DISCOVERY_URL"),
			Destination: &cfg.OIDCDiscoveryURL,
			Usage:       "OIDC discovery URL (internal URL when issuer is not directly reachable)",
		},
		&cli.StringFlag{
			Name:        "oidc-region-claim",
			Category:    "Authorization:",
			Sources:     cli.EnvVars("CHAT_SERVICE_OIDC_REGION_CLAIM"),
			Destination: &cfg.OIDCRegionClaim,
			Value:       cfg.OIDCRegionClaim,
			Usage:       "Token claim carrying the principal's home region",
		},
		&cli.StringFlag{
			Name:        "api-keys",
			Category:    "Authorization:",
			Sources:     cli.EnvVars("CHAT_SERVICE_API_KEYS"),
			Destination: apiKeysCSV,
			Usage:       "Comma-separated key=userID@region API key principals",
		},

		// ── Monitoring ────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "metrics-labels",
			Category:    "Monitoring:",
			Sources:     cli.EnvVars("CHAT_SERVICE_METRICS_LABELS"),
			Destination: &cfg.MetricsLabels,
			Value:       "service=chat-service",
			Usage:       "Comma-separated key=value pairs added as constant labels to all Prometheus metrics. Supports ${VAR} expansion.",
		},
	}
}

func parseAPIKeysCSV(raw string) map[string]string {
	keys := map[string]string{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, principal, ok := strings.Cut(part, "=")
		if !ok || key == "" || principal == "" {
			log.Warn("Ignoring malformed API key entry")
			continue
		}
		keys[key] = principal
	}
	return keys
}

func run(ctx context.Context, cfg config.Config) error {
	srv, err := StartServer(ctx, &cfg)
	if err != nil {
		return err
	}

	<-ctx.Done()
	log.Info("Shutting down...")

	drainCtx, drainCancel := context.WithTimeout(context.Background(), time.Duration(cfg.DrainTimeout)*time.Second)
	defer drainCancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		log.Error("Shutdown error", "err", err)
	}
	log.Info("Server stopped")
	return nil
}

func maxBodySizeMiddleware(maxBodySize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodySize)
		c.Next()
	}
}
