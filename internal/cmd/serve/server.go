package serve

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/workstream-im/chat-service/internal/config"
	"github.com/workstream-im/chat-service/internal/directory"
	"github.com/workstream-im/chat-service/internal/messages"
	"github.com/workstream-im/chat-service/internal/model"
	routecontacts "github.com/workstream-im/chat-service/internal/plugin/route/contacts"
	routeconversations "github.com/workstream-im/chat-service/internal/plugin/route/conversations"
	routemessages "github.com/workstream-im/chat-service/internal/plugin/route/messages"
	routesystem "github.com/workstream-im/chat-service/internal/plugin/route/system"
	storemetrics "github.com/workstream-im/chat-service/internal/plugin/store/metrics"
	"github.com/workstream-im/chat-service/internal/profile"
	"github.com/workstream-im/chat-service/internal/region"
	registrycache "github.com/workstream-im/chat-service/internal/registry/cache"
	registrymigrate "github.com/workstream-im/chat-service/internal/registry/migrate"
	registryroute "github.com/workstream-im/chat-service/internal/registry/route"
	registrystore "github.com/workstream-im/chat-service/internal/registry/store"
	"github.com/workstream-im/chat-service/internal/rules"
	"github.com/workstream-im/chat-service/internal/security"
	"github.com/workstream-im/chat-service/internal/unread"
)

// Server holds the running server and its subsystems.
type Server struct {
	Config          *config.Config
	Regions         *region.Router
	Router          *gin.Engine
	Profiles        *profile.Resolver
	Running         *RunningServer
	closeManagement func(context.Context) error
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.closeManagement != nil {
		_ = s.closeManagement(ctx)
	}
	err := s.Running.Close(ctx)
	s.Profiles.Close()
	return err
}

// StartServer initializes all subsystems and starts the HTTP server.
// Use cfg.Listener.Port=0 for a random port. Actual port: Server.Running.Port.
func StartServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	log.Info("Starting chat service",
		"httpPort", cfg.Listener.Port,
		"regionA", cfg.RegionAStoreKind,
		"regionB", cfg.RegionBStoreKind,
		"cache", cfg.CacheType,
	)

	// Initialize Prometheus metrics with configured constant labels.
	metricsLabels, err := security.ParseMetricsLabels(cfg.MetricsLabels)
	if err != nil {
		return nil, fmt.Errorf("invalid --metrics-labels: %w", err)
	}
	security.InitMetrics(metricsLabels)

	// Run migrations
	if err := registrymigrate.RunAll(ctx); err != nil {
		return nil, fmt.Errorf("migrations failed: %w", err)
	}

	// Initialize the unread-count cache.
	var unreadCache registrycache.UnreadCache
	if cacheLoader, err := registrycache.Select(cfg.CacheType); err != nil {
		return nil, err
	} else if unreadCache, err = cacheLoader(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}

	// Mount a backend adapter per configured region.
	regions := region.NewRouter()
	if cfg.RegionADBURL != "" {
		st, err := loadStore(ctx, cfg.RegionAStoreKind, cfg.RegionADBURL, model.RegionA)
		if err != nil {
			return nil, err
		}
		regions.Mount(model.RegionA, st)
	}
	if cfg.RegionBDBURL != "" {
		st, err := loadStore(ctx, cfg.RegionBStoreKind, cfg.RegionBDBURL, model.RegionB)
		if err != nil {
			return nil, err
		}
		regions.Mount(model.RegionB, st)
	}
	if len(regions.Regions()) == 0 {
		return nil, fmt.Errorf("no regional backend configured: set --region-a-db-url and/or --region-b-db-url")
	}
	log.Info("Regional backends mounted", "regions", regions.Regions())

	profiles, err := profile.NewResolver(cfg.ProfileCacheSize, cfg.ProfileCacheTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize profile cache: %w", err)
	}

	aggregator := unread.New(unreadCache, cfg.UnreadCacheTTL)
	policy := rules.Policy{AllowNonContactDirect: cfg.AllowNonContactDirect}
	directorySvc := &directory.Service{Router: regions, Unread: aggregator, Profiles: profiles}
	messageSvc := messages.NewService(regions, policy, aggregator)

	// Set up gin
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.ManagementAccessLog {
		router.Use(security.AccessLogMiddleware())
	} else {
		router.Use(security.AccessLogMiddleware("/health", "/ready", "/metrics"))
	}
	router.Use(security.MetricsMiddleware())
	router.Use(maxBodySizeMiddleware(cfg.MaxBodySize))
	if cfg.CORSEnabled {
		router.Use(corsMiddleware(cfg.CORSOrigins))
	}

	// Create shared token resolver and auth middleware.
	resolver := security.NewTokenResolver(cfg)
	auth := security.AuthMiddleware(resolver)

	// Mount API routes
	routeconversations.MountRoutes(router, directorySvc, auth)
	routemessages.MountRoutes(router, messageSvc, auth)
	routecontacts.MountRoutes(router, regions, auth)

	// Mount the operational route plugins. If a dedicated management port is
	// configured, run them on a bare gin engine served separately. Otherwise,
	// mount them on the main router so single-port behaviour is unchanged.
	var closeManagement func(context.Context) error
	if cfg.ManagementListenerEnabled {
		mgmtRouter := gin.New()
		mgmtRouter.Use(gin.Recovery())
		if cfg.ManagementAccessLog {
			mgmtRouter.Use(security.AccessLogMiddleware())
		}
		for _, loader := range registryroute.Loaders() {
			if err := loader(mgmtRouter); err != nil {
				return nil, fmt.Errorf("failed to load management routes: %w", err)
			}
		}
		// Management listener shares TLS cert/key with the main listener.
		mgmtCfg := cfg.ManagementListener
		mgmtCfg.TLSCertFile = cfg.Listener.TLSCertFile
		mgmtCfg.TLSKeyFile = cfg.Listener.TLSKeyFile
		var mgmt *RunningServer
		mgmt, err = StartHTTPServer(mgmtCfg, mgmtRouter)
		if err != nil {
			return nil, fmt.Errorf("failed to start management server: %w", err)
		}
		log.Info("Management server listening", "port", mgmt.Port)
		closeManagement = mgmt.Close
	} else {
		for _, loader := range registryroute.Loaders() {
			if err := loader(router); err != nil {
				return nil, fmt.Errorf("failed to load management routes: %w", err)
			}
		}
	}

	running, err := StartHTTPServer(cfg.Listener, router)
	if err != nil {
		return nil, err
	}

	log.Info("Server listening", "port", running.Port, "tls", cfg.Listener.EnableTLS)

	routesystem.MarkReady()
	return &Server{
		Config:          cfg,
		Regions:         regions,
		Router:          router,
		Profiles:        profiles,
		Running:         running,
		closeManagement: closeManagement,
	}, nil
}

// loadStore selects and loads one regional backend, wrapped with latency
// metrics.
func loadStore(ctx context.Context, kind, dbURL string, reg model.Region) (registrystore.ChatStore, error) {
	loader, err := registrystore.Select(kind)
	if err != nil {
		return nil, err
	}
	st, err := loader(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize region %s store: %w", reg, err)
	}
	return storemetrics.Wrap(st, reg), nil
}
