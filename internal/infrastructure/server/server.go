// Package server wires the service together: configuration, logging,
// metrics, the domain registries and managers, and the HTTP and
// WebSocket surface.
package server

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/lumena-io/glasscloud/internal/api/http"
	"github.com/lumena-io/glasscloud/internal/api/middleware"
	"github.com/lumena-io/glasscloud/internal/api/ws"
	"github.com/lumena-io/glasscloud/internal/dispatch"
	"github.com/lumena-io/glasscloud/internal/domain/apps"
	"github.com/lumena-io/glasscloud/internal/domain/session"
	"github.com/lumena-io/glasscloud/internal/domain/subscription"
	"github.com/lumena-io/glasscloud/internal/infrastructure/config"
	"github.com/lumena-io/glasscloud/internal/infrastructure/logging"
	"github.com/lumena-io/glasscloud/internal/infrastructure/monitoring"
	"github.com/lumena-io/glasscloud/internal/infrastructure/tracing"
	"github.com/lumena-io/glasscloud/internal/shared/types"
	"github.com/lumena-io/glasscloud/internal/webhook"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Server wraps the HTTP router and the shared service state.
type Server struct {
	router   *gin.Engine
	sessions *session.Manager
	subs     *subscription.Registry
	apps     *apps.Registry
	notifier *webhook.Notifier
	logger   *logging.Logger
	config   *config.Config
	metrics  *monitoring.Metrics
}

// NewServer creates a fully wired server instance.
func NewServer(cfg *config.Config) (*Server, error) {
	logCfg := logging.DefaultConfig()
	if cfg.Logging.Development {
		logCfg = logging.DevelopmentConfig()
	}
	if cfg.Logging.Level != "" {
		logCfg.Level = cfg.Logging.Level
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	logger.Info("Initializing GlassCloud server",
		zap.String("host", cfg.Server.Host),
		zap.String("port", cfg.Server.Port),
	)

	metrics := monitoring.NewMetrics()
	tracer := tracing.New("glasscloud", logger.Logger)

	// App catalog: the manifest first, then the built-in system apps.
	appsReg := apps.NewRegistry(logger)
	if _, err := appsReg.LoadManifest(cfg.Apps.ManifestPath); err != nil {
		logger.Warn("Failed to load app manifest", zap.Error(err))
	}
	appsReg.SeedDefaults(cfg.Apps.DashboardPackage, cfg.Apps.CorePackage)

	subs := subscription.NewRegistry(appsReg, logger, metrics)
	subs.SetSink(&languageLogSink{log: logger})

	hookClient := webhook.NewClient(cfg.Webhook, logger, metrics)
	notifier := webhook.NewNotifier(hookClient, appsReg, logger)

	sessions := session.NewManager(session.ManagerOptions{
		Display:       cfg.Display,
		Photo:         cfg.Photo,
		Apps:          cfg.Apps,
		Registry:      appsReg,
		Subscriptions: subs,
		Notifier:      notifier,
		Log:           logger,
		Metrics:       metrics,
	})

	dispatcher := dispatch.New(dispatch.Options{
		Subs:    subs,
		Apps:    appsReg,
		Hooks:   notifier,
		Tracer:  tracer,
		Log:     logger,
		Metrics: metrics,
	})

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(cfg.RateLimit))
	}

	handlers := http.NewHandlers(sessions, subs, appsReg, metrics, Version)
	wsHandler := ws.NewHandler(sessions, dispatcher, logger, metrics)

	// WebSocket endpoints
	router.GET("/glasses-ws", wsHandler.HandleGlasses)
	router.GET("/tpa-ws", wsHandler.HandleTpa)

	// Introspection
	router.GET("/health", handlers.Health)
	router.GET("/status", handlers.Status)
	router.GET("/sessions", handlers.ListSessions)
	router.GET("/sessions/:id", handlers.GetSession)
	router.GET("/sessions/:id/subscriptions", handlers.GetSubscriptions)
	router.GET("/sessions/:id/subscriptions/export", handlers.ExportHistory)
	router.GET("/apps", handlers.ListApps)

	// Prometheus metrics
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	logger.Info("Server initialized",
		zap.Int("registered_apps", appsReg.Count()),
	)

	return &Server{
		router:   router,
		sessions: sessions,
		subs:     subs,
		apps:     appsReg,
		notifier: notifier,
		logger:   logger,
		config:   cfg,
		metrics:  metrics,
	}, nil
}

// Run starts the HTTP server and blocks until it exits.
func (s *Server) Run() error {
	addr := s.config.Server.Host + ":" + s.config.Server.Port
	s.logger.Info("Starting HTTP server", zap.String("addr", addr))
	return s.router.Run(addr)
}

// Router exposes the underlying gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Close tears down every live session, waits for in-flight webhook
// deliveries and flushes the logger.
func (s *Server) Close() error {
	s.logger.Info("Shutting down server",
		zap.Int("sessions", s.sessions.Count()),
	)
	s.sessions.EndAll()
	s.notifier.Close()
	s.logger.Sync()
	return nil
}

// languageLogSink records minimal language-set changes. The upstream
// recognition integration will hang off this hook; until then operators
// can see what it would be asked to run.
type languageLogSink struct {
	log *logging.Logger
}

func (s *languageLogSink) LanguageSubscriptionsChanged(sessionID string, selectors []types.Selector) {
	streams := make([]string, len(selectors))
	for i, sel := range selectors {
		streams[i] = string(sel)
	}
	s.log.Info("Language stream set changed",
		zap.String("session_id", sessionID),
		zap.Strings("streams", streams),
	)
}
