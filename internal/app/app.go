package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/voyagekit/compass/internal/config"
	"github.com/voyagekit/compass/internal/database"
	"github.com/voyagekit/compass/internal/handlers"
	"github.com/voyagekit/compass/internal/messaging"
	"github.com/voyagekit/compass/internal/middleware"
	"github.com/voyagekit/compass/internal/providers"
	"github.com/voyagekit/compass/internal/services"
	"github.com/voyagekit/compass/internal/validation"
)

type App struct {
	config   *config.Config
	logger   *logrus.Logger
	db       *database.Database
	services *services.Services
	handlers *handlers.Handlers
	router   *gin.Engine

	cancelBackground context.CancelFunc
}

func New(cfg *config.Config) (*App, error) {
	app := &App{
		config: cfg,
		logger: setupLogger(cfg),
	}

	db, err := database.New(cfg, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	validator, err := validation.NewSchemaValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize validator: %w", err)
	}

	metrics := services.NewEngineMetrics(prometheus.DefaultRegisterer)

	engineProviders := services.Providers{
		Catalog:      providers.NewCatalogStore(db.PG, metrics, app.logger),
		Interactions: providers.NewInteractionStore(db.PG, metrics, app.logger),
		Signals:      providers.NewSignalStore(db.PG, metrics, app.logger),
		Graph:        providers.NewSubscriptionGraph(db.Neo4j, metrics, app.logger),
	}

	messageBus, err := messaging.NewMessageBus(cfg, validator, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize message bus: %w", err)
	}

	svc, err := services.New(cfg, app.logger, db, metrics, engineProviders, messageBus)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	app.services = svc

	app.handlers = handlers.New(app.logger, svc, validator)
	app.setupRouter(metrics)

	backgroundCtx, cancel := context.WithCancel(context.Background())
	app.cancelBackground = cancel
	svc.Start(backgroundCtx)

	return app, nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("Shutting down application...")

	a.cancelBackground()
	a.services.Stop()

	a.db.Close()

	return nil
}

func setupLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}

func (a *App) setupRouter(metrics *services.EngineMetrics) {
	if a.config.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(middleware.Logger(a.logger))
	router.Use(middleware.Recovery(a.logger))
	router.Use(middleware.CORS(a.config))
	router.Use(middleware.RequestMetrics(metrics))

	router.GET("/health", a.handlers.Health.Check)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	{
		api.GET("/recommendations/:actorId", a.handlers.Recommendation.Get)
		api.GET("/influence/:nodeId", a.handlers.Influence.Get)
		api.GET("/discovery/:actorId", a.handlers.Discovery.Get)
		api.POST("/signals", a.handlers.Signal.Ingest)

		admin := api.Group("/admin")
		{
			admin.POST("/recompute", a.handlers.Admin.Recompute)
		}
	}

	a.router = router
}
