package api

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/irfndi/stockcast-go/internal/api/handlers"
	"github.com/irfndi/stockcast-go/internal/middleware"
	"github.com/irfndi/stockcast-go/pkg/interfaces"
)

// RouterConfig collects what the results API needs.
type RouterConfig struct {
	ServiceName    string
	Version        string
	AllowedOrigins []string
	Store          interfaces.ReportStore
	Health         map[string]handlers.HealthChecker
	Logger         *logrus.Logger
}

// NewRouter builds a gin engine with recovery, tracing, request logging and
// CORS installed.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(middleware.RequestLogger(cfg.Logger))
	router.Use(middleware.CORS(cfg.AllowedOrigins))

	SetupRoutes(router, cfg)
	return router
}

func SetupRoutes(router *gin.Engine, cfg RouterConfig) {
	health := handlers.NewHealthHandler(cfg.Health, cfg.Version)
	router.GET("/health", health.HealthCheck)

	predictions := handlers.NewPredictionHandler(cfg.Store, cfg.Logger)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/predictions", predictions.GetPredictions)
		v1.GET("/predictions/:item", predictions.GetPrediction)
		v1.GET("/summary", predictions.GetSummary)
	}
}
