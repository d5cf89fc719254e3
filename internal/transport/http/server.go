package http

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"docqa/internal/app"
	"docqa/internal/config"
	"docqa/internal/metrics"
	"docqa/internal/transport/http/handler"
	"docqa/internal/transport/http/middleware"
)

// Deps is everything the router needs. Gatherer backs /metrics and may be
// nil to leave the endpoint out.
type Deps struct {
	Config       *config.Config
	Documents    *app.DocumentService
	QA           *app.QAService
	Cache        handler.CacheStatter
	Info         handler.ServiceInfo
	Dependencies []handler.Dependency
	Metrics      *metrics.Metrics
	Gatherer     prometheus.Gatherer
	Logger       *slog.Logger
}

// NewRouter builds the gin engine. The returned stop function ends the rate
// limiter eviction goroutines.
func NewRouter(d Deps) (*gin.Engine, func()) {
	cfg := d.Config
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	gin.SetMode(cfg.App.GinMode)
	router := gin.New()
	router.Use(
		middleware.RequestLogger(d.Logger, d.Metrics),
		middleware.Recovery(),
		middleware.SecurityHeaders(),
		middleware.BodyLimit(int64(cfg.Upload.MaxRequestSizeMB)<<20),
	)

	healthHandler := handler.NewHealthHandler(d.Info, d.Cache, d.Dependencies...)
	router.GET("/healthz", healthHandler.Check)
	if d.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	tokenHandler := handler.NewTokenHandler(
		cfg.Auth.JWTSecret,
		time.Duration(cfg.Auth.JWTExpireMinute)*time.Minute,
	)
	documentHandler := handler.NewDocumentHandler(d.Documents, int64(cfg.Upload.MaxFileSizeMB)<<20)
	qaHandler := handler.NewQAHandler(d.QA)
	monitoringHandler := handler.NewMonitoringHandler(d.Cache)

	var stops []func()
	limit := func(perMinute int) gin.HandlerFunc {
		if !cfg.RateLimit.Enabled {
			return func(c *gin.Context) { c.Next() }
		}
		rl, stop := middleware.NewRateLimiter(perMinute)
		stops = append(stops, stop)
		return rl.Handler()
	}
	rl := cfg.RateLimit

	v1 := router.Group("/api/v1")
	v1.POST("/token", tokenHandler.Issue)

	api := v1.Group("")
	api.Use(middleware.AuthJWT(cfg.Auth.JWTSecret))
	api.POST("/session", limit(rl.SessionPerMinute), documentHandler.CreateSession)
	api.POST("/upload", limit(rl.UploadPerMinute), documentHandler.Upload)
	api.GET("/session/:id", limit(rl.ReadPerMinute), documentHandler.GetSession)
	api.DELETE("/session/:id", limit(rl.SessionPerMinute), documentHandler.DeleteSession)
	api.POST("/ask", limit(rl.AskPerMinute), qaHandler.Ask)
	api.POST("/ask-detailed", limit(rl.AskPerMinute), qaHandler.AskDetailed)

	api.GET("/rag/:id/stats", qaHandler.IndexStats)
	api.POST("/rag/:id/search", limit(rl.AskPerMinute), qaHandler.Search)
	api.GET("/health/detailed", healthHandler.Detailed)
	api.GET("/models/status", healthHandler.ModelsStatus)
	api.GET("/cache/stats", monitoringHandler.CacheStats)
	api.GET("/sessions/count", documentHandler.CountSessions)

	return router, func() {
		for _, stop := range stops {
			stop()
		}
	}
}
