package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/MahyudeenShahid/trade-analysis/internal/engine"
	"github.com/MahyudeenShahid/trade-analysis/internal/events"
	"github.com/MahyudeenShahid/trade-analysis/internal/monitor"
	"github.com/MahyudeenShahid/trade-analysis/internal/persistence"
	"github.com/MahyudeenShahid/trade-analysis/internal/state"
	"github.com/MahyudeenShahid/trade-analysis/pkg/cache"
	"github.com/MahyudeenShahid/trade-analysis/pkg/config"
	"github.com/MahyudeenShahid/trade-analysis/pkg/db"
)

// Server wires HTTP endpoints around the engine and its stores.
type Server struct {
	Router   *gin.Engine
	Engine   *engine.Engine
	Store    *state.Manager
	DB       *db.Database
	Bus      *events.Bus
	Cache    *cache.TickCache
	Metrics  *monitor.Metrics
	Recorder *persistence.Recorder
	Cfg      *config.Config
	Log      zerolog.Logger
	Meta     SystemMeta
}

// SystemMeta describes runtime identity exposed on /health and WS frames.
type SystemMeta struct {
	NodeID      string
	Version     string
	UseMockFeed bool
	StartedAt   time.Time
}

func NewServer(eng *engine.Engine, database *db.Database, bus *events.Bus, tickCache *cache.TickCache, metrics *monitor.Metrics, recorder *persistence.Recorder, cfg *config.Config, meta SystemMeta, logger zerolog.Logger) *Server {
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger(logger, metrics))
	r.Use(RateLimitMiddleware(cfg.RateLimitRPS, cfg.RateLimitBurst))
	r.Use(TimeoutMiddleware(30 * time.Second))
	r.Use(corsMiddleware(cfg.CORSOrigins))

	s := &Server{
		Router:   r,
		Engine:   eng,
		Store:    eng.Store(),
		DB:       database,
		Bus:      bus,
		Cache:    tickCache,
		Metrics:  metrics,
		Recorder: recorder,
		Cfg:      cfg,
		Log:      logger,
		Meta:     meta,
	}
	s.routes()
	return s
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	c := cors.DefaultConfig()
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	c.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	c.AllowHeaders = append(c.AllowHeaders, "Authorization", "X-Request-ID")
	c.ExposeHeaders = []string{"X-Total-Count", "X-Request-ID"}
	return cors.New(c)
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)
	s.Router.Static("/uploads", s.Cfg.UploadsDir)

	api := s.Router.Group("/api")
	{
		// Auth endpoints (no auth required)
		auth := api.Group("/auth")
		{
			auth.POST("/token", s.issueToken)
		}

		// Protected API
		protected := api.Group("")
		protected.Use(AuthMiddleware(s.Cfg.APIKey, s.Cfg.JWTSecret))
		{
			protected.POST("/ingest", s.ingest)

			protected.GET("/bots", s.listBots)
			protected.GET("/bots/:window_id", s.getBot)
			protected.DELETE("/bots/:window_id", s.deleteBot)
			protected.GET("/bots/:window_id/config", s.getBotConfig)
			protected.PUT("/bots/:window_id/config", s.updateBotConfig)

			protected.GET("/trades", s.listTrades)
			protected.GET("/trades/summary", s.tradeSummary)
			protected.POST("/trades/manual", s.manualTrade)
			protected.POST("/trades/close_all", s.closeAllTrades)

			protected.GET("/latest", s.latestTicks)
			protected.GET("/history", s.listObservations)

			protected.GET("/metrics", s.getMetrics)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"node_id":        s.Meta.NodeID,
		"version":        s.Meta.Version,
		"mock_feed":      s.Meta.UseMockFeed,
		"uptime_seconds": int64(time.Since(s.Meta.StartedAt).Seconds()),
		"server_time":    time.Now().UTC(),
	})
}

func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
