package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"bms-monitor/config"
	"bms-monitor/internal/analytics"
	"bms-monitor/internal/ingest"
	"bms-monitor/internal/storage"
	"bms-monitor/internal/weather"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Ingestor accepts reading batches (see internal/ingest).
type Ingestor interface {
	Ingest(ctx context.Context, batch ingest.Batch) (*ingest.Result, error)
}

// Summarizer produces analytics payloads (see internal/analytics).
type Summarizer interface {
	Summarize(ctx context.Context, q analytics.Query) analytics.Result
}

// SiteStore is the slice of the storage layer the site views need.
type SiteStore interface {
	ListSites(ctx context.Context) ([]storage.Site, error)
	GetSite(ctx context.Context, siteID uint) (*storage.Site, error)
	LatestReadingTimes(ctx context.Context) (map[uint]time.Time, error)
	OpenAlertCounts(ctx context.Context) (map[uint]storage.AlertCounts, error)
	Ping(ctx context.Context) error
}

type Server struct {
	router  *gin.Engine
	server  *http.Server
	ingest  Ingestor
	engine  Summarizer
	sites   SiteStore
	port    int
	started time.Time

	weatherMu    sync.Mutex
	weather      weather.Provider
	weatherCache map[uint]cachedWeather
}

type ServerConfig struct {
	Port     int
	Ingestor Ingestor
	Engine   Summarizer
	Sites    SiteStore
	Weather  *config.WeatherConfig
}

func NewServer(cfg ServerConfig) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.Logger())
	router.Use(requestID())

	s := &Server{
		router:       router,
		ingest:       cfg.Ingestor,
		engine:       cfg.Engine,
		sites:        cfg.Sites,
		port:         cfg.Port,
		started:      time.Now(),
		weatherCache: make(map[uint]cachedWeather),
	}

	if cfg.Weather != nil && cfg.Weather.Enabled {
		s.weather = weather.NewProvider(*cfg.Weather)
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// Health check
	s.router.GET("/health", s.healthHandler)

	// API routes
	api := s.router.Group("/api/v1")
	{
		api.POST("/ingest", s.ingestHandler)
		api.GET("/ingest", s.ingestInfoHandler)
		api.GET("/analytics", s.analyticsHandler)
		api.GET("/sites", s.sitesHandler)
		api.GET("/sites/:id/weather", s.siteWeatherHandler)
	}
}

// requestID tags every request so ingestion batches can be traced in logs.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.router,
	}

	log.Printf("API server starting on port %d", s.port)
	return s.server.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthHandler(c *gin.Context) {
	status := "healthy"
	if err := s.sites.Ping(c.Request.Context()); err != nil {
		status = "degraded"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":         status,
		"uptime_seconds": int(time.Since(s.started).Seconds()),
		"timestamp":      time.Now().UTC(),
	})
}
