// Package api exposes a read-only diagnostic HTTP surface over the engine:
// health, status, per-symbol bias and findings, recent signals, and a
// websocket stream of the event bus.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"smc-signal-engine/config"
	"smc-signal-engine/internal/cache"
	"smc-signal-engine/internal/engine"
	"smc-signal-engine/internal/events"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RateLimiter provides simple in-memory rate limiting per endpoint
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	limit    int           // max requests
	window   time.Duration // time window
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// Allow checks if a request is allowed for the given key
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-r.window)

	var recent []time.Time
	for _, t := range r.requests[key] {
		if t.After(windowStart) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= r.limit {
		r.requests[key] = recent
		return false
	}

	r.requests[key] = append(recent, now)
	return true
}

// Server is the diagnostic HTTP server.
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	engine      *engine.Engine
	cacheStats  func() cache.Stats // nil when Redis is disabled
	eventBus    *events.EventBus
	config      config.ServerConfig
	rateLimiter *RateLimiter
	logger      zerolog.Logger
	hub         *WSHub
}

// NewServer creates the API server and registers routes. cacheStats may be
// nil when the Redis cache is disabled.
func NewServer(cfg config.ServerConfig, eng *engine.Engine, eventBus *events.EventBus, cacheStats func() cache.Stats, logger zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if cfg.AllowedOrigins == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = strings.Split(cfg.AllowedOrigins, ",")
	}
	corsConfig.AllowMethods = []string{"GET", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type"}
	router.Use(cors.New(corsConfig))

	server := &Server{
		router:      router,
		engine:      eng,
		cacheStats:  cacheStats,
		eventBus:    eventBus,
		config:      cfg,
		rateLimiter: NewRateLimiter(120, time.Minute),
		logger:      logger.With().Str("component", "api").Logger(),
	}

	server.hub = NewWSHub(server.logger)
	go server.hub.Run()
	eventBus.SubscribeAll(server.hub.BroadcastEvent)

	server.setupRoutes()

	return server
}

func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		if !s.rateLimiter.Allow(path) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
				"path":  path,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/ws", s.handleWebSocket)

	apiGroup := s.router.Group("/api")
	apiGroup.Use(s.rateLimitMiddleware())
	{
		apiGroup.GET("/status", s.handleStatus)
		apiGroup.GET("/signals", s.handleSignals)
		apiGroup.GET("/bias/:symbol", s.handleBias)
		apiGroup.GET("/findings/:symbol", s.handleFindings)
	}
}

// Start runs the HTTP server in the background.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
	}

	go func() {
		s.logger.Info().Str("addr", s.httpServer.Addr).Msg("api server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("api server failed")
		}
	}()

	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
