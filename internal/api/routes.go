package api

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rawblock/wallet-risk-engine/internal/service"
	"github.com/rs/zerolog"
)

// RouterConfig carries the HTTP-layer settings.
type RouterConfig struct {
	AllowedOrigins  string // comma list; empty or "*" allows any origin
	AuthToken       string
	RateLimitPerMin int
	RateLimitBurst  int
	DBConnected     bool
	KafkaEnabled    bool
}

type APIHandler struct {
	svc *service.Service
	hub *Hub
	cfg RouterConfig
	log zerolog.Logger
}

// SetupRouter wires middleware and routes. ctx bounds background work
// owned by the router (rate limiter cleanup).
func SetupRouter(ctx context.Context, svc *service.Service, hub *Hub, cfg RouterConfig, log zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(log), corsMiddleware(cfg.AllowedOrigins))

	if cfg.RateLimitPerMin > 0 && cfg.RateLimitBurst > 0 {
		r.Use(NewRateLimiter(ctx, cfg.RateLimitPerMin, cfg.RateLimitBurst).Middleware())
	}

	handler := &APIHandler{svc: svc, hub: hub, cfg: cfg, log: log}
	auth := AuthMiddleware(cfg.AuthToken, log)

	api := r.Group("/api/v1")
	{
		api.GET("/health", handler.handleHealth)
		api.GET("/categories", handler.handleCategories)
		api.GET("/thresholds", handler.handleThresholds)

		api.POST("/evaluate", handler.handleEvaluate)
		api.GET("/wallets/:address/assess", handler.handleAssessWallet)

		api.GET("/history/:address", handler.handleHistory)
		api.GET("/assessments/:id", handler.handleGetAssessment)

		api.GET("/blacklist", handler.handleListBlacklist)
		api.POST("/blacklist", auth, handler.handleAddBlacklist)
		api.DELETE("/blacklist/:address", auth, handler.handleRemoveBlacklist)

		if hub != nil {
			api.GET("/stream", hub.Subscribe)
		}
	}

	return r
}

// corsMiddleware echoes allowed origins. Production:
// ALLOWED_ORIGINS=https://app.example.com; development: leave empty for *.
func corsMiddleware(allowedOrigins string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					c.Writer.Header().Add("Vary", "Origin")
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
