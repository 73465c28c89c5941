// Package api exposes the engines over HTTP with gin.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focus_guard/internal/domain"
	"github.com/eliteGoblin/focusd/focus_guard/internal/usecase"
)

const requestIDKey = "request_id"

// Services are the engines behind the API.
type Services struct {
	Blocks     *usecase.BlockListEngine
	Sessions   *usecase.FocusSessionEngine
	Challenges *usecase.ChallengeEngine
	Unlocks    *usecase.UnlockOrchestrator
	Clock      domain.Clock

	// DefaultSessionDuration is used when a start request omits the duration.
	DefaultSessionDuration time.Duration
}

// Handlers holds the HTTP handlers.
type Handlers struct {
	svc    Services
	logger *zap.Logger
}

func NewHandlers(svc Services, logger *zap.Logger) *Handlers {
	return &Handlers{svc: svc, logger: logger}
}

// NewRouter builds the gin engine with middleware and all routes.
func NewRouter(h *Handlers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestIDMiddleware(), h.accessLog())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	RegisterRoutes(r.Group("/api/v1"), h)
	return r
}

// RegisterRoutes registers the owner-scoped routes under rg.
//
//	POST   /owners/:owner/blocks
//	GET    /owners/:owner/blocks?search=&category=
//	DELETE /owners/:owner/blocks
//	POST   /owners/:owner/blocks/import
//	GET    /owners/:owner/blocks/categories
//	GET    /owners/:owner/blocks/check?url=
//	GET    /owners/:owner/blocks/stats
//	GET    /owners/:owner/blocks/context
//	DELETE /owners/:owner/blocks/:id
//	POST   /owners/:owner/blocks/:id/toggle
//	PUT    /owners/:owner/blocks/:id/category
//
//	POST /owners/:owner/sessions
//	GET  /owners/:owner/sessions/active
//	GET  /owners/:owner/sessions/history?limit=&offset=
//	POST /owners/:owner/sessions/:id/pause
//	POST /owners/:owner/sessions/:id/resume
//	POST /owners/:owner/sessions/:id/end
//
//	POST   /owners/:owner/unlock/challenge
//	POST   /owners/:owner/unlock/answer
//	POST   /owners/:owner/unlock/skip
//	GET    /owners/:owner/unlocks
//	DELETE /owners/:owner/unlocks?url=
//	GET    /owners/:owner/challenges/stats
func RegisterRoutes(rg *gin.RouterGroup, h *Handlers) {
	owner := rg.Group("/owners/:owner")

	blocks := owner.Group("/blocks")
	blocks.POST("", h.HandleAddBlock)
	blocks.GET("", h.HandleListBlocks)
	blocks.DELETE("", h.HandleClearBlocks)
	blocks.POST("/import", h.HandleImportBlocks)
	blocks.GET("/categories", h.HandleCategories)
	blocks.GET("/check", h.HandleCheck)
	blocks.GET("/stats", h.HandleBlockStats)
	blocks.GET("/context", h.HandleBlockingContext)
	blocks.DELETE("/:id", h.HandleRemoveBlock)
	blocks.POST("/:id/toggle", h.HandleTogglePermanent)
	blocks.PUT("/:id/category", h.HandleUpdateCategory)

	sessions := owner.Group("/sessions")
	sessions.POST("", h.HandleStartSession)
	sessions.GET("/active", h.HandleActiveSession)
	sessions.GET("/history", h.HandleSessionHistory)
	sessions.POST("/:id/pause", h.HandlePauseSession)
	sessions.POST("/:id/resume", h.HandleResumeSession)
	sessions.POST("/:id/end", h.HandleEndSession)

	owner.POST("/unlock/challenge", h.HandleRequestChallenge)
	owner.POST("/unlock/answer", h.HandleSubmitAnswer)
	owner.POST("/unlock/skip", h.HandleSkipChallenge)
	owner.GET("/unlocks", h.HandleListUnlocks)
	owner.DELETE("/unlocks", h.HandleRelock)
	owner.GET("/challenges/stats", h.HandleChallengeStats)
}

// requestIDMiddleware echoes X-Request-ID, generating one when absent.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func requestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

func (h *Handlers) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.logger.Debug("request",
			zap.String("request_id", requestID(c)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
