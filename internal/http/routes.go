package http

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Options carries the transport settings from config.
type Options struct {
	CORSOrigin   string
	AdminToken   string
	SwipeRPS     float64
	SwipeBurst   int
	MessageRPS   float64
	MessageBurst int
}

// SetupRoutes configures all application routes and middleware. It returns
// the rate limiters so the scheduler can prune them.
func SetupRoutes(router *gin.Engine, env *Env, opts Options) []*RateLimiter {
	router.Use(SecurityHeadersMiddleware())

	corsOrigin := opts.CORSOrigin
	if corsOrigin == "" {
		corsOrigin = "*"
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{corsOrigin},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Admin-Token", "X-User-ID", "Idempotency-Key"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: corsOrigin != "*",
	}))

	swipeLimiter := NewRateLimiter(rate.Limit(opts.SwipeRPS), opts.SwipeBurst)
	messageLimiter := NewRateLimiter(rate.Limit(opts.MessageRPS), opts.MessageBurst)

	router.GET("/health", env.Health)

	api := router.Group("/api")
	api.POST("/referrals", AdminAuthMiddleware(opts.AdminToken), env.ApplyReferral)

	user := api.Group("", CallerMiddleware())
	{
		user.GET("/feed", env.GetFeed)
		user.POST("/jobs", env.CreateJob)
		user.GET("/unlocked", env.GetUnlocked)
		user.GET("/quota", env.GetQuota)
		user.POST("/swipes", RateLimitMiddleware(swipeLimiter), env.CreateSwipe)

		user.GET("/referrals/stats", env.GetReferralStats)

		user.POST("/messages", RateLimitMiddleware(messageLimiter), env.SendMessage)
		user.GET("/conversations", env.GetConversations)
		user.GET("/conversations/:id/messages", env.GetHistory)
		user.POST("/conversations/:id/read", env.OpenConversation)
		user.GET("/unread", env.GetUnread)
		user.GET("/sync", env.Sync)
		user.GET("/presence/:id", env.GetPresence)
	}

	router.GET("/ws", env.ServeWs)

	return []*RateLimiter{swipeLimiter, messageLimiter}
}
