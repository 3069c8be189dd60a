package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/tradepost/tradepost/internal/auth"
	"github.com/tradepost/tradepost/internal/cache"
	"github.com/tradepost/tradepost/internal/handlers"
	"github.com/tradepost/tradepost/internal/middleware"
	"github.com/tradepost/tradepost/internal/realtime"
	"github.com/tradepost/tradepost/internal/services"
	"github.com/tradepost/tradepost/pkg/errors"
	"github.com/tradepost/tradepost/pkg/response"
)

// Dependencies bundles everything the HTTP layer needs.
type Dependencies struct {
	DB            *gorm.DB
	JWT           *auth.JWTService
	Sessions      *auth.SessionService
	Accounts      *services.AccountService
	Listings      *services.ListingService
	Conversations *services.ConversationService
	Orders        *services.OrderService
	Reviews       *services.ReviewService
	Hub           *realtime.Hub
	Cache         cache.Store

	// AuthRateLimit applies to credential endpoints only; the general API
	// is limited separately.
	AuthRateLimit middleware.RateLimitConfig
	APIRateLimit  middleware.RateLimitConfig
}

// NewRouter assembles the gin engine with all routes and middleware.
func NewRouter(deps Dependencies) *gin.Engine {
	engine := gin.New()
	engine.Use(
		middleware.Recovery(),
		middleware.RequestLogger(),
		middleware.Metrics(),
		middleware.SecurityHeaders(),
	)

	authHandler := handlers.NewAuthHandler(deps.Accounts, deps.Sessions)
	profileHandler := handlers.NewProfileHandler(deps.Accounts, deps.Reviews)
	listingHandler := handlers.NewListingHandler(deps.Listings)
	conversationHandler := handlers.NewConversationHandler(deps.Conversations)
	orderHandler := handlers.NewOrderHandler(deps.Orders)
	reviewHandler := handlers.NewReviewHandler(deps.Reviews)
	healthHandler := handlers.NewHealthHandler(deps.DB)
	realtimeHandler := handlers.NewRealtimeHandler(deps.Hub)

	engine.GET("/health", healthHandler.Check)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := engine.Group("/api")
	if deps.Cache != nil {
		api.Use(middleware.RateLimit(deps.Cache, deps.APIRateLimit))
	}

	authGroup := api.Group("/auth")
	if deps.Cache != nil {
		limit := deps.AuthRateLimit
		if limit.Limit <= 0 {
			limit = middleware.RateLimitConfig{Limit: 10, Window: time.Minute}
		}
		authGroup.Use(middleware.RateLimit(deps.Cache, limit))
	}
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/verify-email", authHandler.VerifyEmail)
		authGroup.POST("/resend-code", authHandler.ResendCode)
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/refresh", authHandler.Refresh)
		authGroup.POST("/forgot-password", authHandler.ForgotPassword)
		authGroup.POST("/verify-reset-code", authHandler.VerifyResetCode)
		authGroup.POST("/reset-password", authHandler.ResetPassword)
		authGroup.POST("/logout", middleware.RequireAuth(deps.JWT), authHandler.Logout)
	}

	// Public catalogue and profiles.
	api.GET("/listings", listingHandler.List)
	api.GET("/listings/:id", listingHandler.Get)
	api.GET("/users/:id", profileHandler.PublicProfile)
	api.GET("/users/:id/reviews", reviewHandler.ForUser)

	private := api.Group("")
	private.Use(middleware.RequireAuth(deps.JWT))
	{
		private.GET("/me", profileHandler.Me)
		private.PATCH("/me/username", profileHandler.ChangeUsername)
		private.POST("/me/email-change", profileHandler.RequestEmailChange)
		private.POST("/me/email-change/confirm", profileHandler.ConfirmEmailChange)

		private.POST("/listings", listingHandler.Create)
		private.PATCH("/listings/:id", listingHandler.Update)
		private.DELETE("/listings/:id", listingHandler.Withdraw)

		private.POST("/conversations", conversationHandler.Start)
		private.GET("/conversations", conversationHandler.List)
		private.GET("/conversations/unread", conversationHandler.UnreadCount)
		private.GET("/conversations/:id/messages", conversationHandler.Messages)
		private.POST("/conversations/:id/messages", conversationHandler.Send)
		private.POST("/conversations/:id/read", conversationHandler.MarkRead)

		private.POST("/orders", orderHandler.Checkout)
		private.GET("/orders", orderHandler.List)
		private.GET("/orders/:id", orderHandler.Get)
		private.POST("/orders/:id/pay", orderHandler.Pay)
		private.POST("/orders/:id/ship", orderHandler.Ship)
		private.POST("/orders/:id/deliver", orderHandler.ConfirmDelivery)
		private.POST("/orders/:id/cancel", orderHandler.Cancel)

		private.POST("/reviews", reviewHandler.Submit)

		private.GET("/ws", realtimeHandler.Stream)
	}

	engine.NoRoute(func(c *gin.Context) {
		response.Error(c, errors.ErrNotFound)
	})

	return engine
}
