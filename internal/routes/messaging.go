package routes

import (
	"strings"

	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/internal/handlers"
	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/internal/middleware"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Options carries everything the router needs.
type Options struct {
	Handler        *handlers.Handler
	Resolver       middleware.PrincipalResolver
	Limits         middleware.Limits
	AllowedOrigins []string

	// Socket mounts the realtime endpoint when set.
	Socket gin.HandlerFunc

	DB    *gorm.DB
	Redis redis.Cmdable
	// Connections is reported by /health when set.
	Connections handlers.ConnectionCounter
}

// NewRouter builds the gin engine with the middleware chain and every route.
func NewRouter(opts Options) *gin.Engine {
	r := gin.New()

	r.Use(middleware.LoggingMiddleware())
	r.Use(middleware.ErrorHandlerMiddleware())
	r.Use(gin.Recovery())
	r.Use(middleware.CORSMiddleware(opts.AllowedOrigins...))
	r.Use(middleware.SecurityHeaders())

	// The socket.io transport polls frequently; it is exempt from the
	// general limiter.
	if opts.Limits.General != nil {
		general := middleware.RateLimitMiddleware(opts.Limits.General, middleware.ByIP)
		r.Use(func(c *gin.Context) {
			if strings.HasPrefix(c.Request.URL.Path, "/socket.io/") {
				c.Next()
				return
			}
			general(c)
		})
	}

	if opts.DB != nil {
		r.GET("/health", handlers.Health(opts.DB, opts.Redis, opts.Connections))
	}

	api := r.Group("/api")
	api.Use(middleware.AuthMiddleware(opts.Resolver))
	RegisterMessagingRoutes(api, opts.Handler, opts.Limits.Chat)

	if opts.Socket != nil {
		r.GET("/socket.io/*any", opts.Socket)
		r.POST("/socket.io/*any", opts.Socket)
	}
	return r
}

// RegisterMessagingRoutes mounts the conversation and message endpoints on
// an authenticated group. chat may be nil to disable the send limiter.
func RegisterMessagingRoutes(r gin.IRouter, h *handlers.Handler, chat *middleware.RateLimiter) {
	send := []gin.HandlerFunc{h.SendMessage}
	if chat != nil {
		send = append([]gin.HandlerFunc{middleware.RateLimitMiddleware(chat, middleware.ByMember)}, send...)
	}

	conversations := r.Group("/conversations")
	{
		conversations.GET("", h.ListConversations)
		conversations.POST("/:id", h.StartConversation)
		conversations.GET("/:id/messages", h.ListMessages)
		conversations.POST("/:id/messages", send...)
		conversations.POST("/:id/archive", h.ToggleConversationArchive)
		conversations.DELETE("/:id", h.DeleteConversation)
	}

	messages := r.Group("/messages")
	{
		messages.POST("/read", h.MarkRead)
		messages.GET("/unread-count", h.UnreadCount)
		messages.POST("/:id/read", h.ToggleRead)
		messages.POST("/:id/archive", h.ToggleArchive)
		messages.POST("/:id/star", h.ToggleStar)
		messages.POST("/:id/tag", h.TagMessage)
		messages.DELETE("/:id", h.DeleteMessage)
	}
}
