package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/internal/database"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// ConnectionCounter reports the realtime connections held by this instance
// and the members behind them.
type ConnectionCounter interface {
	Count() int
	Online() []string
}

// Health checks the database and, when configured, Redis. Only a database
// failure turns the answer into 503. sockets may be nil.
func Health(db *gorm.DB, rdb redis.Cmdable, sockets ConnectionCounter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		dbStatus := "ok"
		if err := database.Ping(ctx, db); err != nil {
			dbStatus = "error"
		}

		redisStatus := "not configured"
		if rdb != nil {
			redisStatus = "ok"
			if err := rdb.Ping(ctx).Err(); err != nil {
				redisStatus = "error"
			}
		}

		status := "ok"
		code := http.StatusOK
		if dbStatus != "ok" {
			status = "down"
			code = http.StatusServiceUnavailable
		} else if redisStatus == "error" {
			status = "degraded"
		}

		body := gin.H{
			"status": status,
			"checks": gin.H{
				"database": dbStatus,
				"redis":    redisStatus,
			},
		}
		if sockets != nil {
			body["connections"] = sockets.Count()
			body["online"] = len(sockets.Online())
		}
		c.JSON(code, body)
	}
}
