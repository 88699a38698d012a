package middleware

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/pkg/errors"
	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/pkg/logger"
	"github.com/gin-gonic/gin"
)

// ErrorHandlerMiddleware recovers panics and renders the last error a
// handler attached with c.Error.
func ErrorHandlerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error().
					Str("panic", fmt.Sprintf("%v", r)).
					Str("stack", string(debug.Stack())).
					Msg("Panic recovered")

				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "Internal Server Error",
				})
			}
		}()

		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err

		var appErr *errors.AppError
		if stderrors.As(err, &appErr) {
			if appErr.Code >= http.StatusInternalServerError {
				logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("Request failed")
			}
			c.JSON(appErr.Code, gin.H{"error": appErr.Message})
			return
		}

		logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("Unhandled request error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
	}
}
