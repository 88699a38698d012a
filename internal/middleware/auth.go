package middleware

import (
	"context"
	"net/http"

	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/internal/identity"
	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/pkg/logger"
	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/pkg/utils"
	"github.com/gin-gonic/gin"
)

const (
	// PrincipalKey holds the *identity.Principal of an authenticated request.
	PrincipalKey = "principal"
	// UserIDKey holds the acting messaging identifier.
	UserIDKey = "userId"
	// ActingAsHeader selects the user or organization identity.
	ActingAsHeader = "X-Acting-As"
)

// PrincipalResolver turns a bearer credential into a principal.
type PrincipalResolver interface {
	Resolve(ctx context.Context, credential string, as identity.ActingAs) (*identity.Principal, error)
}

// AuthMiddleware requires a bearer credential the resolver accepts. Every
// failure answers 401; the reason only goes to the log.
func AuthMiddleware(resolver PrincipalResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := utils.BearerToken(c.GetHeader("Authorization"))
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}

		as, err := identity.ParseActingAs(c.GetHeader(ActingAsHeader))
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid " + ActingAsHeader + " header"})
			c.Abort()
			return
		}

		principal, err := resolver.Resolve(c.Request.Context(), token, as)
		if err != nil {
			logger.Info().Err(err).Str("path", c.Request.URL.Path).Msg("Authentication failed")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		c.Set(PrincipalKey, principal)
		c.Set(UserIDKey, principal.MessagingID())
		c.Next()
	}
}

// GetPrincipal returns the principal set by AuthMiddleware.
func GetPrincipal(c *gin.Context) (*identity.Principal, bool) {
	v, exists := c.Get(PrincipalKey)
	if !exists {
		return nil, false
	}
	p, ok := v.(*identity.Principal)
	return p, ok && p != nil
}
