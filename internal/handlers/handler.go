package handlers

import (
	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/internal/identity"
	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/internal/middleware"
	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/internal/services"
	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/pkg/errors"
	"github.com/gin-gonic/gin"
)

// Handler serves the messaging API.
type Handler struct {
	messaging *services.MessagingService
}

func New(messaging *services.MessagingService) *Handler {
	return &Handler{messaging: messaging}
}

// principal returns the authenticated actor or records Unauthorized.
func principal(c *gin.Context) (*identity.Principal, bool) {
	p, ok := middleware.GetPrincipal(c)
	if !ok {
		c.Error(errors.ErrUnauthorized)
		return nil, false
	}
	return p, true
}
