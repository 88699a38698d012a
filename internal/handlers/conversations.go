package handlers

import (
	"net/http"
	"strconv"

	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/pkg/errors"
	"github.com/gin-gonic/gin"
)

// StartConversation opens (or returns) the conversation with the member
// named by :id. The route shares the :id wildcard with the other
// conversation routes.
func (h *Handler) StartConversation(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	conv, err := h.messaging.StartConversation(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation": conv})
}

// ListConversations returns the caller's inbox; ?archived=true lists the
// archive instead.
func (h *Handler) ListConversations(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	archived := false
	if raw := c.Query("archived"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			c.Error(errors.BadRequest("archived must be true or false"))
			return
		}
		archived = v
	}

	summaries, err := h.messaging.ListConversations(c.Request.Context(), p, archived)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": summaries})
}

// ToggleConversationArchive flips the caller's archive flag on :id.
func (h *Handler) ToggleConversationArchive(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	conv, err := h.messaging.ToggleConversationArchive(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation": conv})
}

// DeleteConversation hides :id and its history from the caller only.
func (h *Handler) DeleteConversation(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	if err := h.messaging.SoftDeleteConversation(c.Request.Context(), p, c.Param("id")); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Conversation deleted"})
}
