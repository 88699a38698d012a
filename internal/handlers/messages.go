package handlers

import (
	"net/http"

	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/pkg/errors"
	"github.com/gin-gonic/gin"
)

type sendMessageRequest struct {
	Body string `json:"body"`
	// Message is accepted as an alias of Body.
	Message string `json:"message"`
}

type markReadRequest struct {
	MessageIDs []string `json:"messageIds" binding:"required"`
	Read       *bool    `json:"read"`
}

type tagRequest struct {
	Tags     *[]string `json:"tags"`
	Category *string   `json:"category"`
}

// ListMessages returns the visible history of conversation :id.
func (h *Handler) ListMessages(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	msgs, err := h.messaging.ListMessages(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// SendMessage posts a message into conversation :id. Any recipient field in
// the body is ignored.
func (h *Handler) SendMessage(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.ErrInvalidRequest)
		return
	}
	body := req.Body
	if body == "" {
		body = req.Message
	}

	msg, err := h.messaging.SendMessage(c.Request.Context(), p, c.Param("id"), body)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

func (h *Handler) ToggleRead(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	msg, err := h.messaging.ToggleRead(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

func (h *Handler) ToggleArchive(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	msg, err := h.messaging.ToggleArchive(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

func (h *Handler) ToggleStar(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	msg, err := h.messaging.ToggleStar(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

// MarkRead sets the read state of several messages at once. read defaults
// to true.
func (h *Handler) MarkRead(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req markReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.BadRequest("messageIds is required"))
		return
	}
	read := true
	if req.Read != nil {
		read = *req.Read
	}

	n, err := h.messaging.MarkRead(c.Request.Context(), p, req.MessageIDs, read)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

// TagMessage replaces the caller's tags and/or category on :id.
func (h *Handler) TagMessage(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req tagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.ErrInvalidRequest)
		return
	}
	msg, err := h.messaging.TagMessage(c.Request.Context(), p, c.Param("id"), req.Tags, req.Category)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

// DeleteMessage removes :id for both parties.
func (h *Handler) DeleteMessage(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	if err := h.messaging.DeleteMessage(c.Request.Context(), p, c.Param("id")); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

// UnreadCount returns the caller's total of unread messages.
func (h *Handler) UnreadCount(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	n, err := h.messaging.UnreadTotal(c.Request.Context(), p)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unreadCount": n})
}
