package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/docport/gateway/internal/backend"
	"github.com/docport/gateway/internal/chat"
	"github.com/docport/gateway/pkg/middleware"
)

// ChatHandler proxies retrieval chat, direct chat and feedback for the
// signed-in session.
type ChatHandler struct {
	svc *chat.Service
}

func NewChatHandler(svc *chat.Service) *ChatHandler {
	return &ChatHandler{svc: svc}
}

// Register routes on an already-guarded group.
func (h *ChatHandler) Register(rg *gin.RouterGroup) {
	c := rg.Group("/chat")
	c.GET("/sessions", h.Sessions)
	c.POST("/sessions", h.CreateSession)
	c.GET("/sessions/:id", h.Session)
	c.PUT("/sessions/:id", h.RenameSession)
	c.DELETE("/sessions/:id", h.DeleteSession)
	c.POST("/sessions/:id/messages", h.SendMessage)
	c.POST("/sessions/:id/messages/:messageId/feedback", h.Feedback)
	c.POST("/direct", h.Direct)

	rg.GET("/ai/models", h.Models)
}

func (h *ChatHandler) Sessions(c *gin.Context) {
	sessions, err := h.svc.Sessions(c.Request.Context(), middleware.TokenFrom(c))
	if err != nil {
		writeBackendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": sessions})
}

func (h *ChatHandler) Session(c *gin.Context) {
	sess, err := h.svc.Session(c.Request.Context(), middleware.TokenFrom(c), c.Param("id"))
	if err != nil {
		writeBackendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": sess})
}

func (h *ChatHandler) CreateSession(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	// an empty body is fine, the service picks a default name
	_ = c.ShouldBindJSON(&req)
	sess, err := h.svc.Create(c.Request.Context(), middleware.TokenFrom(c), req.Name)
	if err != nil {
		writeBackendError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": sess})
}

func (h *ChatHandler) RenameSession(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess, err := h.svc.Rename(c.Request.Context(), middleware.TokenFrom(c), c.Param("id"), req.Name)
	if err != nil {
		writeBackendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": sess})
}

func (h *ChatHandler) DeleteSession(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), middleware.TokenFrom(c), c.Param("id")); err != nil {
		writeBackendError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req struct {
		Message string `json:"message" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	answer, err := h.svc.Send(c.Request.Context(), middleware.TokenFrom(c), c.Param("id"), req.Message)
	if err != nil {
		if errors.Is(err, chat.ErrEmptyMessage) || errors.Is(err, chat.ErrMessageTooLong) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		writeBackendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": answer})
}

func (h *ChatHandler) Feedback(c *gin.Context) {
	var req struct {
		Feedback string `json:"feedback" binding:"required"`
		Comment  string `json:"comment"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := h.svc.Feedback(c.Request.Context(), middleware.TokenFrom(c), c.Param("id"), c.Param("messageId"), req.Feedback, req.Comment)
	if err != nil {
		if errors.Is(err, chat.ErrBadFeedback) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		writeBackendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "feedback recorded"})
}

func (h *ChatHandler) Direct(c *gin.Context) {
	var req struct {
		Message        string                      `json:"message" binding:"required"`
		ConversationID string                      `json:"conversation_id"`
		Settings       *backend.DirectChatSettings `json:"settings"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	resp, err := h.svc.Direct(c.Request.Context(), middleware.TokenFrom(c), req.Message, req.ConversationID, req.Settings)
	if err != nil {
		if errors.Is(err, chat.ErrEmptyMessage) || errors.Is(err, chat.ErrMessageTooLong) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		writeBackendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (h *ChatHandler) Models(c *gin.Context) {
	models, err := h.svc.Models(c.Request.Context(), middleware.TokenFrom(c))
	if err != nil {
		writeBackendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": models})
}
