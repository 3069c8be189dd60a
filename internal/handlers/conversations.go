package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tradepost/tradepost/internal/middleware"
	"github.com/tradepost/tradepost/internal/services"
	"github.com/tradepost/tradepost/pkg/response"
)

// ConversationHandler exposes buyer-seller messaging.
type ConversationHandler struct {
	conversations *services.ConversationService
}

// NewConversationHandler constructs a ConversationHandler.
func NewConversationHandler(conversations *services.ConversationService) *ConversationHandler {
	return &ConversationHandler{conversations: conversations}
}

type startConversationRequest struct {
	ListingID string `json:"listing_id" validate:"required,uuid"`
	Body      string `json:"body" validate:"required,max=4000"`
}

// Start opens (or reuses) the thread for a listing and posts the first message.
func (h *ConversationHandler) Start(c *gin.Context) {
	req, ok := bindJSON[startConversationRequest](c)
	if !ok {
		return
	}

	conversation, message, err := h.conversations.Start(c.Request.Context(), req.ListingID, middleware.UserID(c), req.Body)
	if err != nil {
		response.Error(c, mapServiceError(err))
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"conversation": conversation, "message": message})
}

// List returns the caller's threads, most recently active first.
func (h *ConversationHandler) List(c *gin.Context) {
	conversations, err := h.conversations.List(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		response.Error(c, mapServiceError(err))
		return
	}
	response.Success(c, http.StatusOK, conversations)
}

// Messages returns a thread's messages and marks the thread read.
func (h *ConversationHandler) Messages(c *gin.Context) {
	messages, err := h.conversations.Messages(c.Request.Context(), c.Param("id"), middleware.UserID(c), queryInt(c, "limit", 50))
	if err != nil {
		response.Error(c, mapServiceError(err))
		return
	}
	response.Success(c, http.StatusOK, messages)
}

type sendMessageRequest struct {
	Body string `json:"body" validate:"required,max=4000"`
}

// Send posts a message into an existing thread.
func (h *ConversationHandler) Send(c *gin.Context) {
	req, ok := bindJSON[sendMessageRequest](c)
	if !ok {
		return
	}

	message, err := h.conversations.SendMessage(c.Request.Context(), c.Param("id"), middleware.UserID(c), req.Body)
	if err != nil {
		response.Error(c, mapServiceError(err))
		return
	}

	response.Success(c, http.StatusCreated, message)
}

// MarkRead clears the caller's unread counter for a thread.
func (h *ConversationHandler) MarkRead(c *gin.Context) {
	if err := h.conversations.MarkRead(c.Request.Context(), c.Param("id"), middleware.UserID(c)); err != nil {
		response.Error(c, mapServiceError(err))
		return
	}
	response.Success(c, http.StatusOK, gin.H{"read": true})
}

// UnreadCount reports the caller's total unread messages.
func (h *ConversationHandler) UnreadCount(c *gin.Context) {
	count, err := h.conversations.UnreadCount(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		response.Error(c, mapServiceError(err))
		return
	}
	response.Success(c, http.StatusOK, gin.H{"unread": count})
}
