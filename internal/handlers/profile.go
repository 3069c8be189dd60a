package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tradepost/tradepost/internal/middleware"
	"github.com/tradepost/tradepost/internal/services"
	"github.com/tradepost/tradepost/pkg/response"
)

// ProfileHandler exposes the caller's own account plus public profiles.
type ProfileHandler struct {
	accounts *services.AccountService
	reviews  *services.ReviewService
}

// NewProfileHandler constructs a ProfileHandler.
func NewProfileHandler(accounts *services.AccountService, reviews *services.ReviewService) *ProfileHandler {
	return &ProfileHandler{accounts: accounts, reviews: reviews}
}

// Me returns the authenticated user's account.
func (h *ProfileHandler) Me(c *gin.Context) {
	user, err := h.accounts.GetUser(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		response.Error(c, mapServiceError(err))
		return
	}
	response.Success(c, http.StatusOK, user)
}

// PublicProfile returns a user's public identity and rating summary.
func (h *ProfileHandler) PublicProfile(c *gin.Context) {
	userID := c.Param("id")

	user, err := h.accounts.GetUser(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, mapServiceError(err))
		return
	}

	summary, err := h.reviews.Summary(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, mapServiceError(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"id":           user.ID,
		"username":     user.Username,
		"display_name": user.DisplayName,
		"avatar":       user.Avatar,
		"role":         user.Role,
		"member_since": user.CreatedAt,
		"rating":       summary,
	})
}

type changeUsernameRequest struct {
	Username string `json:"username" validate:"required,min=3,max=32"`
}

// ChangeUsername renames the account; allowed once per account lifetime.
func (h *ProfileHandler) ChangeUsername(c *gin.Context) {
	req, ok := bindJSON[changeUsernameRequest](c)
	if !ok {
		return
	}

	user, err := h.accounts.ChangeUsername(c.Request.Context(), middleware.UserID(c), req.Username)
	if err != nil {
		response.Error(c, mapServiceError(err))
		return
	}

	response.Success(c, http.StatusOK, user)
}

type emailChangeRequest struct {
	NewEmail string `json:"new_email" validate:"required,email"`
}

// RequestEmailChange mails a confirmation token to the new address.
func (h *ProfileHandler) RequestEmailChange(c *gin.Context) {
	req, ok := bindJSON[emailChangeRequest](c)
	if !ok {
		return
	}

	if _, err := h.accounts.RequestEmailChange(c.Request.Context(), middleware.UserID(c), req.NewEmail); err != nil {
		response.Error(c, mapServiceError(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"sent": true})
}

type confirmEmailChangeRequest struct {
	Token string `json:"token" validate:"required,len=64"`
}

// ConfirmEmailChange consumes the token and moves the account to the new email.
func (h *ProfileHandler) ConfirmEmailChange(c *gin.Context) {
	req, ok := bindJSON[confirmEmailChangeRequest](c)
	if !ok {
		return
	}

	user, err := h.accounts.ConfirmEmailChange(c.Request.Context(), req.Token)
	if err != nil {
		response.Error(c, mapServiceError(err))
		return
	}

	response.Success(c, http.StatusOK, user)
}
