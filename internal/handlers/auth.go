package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tradepost/tradepost/internal/auth"
	"github.com/tradepost/tradepost/internal/middleware"
	"github.com/tradepost/tradepost/internal/models"
	"github.com/tradepost/tradepost/internal/services"
	"github.com/tradepost/tradepost/pkg/response"
)

// AuthHandler exposes registration, login, and credential recovery.
type AuthHandler struct {
	accounts *services.AccountService
	sessions *auth.SessionService
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(accounts *services.AccountService, sessions *auth.SessionService) *AuthHandler {
	return &AuthHandler{accounts: accounts, sessions: sessions}
}

type registerRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Username    string `json:"username" validate:"required,min=3,max=32"`
	Password    string `json:"password" validate:"required,min=8,max=128"`
	DisplayName string `json:"display_name" validate:"omitempty,max=64"`
	Role        string `json:"role" validate:"omitempty,oneof=buyer seller"`
}

// Register creates an account and triggers the confirmation code email.
func (h *AuthHandler) Register(c *gin.Context) {
	req, ok := bindJSON[registerRequest](c)
	if !ok {
		return
	}

	user, err := h.accounts.Register(c.Request.Context(), services.RegisterInput{
		Email:       req.Email,
		Username:    req.Username,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		Role:        models.UserRole(req.Role),
	})
	if err != nil {
		response.Error(c, mapServiceError(err))
		return
	}

	response.Success(c, http.StatusCreated, user)
}

type verifyEmailRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=6"`
}

// VerifyEmail consumes the registration code and activates the account.
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	req, ok := bindJSON[verifyEmailRequest](c)
	if !ok {
		return
	}

	if err := h.accounts.VerifyRegistration(c.Request.Context(), req.Email, req.Code); err != nil {
		response.Error(c, mapServiceError(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"verified": true})
}

type emailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResendCode issues a fresh registration code.
func (h *AuthHandler) ResendCode(c *gin.Context) {
	req, ok := bindJSON[emailRequest](c)
	if !ok {
		return
	}

	if err := h.accounts.ResendRegistrationCode(c.Request.Context(), req.Email); err != nil {
		response.Error(c, mapServiceError(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"sent": true})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Login exchanges credentials for a token pair.
func (h *AuthHandler) Login(c *gin.Context) {
	req, ok := bindJSON[loginRequest](c)
	if !ok {
		return
	}

	pair, user, err := h.accounts.Login(c.Request.Context(), services.LoginInput{
		Email:     req.Email,
		Password:  req.Password,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		response.Error(c, mapServiceError(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"tokens": pair, "user": user})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// Refresh rotates a refresh token into a fresh token pair.
func (h *AuthHandler) Refresh(c *gin.Context) {
	req, ok := bindJSON[refreshRequest](c)
	if !ok {
		return
	}

	pair, _, err := h.sessions.RefreshSession(req.RefreshToken)
	if err != nil {
		response.Error(c, mapServiceError(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"tokens": pair})
}

// Logout revokes the session behind the presented access token.
func (h *AuthHandler) Logout(c *gin.Context) {
	sessionID := middleware.SessionID(c)
	if sessionID != "" {
		if err := h.sessions.RevokeSession(sessionID); err != nil && err != auth.ErrSessionNotFound {
			response.Error(c, mapServiceError(err))
			return
		}
	}

	response.Success(c, http.StatusOK, gin.H{"logged_out": true})
}

// ForgotPassword issues a reset code. The response never reveals whether
// the email is registered.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	req, ok := bindJSON[emailRequest](c)
	if !ok {
		return
	}

	if err := h.accounts.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		response.Error(c, mapServiceError(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"sent": true})
}

type verifyResetCodeRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=6"`
}

// VerifyResetCode exchanges a valid reset code for a short-lived reset token.
func (h *AuthHandler) VerifyResetCode(c *gin.Context) {
	req, ok := bindJSON[verifyResetCodeRequest](c)
	if !ok {
		return
	}

	token, err := h.accounts.VerifyResetCode(c.Request.Context(), req.Email, req.Code)
	if err != nil {
		response.Error(c, mapServiceError(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"reset_token": token})
}

type resetPasswordRequest struct {
	ResetToken  string `json:"reset_token" validate:"required,len=64"`
	NewPassword string `json:"new_password" validate:"required,min=8,max=128"`
}

// ResetPassword consumes the reset token and sets the new password.
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	req, ok := bindJSON[resetPasswordRequest](c)
	if !ok {
		return
	}

	if err := h.accounts.ResetPassword(c.Request.Context(), req.ResetToken, req.NewPassword); err != nil {
		response.Error(c, mapServiceError(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"reset": true})
}
