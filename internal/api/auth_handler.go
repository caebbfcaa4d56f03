package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/member-dashboard-api/internal/models"
	"github.com/member-dashboard-api/internal/service"
	"github.com/rs/zerolog"
)

// AuthHandler handles sign-up, sign-in and the current account
type AuthHandler struct {
	services *service.Services
	log      zerolog.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(services *service.Services, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		services: services,
		log:      log.With().Str("handler", "auth").Logger(),
	}
}

type signInRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type passwordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword" binding:"required"`
}

// SignUp handles POST /v1/auth/signup
func (h *AuthHandler) SignUp(c *gin.Context) {
	var in models.AccountInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	account, err := h.services.Account.SignUp(c.Request.Context(), &in)
	if err != nil {
		respondError(c, err, "failed to sign up")
		return
	}
	c.JSON(http.StatusCreated, models.NewAccountView(account))
}

// SignIn handles POST /v1/auth/signin
func (h *AuthHandler) SignIn(c *gin.Context) {
	var req signInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
		return
	}

	session, err := h.services.Account.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, err, "failed to sign in")
		return
	}
	c.JSON(http.StatusOK, session)
}

// SignOut handles POST /v1/auth/signout
func (h *AuthHandler) SignOut(c *gin.Context) {
	token, _ := c.Get(tokenKey)
	if err := h.services.Account.SignOut(c.Request.Context(), token.(string)); err != nil {
		respondError(c, err, "failed to sign out")
		return
	}
	c.JSON(http.StatusOK, gin.H{"signedOut": true, "redirect": SignInPath})
}

// Me handles GET /v1/me
func (h *AuthHandler) Me(c *gin.Context) {
	account := currentAccount(c)
	c.JSON(http.StatusOK, gin.H{
		"account":        models.NewAccountView(account),
		"availableRoles": h.services.Account.AvailableRoles(account),
	})
}

// ChangePassword handles POST /v1/me/password
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req passwordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "newPassword is required"})
		return
	}

	account := currentAccount(c)
	if err := h.services.Account.ChangePassword(c.Request.Context(), account, account.ID, req.CurrentPassword, req.NewPassword); err != nil {
		respondError(c, err, "failed to change password")
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": true})
}
