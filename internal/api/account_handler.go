package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/member-dashboard-api/internal/models"
	"github.com/member-dashboard-api/internal/service"
	"github.com/rs/zerolog"
)

// AccountHandler handles user management endpoints
type AccountHandler struct {
	services *service.Services
	log      zerolog.Logger
}

// NewAccountHandler creates a new AccountHandler
func NewAccountHandler(services *service.Services, log zerolog.Logger) *AccountHandler {
	return &AccountHandler{
		services: services,
		log:      log.With().Str("handler", "account").Logger(),
	}
}

func views(accounts []*models.Account) []models.AccountView {
	out := make([]models.AccountView, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, models.NewAccountView(a))
	}
	return out
}

// List handles GET /v1/accounts?role=&status=&search=
func (h *AccountHandler) List(c *gin.Context) {
	filter := models.AccountFilter{
		Role:   c.Query("role"),
		Status: c.Query("status"),
		Search: c.Query("search"),
	}
	accounts, err := h.services.Account.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err, "failed to list accounts")
		return
	}
	c.JSON(http.StatusOK, gin.H{"accounts": views(accounts), "count": len(accounts)})
}

// Create handles POST /v1/accounts
func (h *AccountHandler) Create(c *gin.Context) {
	var in models.AccountInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	account, err := h.services.Account.Create(c.Request.Context(), currentAccount(c), &in)
	if err != nil {
		respondError(c, err, "failed to create account")
		return
	}
	c.JSON(http.StatusCreated, models.NewAccountView(account))
}

// Stats handles GET /v1/accounts/stats
func (h *AccountHandler) Stats(c *gin.Context) {
	stats, err := h.services.Account.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err, "failed to get account stats")
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Roles handles GET /v1/accounts/roles
func (h *AccountHandler) Roles(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"roles": h.services.Account.AvailableRoles(currentAccount(c))})
}

// Update handles PUT /v1/accounts/:id
func (h *AccountHandler) Update(c *gin.Context) {
	var upd models.AccountUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	account, err := h.services.Account.Update(c.Request.Context(), currentAccount(c), c.Param("id"), &upd)
	if err != nil {
		respondError(c, err, "failed to update account")
		return
	}
	c.JSON(http.StatusOK, models.NewAccountView(account))
}

// ChangeRole handles PUT /v1/accounts/:id/role
func (h *AccountHandler) ChangeRole(c *gin.Context) {
	var req struct {
		Role string `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "role is required"})
		return
	}
	account, err := h.services.Account.ChangeRole(c.Request.Context(), currentAccount(c), c.Param("id"), req.Role)
	if err != nil {
		respondError(c, err, "failed to change role")
		return
	}
	c.JSON(http.StatusOK, models.NewAccountView(account))
}

// ChangeStatus handles PUT /v1/accounts/:id/status
func (h *AccountHandler) ChangeStatus(c *gin.Context) {
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status is required"})
		return
	}
	account, err := h.services.Account.ChangeStatus(c.Request.Context(), currentAccount(c), c.Param("id"), req.Status)
	if err != nil {
		respondError(c, err, "failed to change status")
		return
	}
	c.JSON(http.StatusOK, models.NewAccountView(account))
}

// ChangePassword handles POST /v1/accounts/:id/password. Only the account
// holder may change a password; anyone else gets an explanation.
func (h *AccountHandler) ChangePassword(c *gin.Context) {
	var req passwordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "newPassword is required"})
		return
	}
	err := h.services.Account.ChangePassword(c.Request.Context(), currentAccount(c), c.Param("id"), req.CurrentPassword, req.NewPassword)
	if err != nil {
		respondError(c, err, "failed to change password")
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": true})
}

// Delete handles DELETE /v1/accounts/:id
func (h *AccountHandler) Delete(c *gin.Context) {
	result, err := h.services.Account.Delete(c.Request.Context(), currentAccount(c), c.Param("id"))
	if err != nil {
		respondError(c, err, "failed to delete account")
		return
	}
	c.JSON(http.StatusOK, result)
}
