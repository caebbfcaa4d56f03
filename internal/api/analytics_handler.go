package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/member-dashboard-api/internal/service"
	"github.com/rs/zerolog"
)

// AnalyticsHandler serves dashboard chart data
type AnalyticsHandler struct {
	services *service.Services
	log      zerolog.Logger
}

// NewAnalyticsHandler creates a new AnalyticsHandler
func NewAnalyticsHandler(services *service.Services, log zerolog.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		services: services,
		log:      log.With().Str("handler", "analytics").Logger(),
	}
}

// Overview handles GET /v1/analytics/overview
func (h *AnalyticsHandler) Overview(c *gin.Context) {
	overview, err := h.services.Analytics.Overview(c.Request.Context())
	if err != nil {
		respondError(c, err, "failed to build overview")
		return
	}
	c.JSON(http.StatusOK, overview)
}

// Demographics handles GET /v1/analytics/demographics
func (h *AnalyticsHandler) Demographics(c *gin.Context) {
	d, err := h.services.Analytics.Demographics(c.Request.Context())
	if err != nil {
		respondError(c, err, "failed to build demographics")
		return
	}
	c.JSON(http.StatusOK, d)
}

// Geography handles GET /v1/analytics/geography
func (h *AnalyticsHandler) Geography(c *gin.Context) {
	g, err := h.services.Analytics.Geography(c.Request.Context())
	if err != nil {
		respondError(c, err, "failed to build geography")
		return
	}
	c.JSON(http.StatusOK, g)
}

// Employment handles GET /v1/analytics/employment
func (h *AnalyticsHandler) Employment(c *gin.Context) {
	series, err := h.services.Analytics.Employment(c.Request.Context())
	if err != nil {
		respondError(c, err, "failed to build employment breakdown")
		return
	}
	c.JSON(http.StatusOK, gin.H{"series": series})
}
