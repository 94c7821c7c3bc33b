package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/leadflow/internal/domain"
	"github.com/prohmpiriya/leadflow/internal/dto"
	"github.com/prohmpiriya/leadflow/internal/service"
	"github.com/prohmpiriya/leadflow/pkg/response"
)

// DashboardHandler serves the client analytics routes
type DashboardHandler struct {
	analyticsService service.AnalyticsService
}

// NewDashboardHandler creates a new DashboardHandler
func NewDashboardHandler(analyticsService service.AnalyticsService) *DashboardHandler {
	return &DashboardHandler{analyticsService: analyticsService}
}

// Dashboard returns the rollup for the requested period
// GET /api/client/dashboard?period=daily|weekly|monthly
func (h *DashboardHandler) Dashboard(c *gin.Context) {
	var query dto.DashboardQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		bindError(c, err)
		return
	}
	period, err := domain.ParsePeriod(query.Period)
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := h.analyticsService.Dashboard(c.Request.Context(), tenantID(c), period)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(result))
}

// Activity lists recent conversations
// GET /api/client/activity?limit=
func (h *DashboardHandler) Activity(c *gin.Context) {
	var query dto.ActivityQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		bindError(c, err)
		return
	}

	result, err := h.analyticsService.Activity(c.Request.Context(), tenantID(c), &query)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(result))
}
