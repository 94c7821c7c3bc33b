package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/leadflow/internal/domain"
	"github.com/prohmpiriya/leadflow/internal/dto"
	"github.com/prohmpiriya/leadflow/internal/service"
	"github.com/prohmpiriya/leadflow/pkg/middleware"
	"github.com/prohmpiriya/leadflow/pkg/response"
)

// LeadHandler serves the per-tenant lead routes
type LeadHandler struct {
	leadService         service.LeadService
	conversationService service.ConversationService
}

// NewLeadHandler creates a new LeadHandler
func NewLeadHandler(leadService service.LeadService, conversationService service.ConversationService) *LeadHandler {
	return &LeadHandler{leadService: leadService, conversationService: conversationService}
}

// List handles lead listing
// GET /api/clients/:tenant_id/leads
func (h *LeadHandler) List(c *gin.Context) {
	var query dto.ListLeadsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		bindError(c, err)
		return
	}

	result, err := h.leadService.List(c.Request.Context(), tenantID(c), &query)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Window(result, result.Offset, result.Limit, int64(result.Total)))
}

// Followups lists leads due for re-engagement
// GET /api/clients/:tenant_id/leads/followup
func (h *LeadHandler) Followups(c *gin.Context) {
	var query dto.LimitQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		bindError(c, err)
		return
	}

	result, err := h.leadService.Followups(c.Request.Context(), tenantID(c), query.Limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(result))
}

// Bookings lists booked and booking-intent leads
// GET /api/clients/:tenant_id/leads/booking
func (h *LeadHandler) Bookings(c *gin.Context) {
	var query dto.LimitQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		bindError(c, err)
		return
	}

	result, err := h.leadService.Bookings(c.Request.Context(), tenantID(c), query.Limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(result))
}

// Conversation returns one page of a lead's messages
// GET /api/clients/:tenant_id/leads/:lead_id/conversation
func (h *LeadHandler) Conversation(c *gin.Context) {
	var query dto.ConversationQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		bindError(c, err)
		return
	}

	result, err := h.conversationService.List(c.Request.Context(), tenantID(c), c.Param("lead_id"), &query)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Window(result, result.Offset, result.Limit, int64(result.Total)))
}

// Transition changes a lead's status
// POST /api/clients/:tenant_id/leads/:lead_id/status
func (h *LeadHandler) Transition(c *gin.Context) {
	var req dto.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	to, err := domain.ParseLeadStatus(req.Status)
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := h.leadService.Transition(c.Request.Context(), tenantID(c), c.Param("lead_id"), to, actor(c), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	middleware.SetAuditMetadata(c, map[string]interface{}{"to": req.Status})

	c.JSON(http.StatusOK, response.Success(result))
}

// Block toggles agent automation for a lead
// POST /api/clients/:tenant_id/leads/:lead_id/block
func (h *LeadHandler) Block(c *gin.Context) {
	var req dto.BlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	result, err := h.leadService.SetAgentBlocked(c.Request.Context(), tenantID(c), c.Param("lead_id"), *req.Blocked)
	if err != nil {
		respondError(c, err)
		return
	}
	middleware.SetAuditMetadata(c, map[string]interface{}{"blocked": *req.Blocked})

	c.JSON(http.StatusOK, response.Success(result))
}
