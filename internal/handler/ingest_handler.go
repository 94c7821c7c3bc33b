package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/leadflow/internal/dto"
	"github.com/prohmpiriya/leadflow/internal/service"
	"github.com/prohmpiriya/leadflow/pkg/middleware"
	"github.com/prohmpiriya/leadflow/pkg/response"
)

// IngestHandler receives messages and follow-ups from the agent collaborator
type IngestHandler struct {
	conversationService service.ConversationService
	leadService         service.LeadService
}

// NewIngestHandler creates a new IngestHandler
func NewIngestHandler(conversationService service.ConversationService, leadService service.LeadService) *IngestHandler {
	return &IngestHandler{conversationService: conversationService, leadService: leadService}
}

// Ingest records an inbound or outbound message
// POST /api/internal/messages
func (h *IngestHandler) Ingest(c *gin.Context) {
	var req dto.IngestMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	result, err := h.conversationService.Ingest(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	middleware.SetAuditResourceID(c, result.LeadID)

	status := http.StatusOK
	if result.LeadCreated {
		status = http.StatusCreated
	}
	c.JSON(status, response.Success(result))
}

// RecordFollowup stores a follow-up the agent sent
// POST /api/internal/leads/:tenant_id/:lead_id/followup
func (h *IngestHandler) RecordFollowup(c *gin.Context) {
	var req dto.FollowupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	result, err := h.leadService.RecordFollowup(c.Request.Context(), c.Param("tenant_id"), c.Param("lead_id"), req.Content)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(result))
}

// ConfirmBooking applies a booking notification from the calendar collaborator
// POST /api/internal/bookings
func (h *IngestHandler) ConfirmBooking(c *gin.Context) {
	var req dto.BookingConfirmationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	result, err := h.leadService.ConfirmBooking(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	if result.Lead != nil {
		middleware.SetAuditResourceID(c, result.Lead.LeadID)
	}

	c.JSON(http.StatusOK, response.Success(result))
}
