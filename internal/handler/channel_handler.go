package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/leadflow/internal/dto"
	"github.com/prohmpiriya/leadflow/internal/service"
	"github.com/prohmpiriya/leadflow/pkg/response"
)

// ChannelHandler handles the messaging channel handshake
type ChannelHandler struct {
	channelService service.ChannelService
}

// NewChannelHandler creates a new ChannelHandler
func NewChannelHandler(channelService service.ChannelService) *ChannelHandler {
	return &ChannelHandler{channelService: channelService}
}

// Connect returns the provider consent URL
// GET /api/auth/instagram/connect/:tenant_id
func (h *ChannelHandler) Connect(c *gin.Context) {
	var query dto.ConnectQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		bindError(c, err)
		return
	}

	result, err := h.channelService.Connect(c.Request.Context(), tenantID(c), query.RedirectAfter)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(result))
}

// Callback completes the handshake. The state parameter authenticates it.
// GET /api/auth/instagram/callback?code&state
func (h *ChannelHandler) Callback(c *gin.Context) {
	var query dto.CallbackQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		bindError(c, err)
		return
	}

	result, err := h.channelService.Callback(c.Request.Context(), &query)
	if err != nil {
		respondError(c, err)
		return
	}

	if result.RedirectAfter != "" {
		c.Redirect(http.StatusFound, result.RedirectAfter)
		return
	}
	c.JSON(http.StatusOK, response.Success(result))
}

// Disconnect revokes and clears the connection
// POST|GET /api/auth/instagram/disconnect/:tenant_id
func (h *ChannelHandler) Disconnect(c *gin.Context) {
	result, err := h.channelService.Disconnect(c.Request.Context(), tenantID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(result))
}

// Status reports the connection
// GET /api/auth/instagram/status/:tenant_id
func (h *ChannelHandler) Status(c *gin.Context) {
	result, err := h.channelService.Status(c.Request.Context(), tenantID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(result))
}
