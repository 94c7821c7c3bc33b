package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/leadflow/internal/dto"
	"github.com/prohmpiriya/leadflow/internal/service"
	"github.com/prohmpiriya/leadflow/pkg/middleware"
	"github.com/prohmpiriya/leadflow/pkg/response"
)

// TenantHandler handles client business management HTTP requests
type TenantHandler struct {
	tenantService service.TenantService
}

// NewTenantHandler creates a new TenantHandler
func NewTenantHandler(tenantService service.TenantService) *TenantHandler {
	return &TenantHandler{tenantService: tenantService}
}

// Create handles tenant creation
// POST /admin/clients
func (h *TenantHandler) Create(c *gin.Context) {
	var req dto.CreateTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	result, err := h.tenantService.Create(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	middleware.SetAuditResourceID(c, result.TenantID)

	c.JSON(http.StatusCreated, response.Success(result))
}

// GetByID handles retrieving a tenant by ID
// GET /admin/clients/:tenant_id
func (h *TenantHandler) GetByID(c *gin.Context) {
	result, err := h.tenantService.GetByID(c.Request.Context(), c.Param("tenant_id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(result))
}

// List handles retrieving all tenants with pagination
// GET /admin/clients
func (h *TenantHandler) List(c *gin.Context) {
	var query dto.ListTenantsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		bindError(c, err)
		return
	}

	result, err := h.tenantService.List(c.Request.Context(), &query)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(result))
}

// Update handles tenant update
// PUT /admin/clients/:tenant_id
func (h *TenantHandler) Update(c *gin.Context) {
	var req dto.UpdateTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	result, err := h.tenantService.Update(c.Request.Context(), c.Param("tenant_id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(result))
}

// Delete handles tenant soft deletion
// DELETE /admin/clients/:tenant_id
func (h *TenantHandler) Delete(c *gin.Context) {
	if err := h.tenantService.Delete(c.Request.Context(), c.Param("tenant_id")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(gin.H{"message": "Client deleted successfully"}))
}
