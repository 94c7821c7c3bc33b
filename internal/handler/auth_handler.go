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

// AuthHandler handles login, verify and logout
type AuthHandler struct {
	authService service.AuthService
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(authService service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// Login handles client login
// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	h.login(c, domain.RoleClient)
}

// AdminLogin handles admin login
// POST /api/auth/admin/login
func (h *AuthHandler) AdminLogin(c *gin.Context) {
	h.login(c, domain.RoleAdmin)
}

func (h *AuthHandler) login(c *gin.Context, role domain.Role) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	result, err := h.authService.Login(c.Request.Context(), role, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	middleware.SetIdentity(c, &middleware.Identity{Email: req.Email, Role: result.Role, TenantID: result.ClientID})

	c.JSON(http.StatusOK, result)
}

// Verify reports whether a token is valid
// GET /api/auth/verify?token=
func (h *AuthHandler) Verify(c *gin.Context) {
	token := middleware.ExtractToken(c)
	if token == "" {
		c.JSON(http.StatusBadRequest, response.BadRequest("token is required"))
		return
	}
	c.JSON(http.StatusOK, h.authService.Describe(c.Request.Context(), token))
}

// Logout revokes the caller's session. It always succeeds.
// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	h.authService.Logout(c.Request.Context(), middleware.ExtractToken(c))
	c.JSON(http.StatusOK, response.Success(gin.H{"message": "Logged out"}))
}
