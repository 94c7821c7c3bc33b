package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/leadflow/internal/domain"
	"github.com/prohmpiriya/leadflow/internal/service"
	"github.com/prohmpiriya/leadflow/pkg/logger"
	"github.com/prohmpiriya/leadflow/pkg/middleware"
)

// TenantFrom says where a route names the tenant it operates on
type TenantFrom int

const (
	// TenantNone means the route is not tenant scoped
	TenantNone TenantFrom = iota
	// TenantFromPath reads the tenant_id path parameter
	TenantFromPath
	// TenantFromQuery reads the optional tenant_id query parameter, used by
	// admins on routes whose tenant normally comes from the token
	TenantFromQuery
)

// RequireAuth authorizes every request through AuthService.Authorize and
// attaches the resulting identity
func RequireAuth(auth service.AuthService, role domain.Role, from TenantFrom) gin.HandlerFunc {
	return func(c *gin.Context) {
		var tenantID string
		switch from {
		case TenantFromPath:
			tenantID = c.Param("tenant_id")
		case TenantFromQuery:
			tenantID = c.Query("tenant_id")
		}

		cred := domain.Credential{
			Token:    middleware.ExtractToken(c),
			AdminKey: middleware.ExtractAdminKey(c),
		}
		p, err := auth.Authorize(c.Request.Context(), cred, role, tenantID)
		if err != nil {
			respondError(c, err)
			return
		}

		middleware.SetIdentity(c, &middleware.Identity{
			SessionID: p.SessionID,
			Email:     p.Email,
			Role:      string(p.Role),
			TenantID:  p.TenantID,
		})
		if p.TenantID != "" {
			c.Request = c.Request.WithContext(logger.ContextWithTenant(c.Request.Context(), p.TenantID))
		}
		c.Next()
	}
}

// tenantID is the authorized tenant of the request
func tenantID(c *gin.Context) string {
	id, _ := middleware.GetTenantID(c)
	return id
}

// actor is operator for dashboard users and agent for the collaborator key
func actor(c *gin.Context) domain.Actor {
	if middleware.ExtractAdminKey(c) != "" {
		return domain.ActorAgent
	}
	return domain.ActorOperator
}
