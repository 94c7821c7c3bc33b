package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// Context keys for the authenticated caller
const (
	ContextKeySessionID = "session_id"
	ContextKeyEmail     = "email"
	ContextKeyRole      = "role"
	ContextKeyTenantID  = "tenant_id"
)

// HeaderAdminKey carries the static admin API key
const HeaderAdminKey = "X-Admin-Key"

// Identity is the authenticated caller attached to a request
type Identity struct {
	SessionID string
	Email     string
	Role      string
	TenantID  string
}

// ExtractToken returns the bearer token from the Authorization header,
// falling back to the token query parameter
func ExtractToken(c *gin.Context) string {
	const bearerPrefix = "Bearer "
	if h := c.GetHeader("Authorization"); h != "" {
		if strings.HasPrefix(h, bearerPrefix) {
			return strings.TrimSpace(h[len(bearerPrefix):])
		}
		return ""
	}
	return c.Query("token")
}

// ExtractAdminKey returns the X-Admin-Key header value
func ExtractAdminKey(c *gin.Context) string {
	return c.GetHeader(HeaderAdminKey)
}

// SetIdentity stores the caller on the gin context
func SetIdentity(c *gin.Context, id *Identity) {
	c.Set(ContextKeySessionID, id.SessionID)
	c.Set(ContextKeyEmail, id.Email)
	c.Set(ContextKeyRole, id.Role)
	c.Set(ContextKeyTenantID, id.TenantID)
}

func getString(c *gin.Context, key string) (string, bool) {
	v, exists := c.Get(key)
	if !exists {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetSessionID extracts the session id from gin context
func GetSessionID(c *gin.Context) (string, bool) { return getString(c, ContextKeySessionID) }

// GetEmail extracts email from gin context
func GetEmail(c *gin.Context) (string, bool) { return getString(c, ContextKeyEmail) }

// GetRole extracts role from gin context
func GetRole(c *gin.Context) (string, bool) { return getString(c, ContextKeyRole) }

// GetTenantID extracts tenant ID from gin context
func GetTenantID(c *gin.Context) (string, bool) { return getString(c, ContextKeyTenantID) }
