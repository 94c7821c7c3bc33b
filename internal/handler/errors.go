package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/leadflow/internal/domain"
	"github.com/prohmpiriya/leadflow/pkg/logger"
	"github.com/prohmpiriya/leadflow/pkg/response"
	"go.uber.org/zap"
)

// respondError maps a service error onto the response envelope. Tenant
// mismatches look exactly like missing resources.
func respondError(c *gin.Context, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		details := map[string]string{}
		if verr.Field != "" {
			details[verr.Field] = verr.Message
		}
		response.Abort(c, response.ValidationFailed(verr.Error(), details))
	case errors.Is(err, domain.ErrValidation):
		response.Abort(c, response.ValidationFailed(err.Error(), nil))
	case errors.Is(err, domain.ErrInvalidCredentials):
		response.Abort(c, response.Error(response.ErrCodeInvalidCredentials, "Invalid email or password"))
	case errors.Is(err, domain.ErrUnauthorized):
		response.Abort(c, response.Unauthorized(""))
	case errors.Is(err, domain.ErrForbidden):
		response.Abort(c, response.Error(response.ErrCodeForbidden, "Insufficient permissions"))
	case errors.Is(err, domain.ErrTenantMismatch),
		errors.Is(err, domain.ErrTenantNotFound):
		response.Abort(c, response.NotFound("Client not found"))
	case errors.Is(err, domain.ErrLeadNotFound):
		response.Abort(c, response.NotFound("Lead not found"))
	case errors.Is(err, domain.ErrNotFound):
		response.Abort(c, response.NotFound(""))
	case errors.Is(err, domain.ErrDuplicateTenant):
		response.Abort(c, response.Error(response.ErrCodeDuplicateEntry, "Client with this id already exists"))
	case errors.Is(err, domain.ErrInvalidTransition):
		response.Abort(c, response.Error(response.ErrCodeInvalidTransition, err.Error()))
	case errors.Is(err, domain.ErrAgentBlocked):
		response.Abort(c, response.Error(response.ErrCodeAgentBlocked, "Lead is blocked for agent actions"))
	case errors.Is(err, domain.ErrVersionConflict):
		response.Abort(c, response.Error(response.ErrCodeConflict, "Lead was modified concurrently, retry"))
	case errors.Is(err, domain.ErrChannelUnavailable):
		logger.WithContext(c.Request.Context()).Warn("Channel provider error", zap.Error(err))
		response.Abort(c, response.Error(response.ErrCodeBadGateway, "Messaging channel is unavailable"))
	default:
		logger.WithContext(c.Request.Context()).Error("Unhandled error",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		_ = c.Error(err)
		response.Abort(c, response.InternalError(""))
	}
}

// bindError reports a request binding failure
func bindError(c *gin.Context, err error) {
	response.Abort(c, response.BadRequest(err.Error()))
}
