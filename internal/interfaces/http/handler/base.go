package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/erp/settlement/internal/domain/shared"
	"github.com/erp/settlement/internal/infrastructure/auth"
	"github.com/erp/settlement/internal/infrastructure/logger"
	"github.com/erp/settlement/internal/interfaces/http/dto"
	"github.com/erp/settlement/internal/interfaces/http/middleware"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// getRequestID extracts the request ID from the context
func getRequestID(c *gin.Context) string {
	if id := c.GetString(logger.GinRequestIDKey); id != "" {
		return id
	}
	if id := c.GetHeader(middleware.RequestIDHeader); len(id) <= middleware.MaxRequestIDLength {
		return id
	}
	return ""
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessWithMeta sends a success response with pagination meta
func (h *BaseHandler) SuccessWithMeta(c *gin.Context, data any, total int64, page, pageSize int) {
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta(data, total, page, pageSize))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// Accepted sends a 202 response for work whose outcome is not yet known
func (h *BaseHandler) Accepted(c *gin.Context, data any) {
	c.JSON(http.StatusAccepted, dto.NewSuccessResponse(data))
}

// NoContent sends a 204 no content response
func (h *BaseHandler) NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Error sends an error response with the appropriate status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, getRequestID(c)))
}

// ErrorWithCode sends an error response, deriving status code from error code
func (h *BaseHandler) ErrorWithCode(c *gin.Context, code, message string) {
	code = dto.NormalizeErrorCode(code)
	h.Error(c, dto.GetHTTPStatus(code), code, message)
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// NotFound sends a 404 not found response
func (h *BaseHandler) NotFound(c *gin.Context, message string) {
	h.Error(c, http.StatusNotFound, dto.ErrCodeNotFound, message)
}

// Forbidden sends a 403 forbidden response
func (h *BaseHandler) Forbidden(c *gin.Context, message string) {
	h.Error(c, http.StatusForbidden, dto.ErrCodeForbidden, message)
}

// InternalError sends a 500 internal server error response
func (h *BaseHandler) InternalError(c *gin.Context, message string) {
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, message)
}

// HandleError converts domain errors to HTTP responses.
// Anything that is not a DomainError is logged and reported as internal.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		code := dto.NormalizeErrorCode(domainErr.Code)
		status := dto.GetHTTPStatus(code)
		if status >= http.StatusInternalServerError || status == http.StatusBadGateway {
			logger.FromContext(c.Request.Context()).Error("Request failed",
				zap.String("code", domainErr.Code),
				zap.Error(err))
		}
		h.Error(c, status, code, domainErr.Message)
		return
	}

	logger.FromContext(c.Request.Context()).Error("Unexpected error", zap.Error(err))
	h.InternalError(c, "An unexpected error occurred")
}

// bindJSON binds the body and writes the validation response on failure
func (h *BaseHandler) bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		middleware.HandleValidationError(c, err)
		return false
	}
	return true
}

// bindQuery binds query parameters and writes the validation response on failure
func (h *BaseHandler) bindQuery(c *gin.Context, req any) bool {
	if err := c.ShouldBindQuery(req); err != nil {
		middleware.HandleValidationError(c, err)
		return false
	}
	return true
}

// uuidParam parses a path parameter, answering 400 when it is not a UUID
func (h *BaseHandler) uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		h.BadRequest(c, "Invalid "+name+" format")
		return uuid.Nil, false
	}
	return id, true
}

// requireOperator allows operators, or everyone when authentication is off
func (h *BaseHandler) requireOperator(c *gin.Context) bool {
	claims := middleware.GetJWTClaims(c)
	if claims == nil || claims.IsOperator() {
		return true
	}
	h.Forbidden(c, "Operator role required")
	return false
}

// requirePartner allows operators and the partner itself
func (h *BaseHandler) requirePartner(c *gin.Context, partnerID uuid.UUID) bool {
	claims := middleware.GetJWTClaims(c)
	if claims == nil || claims.CanAccessPartner(partnerID) {
		return true
	}
	h.Forbidden(c, "Not allowed to access this partner")
	return false
}

// requireAccount allows operators and the account itself
func (h *BaseHandler) requireAccount(c *gin.Context, accountID uuid.UUID) bool {
	claims := middleware.GetJWTClaims(c)
	if claims == nil || claims.CanAccessAccount(accountID) {
		return true
	}
	h.Forbidden(c, "Not allowed to access this account")
	return false
}

// partnerScope returns the partner a non-operator caller is confined to, or nil
func partnerScope(c *gin.Context) (*uuid.UUID, bool) {
	claims := middleware.GetJWTClaims(c)
	if claims == nil || claims.IsOperator() {
		return nil, true
	}
	if !claims.HasRole(auth.RolePartner) {
		return nil, false
	}
	id, err := uuid.Parse(claims.PartnerID)
	if err != nil {
		return nil, false
	}
	return &id, true
}
