package middleware

import (
	"context"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/erp/settlement/internal/domain/dunning"
	"github.com/erp/settlement/internal/interfaces/http/dto"
)

// AccessStateKey holds the caller account's resolved dunning.AccessState
const AccessStateKey = "access_state"

// AccessStateResolver resolves an account's current access state
type AccessStateResolver interface {
	GetAccessState(ctx context.Context, accountID uuid.UUID) (dunning.AccessState, error)
}

// AccessGuardConfig configures the AccessGuard middleware
type AccessGuardConfig struct {
	Resolver AccessStateResolver
	// BlockedReadRoutes are the GET route patterns a blocked account may still
	// reach for its own account_id
	BlockedReadRoutes []string
	Logger            *zap.Logger
}

// DefaultBlockedReadRoutes returns the dunning history and access state routes
// under the given API prefix (e.g. "/api/v1")
func DefaultBlockedReadRoutes(prefix string) []string {
	return []string{
		prefix + "/dunning/accounts/:account_id/logs",
		prefix + "/dunning/accounts/:account_id/access-state",
	}
}

// AccessGuard enforces the caller account's dunning access state.
// Callers without an account scope (operators, partners) pass through.
// A read-only account may only read; a blocked account may only read its
// own dunning history and access state. Resolution failures reject the
// request.
func AccessGuard(cfg AccessGuardConfig) gin.HandlerFunc {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		accountID := callerAccountID(c)
		if accountID == uuid.Nil {
			c.Next()
			return
		}

		state, err := cfg.Resolver.GetAccessState(c.Request.Context(), accountID)
		if err != nil {
			log.Error("Failed to resolve access state",
				zap.String("account_id", accountID.String()),
				zap.Error(err))
			abortAccess(c, http.StatusInternalServerError, dto.ErrCodeInternal, "Unable to verify account access")
			return
		}
		c.Set(AccessStateKey, state)

		isRead := c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead
		switch {
		case state.IsBlocked:
			if isRead && slices.Contains(cfg.BlockedReadRoutes, c.FullPath()) && c.Param("account_id") == accountID.String() {
				c.Next()
				return
			}
			abortAccess(c, http.StatusForbidden, dto.ErrCodeAccountBlocked, "Account is blocked for overdue invoices")
			return
		case state.IsReadOnly && !isRead:
			abortAccess(c, http.StatusForbidden, dto.ErrCodeAccountReadOnly, "Account is read-only for overdue invoices")
			return
		}
		c.Next()
	}
}

// GetAccessState returns the access state resolved by AccessGuard, if any
func GetAccessState(c *gin.Context) (dunning.AccessState, bool) {
	v, ok := c.Get(AccessStateKey)
	if !ok {
		return dunning.AccessState{}, false
	}
	state, ok := v.(dunning.AccessState)
	return state, ok
}

func callerAccountID(c *gin.Context) uuid.UUID {
	claims := GetJWTClaims(c)
	if claims == nil || claims.IsOperator() {
		return uuid.Nil
	}
	return claims.AccountUUID()
}

func abortAccess(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, dto.NewErrorResponseWithRequestID(code, message, getRequestIDFromContext(c)))
}
