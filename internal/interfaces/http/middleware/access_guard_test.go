package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/erp/settlement/internal/domain/dunning"
	"github.com/erp/settlement/internal/infrastructure/auth"
)

type mockAccessResolver struct {
	mock.Mock
}

func (m *mockAccessResolver) GetAccessState(ctx context.Context, accountID uuid.UUID) (dunning.AccessState, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).(dunning.AccessState), args.Error(1)
}

// guardedRouter mounts the guard behind a fake authenticator that installs claims
func guardedRouter(resolver AccessStateResolver, claims *auth.Claims) *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if claims != nil {
			setClaims(c, claims)
		}
		c.Next()
	})
	api := r.Group("/api/v1")
	api.Use(AccessGuard(AccessGuardConfig{
		Resolver:          resolver,
		BlockedReadRoutes: DefaultBlockedReadRoutes("/api/v1"),
	}))
	ok := func(c *gin.Context) { c.Status(http.StatusOK) }
	api.GET("/settlements", ok)
	api.POST("/settlements/generate", ok)
	api.GET("/dunning/accounts/:account_id/logs", ok)
	api.GET("/dunning/accounts/:account_id/access-state", ok)
	return r
}

func accountClaims(accountID uuid.UUID) *auth.Claims {
	return &auth.Claims{AccountID: accountID.String(), Roles: []string{auth.RoleAccount}}
}

func serve(r *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestAccessGuard_NoAccountScopePassesThrough(t *testing.T) {
	resolver := new(mockAccessResolver)

	for name, claims := range map[string]*auth.Claims{
		"anonymous": nil,
		"operator":  {Roles: []string{auth.RoleOperator}, AccountID: uuid.NewString()},
		"partner":   {Roles: []string{auth.RolePartner}, PartnerID: uuid.NewString()},
	} {
		t.Run(name, func(t *testing.T) {
			r := guardedRouter(resolver, claims)
			assert.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/api/v1/settlements/generate").Code)
		})
	}
	resolver.AssertNotCalled(t, "GetAccessState", mock.Anything, mock.Anything)
}

func TestAccessGuard_NormalAccount(t *testing.T) {
	accountID := uuid.New()
	resolver := new(mockAccessResolver)
	resolver.On("GetAccessState", mock.Anything, accountID).Return(dunning.Resolve(1), nil)

	r := guardedRouter(resolver, accountClaims(accountID))
	assert.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/api/v1/settlements/generate").Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/api/v1/settlements").Code)
}

func TestAccessGuard_ReadOnlyAccountRejectsWrites(t *testing.T) {
	accountID := uuid.New()
	resolver := new(mockAccessResolver)
	resolver.On("GetAccessState", mock.Anything, accountID).Return(dunning.Resolve(2), nil)

	r := guardedRouter(resolver, accountClaims(accountID))

	w := serve(r, http.MethodPost, "/api/v1/settlements/generate")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "ERR_ACCOUNT_READ_ONLY")

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/api/v1/settlements").Code)
}

func TestAccessGuard_BlockedAccountReadsOnlyOwnDunning(t *testing.T) {
	accountID := uuid.New()
	resolver := new(mockAccessResolver)
	resolver.On("GetAccessState", mock.Anything, accountID).Return(dunning.Resolve(3), nil)

	r := guardedRouter(resolver, accountClaims(accountID))

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/api/v1/dunning/accounts/" + accountID.String() + "/logs", http.StatusOK},
		{http.MethodGet, "/api/v1/dunning/accounts/" + accountID.String() + "/access-state", http.StatusOK},
		{http.MethodGet, "/api/v1/dunning/accounts/" + uuid.NewString() + "/logs", http.StatusForbidden},
		{http.MethodGet, "/api/v1/settlements", http.StatusForbidden},
		{http.MethodPost, "/api/v1/settlements/generate", http.StatusForbidden},
	}
	for _, tt := range tests {
		w := serve(r, tt.method, tt.path)
		assert.Equal(t, tt.want, w.Code, "%s %s", tt.method, tt.path)
		if tt.want == http.StatusForbidden {
			assert.Contains(t, w.Body.String(), "ERR_ACCOUNT_BLOCKED")
		}
	}
}

func TestAccessGuard_ResolverFailureRejects(t *testing.T) {
	accountID := uuid.New()
	resolver := new(mockAccessResolver)
	resolver.On("GetAccessState", mock.Anything, accountID).Return(dunning.AccessState{}, errors.New("db down"))

	r := guardedRouter(resolver, accountClaims(accountID))
	assert.Equal(t, http.StatusInternalServerError, serve(r, http.MethodGet, "/api/v1/settlements").Code)
}

func TestAccessGuard_StoresResolvedState(t *testing.T) {
	accountID := uuid.New()
	resolver := new(mockAccessResolver)
	resolver.On("GetAccessState", mock.Anything, accountID).Return(dunning.Resolve(2), nil)

	var (
		got dunning.AccessState
		ok  bool
	)
	r := gin.New()
	r.Use(func(c *gin.Context) { setClaims(c, accountClaims(accountID)); c.Next() })
	r.Use(AccessGuard(AccessGuardConfig{Resolver: resolver}))
	r.GET("/x", func(c *gin.Context) {
		got, ok = GetAccessState(c)
		c.Status(http.StatusOK)
	})

	serve(r, http.MethodGet, "/x")
	assert.True(t, ok)
	assert.True(t, got.IsReadOnly)
	assert.Equal(t, dunning.AccessStateReadOnly, got.State)
}
