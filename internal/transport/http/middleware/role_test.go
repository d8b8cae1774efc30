package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/planboard/notify/internal/domain"
	jwtinfra "github.com/planboard/notify/internal/infrastructure/jwt"
	"github.com/stretchr/testify/assert"
)

func requestAs(role string) *http.Request {
	ctx := WithClaims(context.Background(), &jwtinfra.Claims{UserID: "u1", Role: role})
	return httptest.NewRequest(http.MethodPost, "/v1/notifications", nil).WithContext(ctx)
}

func TestRequireRole_NoClaims(t *testing.T) {
	rr := httptest.NewRecorder()
	RequireRole(domain.RoleAdmin)(http.HandlerFunc(okHandler)).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", nil))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("WWW-Authenticate"))
	assert.JSONEq(t, `{"error":"unauthorized","error_code":401}`, rr.Body.String())
}

func TestRequireRole_UserCannotCreate(t *testing.T) {
	rr := httptest.NewRecorder()
	RequireRole(domain.RoleAdmin)(http.HandlerFunc(okHandler)).ServeHTTP(rr, requestAs(domain.RoleUser))

	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.JSONEq(t, `{"error":"forbidden","error_code":403}`, rr.Body.String())
}

func TestRequireRole_Admin(t *testing.T) {
	rr := httptest.NewRecorder()
	RequireRole(domain.RoleAdmin)(http.HandlerFunc(okHandler)).ServeHTTP(rr, requestAs(domain.RoleAdmin))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRequireRole_AnyOfSeveral(t *testing.T) {
	rr := httptest.NewRecorder()
	RequireRole(domain.RoleAdmin, domain.RoleUser)(http.HandlerFunc(okHandler)).ServeHTTP(rr, requestAs(domain.RoleUser))
	assert.Equal(t, http.StatusOK, rr.Code)
}
