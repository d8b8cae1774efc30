package http

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/planboard/notify/internal/application/feed"
	"github.com/planboard/notify/internal/config"
	"github.com/planboard/notify/internal/domain"
	jwtinfra "github.com/planboard/notify/internal/infrastructure/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (http.Handler, *jwtinfra.Provider) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	p := jwtinfra.NewProviderFromKeys(key, &key.PublicKey, time.Hour)
	hub := feed.NewHub(0)
	t.Cleanup(hub.Shutdown)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	cfg := &config.Config{AllowedOrigins: []string{"*"}}
	return NewRouter(ctx, cfg, &Deps{Feed: hub, JWTProvider: p}), p
}

func TestRouter_HealthCheckIsPublic(t *testing.T) {
	r, _ := newTestRouter(t)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health-check/ping", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRouter_NotificationsRequireAuth(t *testing.T) {
	r, _ := newTestRouter(t)
	for _, path := range []string{"/v1/session", "/v1/notifications", "/v1/notifications/unread-count", "/v1/notifications/feed"} {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code, path)
	}
}

func TestRouter_CreateIsAdminOnly(t *testing.T) {
	r, p := newTestRouter(t)
	token, err := p.Sign("u1", domain.RoleUser)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/notifications", bytes.NewBufferString(`{}`))
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
}
