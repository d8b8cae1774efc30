package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/planboard/notify/internal/application/feed"
	"github.com/planboard/notify/internal/domain"
	"github.com/planboard/notify/internal/transport/http/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeed_StreamsOwnInserts(t *testing.T) {
	hub := feed.NewHub(0)
	defer hub.Shutdown()
	p := newTestJWTProvider(t)
	srv := httptest.NewServer(middleware.Auth(p)(http.HandlerFunc(NewFeedHandler(hub, []string{"*"}).Serve)))
	defer srv.Close()

	token, err := p.Sign("u1", domain.RoleUser)
	require.NoError(t, err)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/notifications/feed?access_token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, 5*time.Millisecond)
	hub.Publish(domain.Notification{ID: 1, RecipientID: "u2", Title: "not mine"})
	hub.Publish(domain.Notification{ID: 2, RecipientID: "u1", Title: "New comment",
		EntityType: strPtr("content_item"), EntityID: strPtr("5")})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev FeedEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, FeedEventInsert, ev.Type)
	assert.Equal(t, int64(2), ev.Notification.ID)
	assert.Equal(t, "/content?item=5", ev.Notification.Link)
}

func TestFeed_DisconnectReleasesChannel(t *testing.T) {
	hub := feed.NewHub(0)
	defer hub.Shutdown()
	p := newTestJWTProvider(t)
	srv := httptest.NewServer(middleware.Auth(p)(http.HandlerFunc(NewFeedHandler(hub, nil).Serve)))
	defer srv.Close()

	token, err := p.Sign("u1", domain.RoleUser)
	require.NoError(t, err)
	header := http.Header{"Authorization": []string{"Bearer " + token}}
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), header)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool { return hub.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestFeed_RequiresAuth(t *testing.T) {
	hub := feed.NewHub(0)
	defer hub.Shutdown()
	srv := httptest.NewServer(middleware.Auth(newTestJWTProvider(t))(http.HandlerFunc(NewFeedHandler(hub, nil).Serve)))
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)

	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://app.planboard.test"})

	ok := httptest.NewRequest(http.MethodGet, "/", nil)
	ok.Header.Set("Origin", "https://app.planboard.test")
	bad := httptest.NewRequest(http.MethodGet, "/", nil)
	bad.Header.Set("Origin", "https://evil.test")

	assert.True(t, check(ok))
	assert.False(t, check(bad))
}
