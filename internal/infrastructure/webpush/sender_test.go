package webpush

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	webpushgo "github.com/SherClockHolmes/webpush-go"
	"github.com/planboard/notify/internal/config"
	"github.com/planboard/notify/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSender(t *testing.T) *Sender {
	t.Helper()
	priv, pub, err := webpushgo.GenerateVAPIDKeys()
	require.NoError(t, err)
	s, err := NewSender(&config.Config{
		VAPIDPublicKey:  pub,
		VAPIDPrivateKey: priv,
		VAPIDSubscriber: "mailto:ops@planboard.test",
		PushTTL:         60,
	})
	require.NoError(t, err)
	return s
}

func browserSubscription(t *testing.T, endpoint string) domain.PushSubscription {
	t.Helper()
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	auth := make([]byte, 16)
	_, err = rand.Read(auth)
	require.NoError(t, err)
	return domain.PushSubscription{
		Endpoint:  endpoint,
		P256dhKey: base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()),
		AuthKey:   base64.RawURLEncoding.EncodeToString(auth),
		UserID:    "u1",
	}
}

func pushService(status int, hits *atomic.Int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("Authorization") == "" || r.Header.Get("TTL") != "60" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(status)
	}))
}

func TestNewSender_NotConfigured(t *testing.T) {
	_, err := NewSender(&config.Config{})
	assert.True(t, errors.Is(err, domain.ErrPushNotConfigured))
}

func TestSend_Created(t *testing.T) {
	var hits atomic.Int32
	srv := pushService(http.StatusCreated, &hits)
	defer srv.Close()

	err := newTestSender(t).Send(context.Background(), browserSubscription(t, srv.URL+"/push/abc"), domain.PushPayload{Title: "New comment"})

	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestSend_Gone(t *testing.T) {
	var hits atomic.Int32
	srv := pushService(http.StatusGone, &hits)
	defer srv.Close()

	err := newTestSender(t).Send(context.Background(), browserSubscription(t, srv.URL+"/push/abc"), domain.PushPayload{Title: "x"})

	assert.True(t, errors.Is(err, domain.ErrSubscriptionGone))
}

func TestSend_ServerError_Transport(t *testing.T) {
	var hits atomic.Int32
	srv := pushService(http.StatusInternalServerError, &hits)
	defer srv.Close()

	err := newTestSender(t).Send(context.Background(), browserSubscription(t, srv.URL+"/push/abc"), domain.PushPayload{Title: "x"})

	assert.True(t, errors.Is(err, domain.ErrTransport))
	assert.False(t, errors.Is(err, domain.ErrSubscriptionGone))
}
