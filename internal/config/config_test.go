package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPushPublicKey_RequiresBothKeys(t *testing.T) {
	t.Setenv("VAPID_PUBLIC_KEY", "BPUBKEY")
	t.Setenv("VAPID_PRIVATE_KEY", "")

	cfg := Load()

	assert.False(t, cfg.PushConfigured())
	assert.Empty(t, cfg.PushPublicKey())
}

func TestPushPublicKey_FullPair(t *testing.T) {
	t.Setenv("VAPID_PUBLIC_KEY", "BPUBKEY")
	t.Setenv("VAPID_PRIVATE_KEY", "priv")

	cfg := Load()

	assert.True(t, cfg.PushConfigured())
	assert.Equal(t, "BPUBKEY", cfg.PushPublicKey())
}

func TestDispatchPush(t *testing.T) {
	t.Setenv("PUSH_DISPATCH", "")
	assert.True(t, Load().DispatchPush)

	t.Setenv("PUSH_DISPATCH", "false")
	assert.False(t, Load().DispatchPush)

	t.Setenv("PUSH_DISPATCH", "nonsense")
	assert.True(t, Load().DispatchPush)
}

func TestFeedSourceDefaultsToLocal(t *testing.T) {
	t.Setenv("FEED_SOURCE", "")
	assert.Equal(t, FeedSourceLocal, Load().FeedSource)
}
