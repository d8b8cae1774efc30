package endpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHash_Deterministic(t *testing.T) {
	e := "https://fcm.googleapis.com/fcm/send/abc123"
	assert.Equal(t, Hash(e), Hash(e))
	assert.Len(t, Hash(e), 64)
}

func TestHash_DistinctEndpoints(t *testing.T) {
	assert.NotEqual(t, Hash("https://push.example/a"), Hash("https://push.example/b"))
}
