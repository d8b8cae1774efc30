package id

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_Prefix(t *testing.T) {
	got := New("feed")
	assert.True(t, strings.HasPrefix(got, "feed_"))
	assert.Len(t, got, len("feed_")+26)
}

func TestNew_Ordered(t *testing.T) {
	a, b := New(""), New("")
	assert.Len(t, a, 26)
	assert.Less(t, a, b)
}
