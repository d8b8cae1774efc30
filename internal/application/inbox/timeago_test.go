package inbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimeAgo(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		ago  time.Duration
		want string
	}{
		{"seconds", 59 * time.Second, "just now"},
		{"future", -time.Minute, "just now"},
		{"minutes", 5 * time.Minute, "5m ago"},
		{"hours", 3*time.Hour + 59*time.Minute, "3h ago"},
		{"days", 6 * 24 * time.Hour, "6d ago"},
		{"week", 7 * 24 * time.Hour, "Mar 3, 2026"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, TimeAgo(now, now.Add(-tc.ago)))
		})
	}
}
