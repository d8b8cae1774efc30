package id

import (
	"strings"

	"github.com/oklog/ulid/v2"
)

// New returns "<prefix>_<ulid>" in lower case, or the bare ULID when prefix
// is empty. ULIDs sort by creation time, so ids read in open order in logs.
func New(prefix string) string {
	u := strings.ToLower(ulid.Make().String())
	if prefix == "" {
		return u
	}
	return prefix + "_" + u
}
