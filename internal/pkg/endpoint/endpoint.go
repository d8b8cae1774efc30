package endpoint

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Hash returns the hex BLAKE2b-256 digest of a push endpoint URL. Endpoints
// can be long and carry query strings, so the digest is used as the table key.
func Hash(endpoint string) string {
	sum := blake2b.Sum256([]byte(endpoint))
	return hex.EncodeToString(sum[:])
}
