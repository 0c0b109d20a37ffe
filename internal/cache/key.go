package cache

import (
	"crypto/sha256"
	"fmt"
)

// HashKey returns the hex SHA-256 of parts joined by NUL separators. It is
// used for logging and persisted identifiers, never as an in-memory key.
func HashKey(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
