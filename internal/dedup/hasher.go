package dedup

import (
	"crypto/sha256"
	"encoding/hex"
)

// ContentHash is the FIFO content-based deduplication id of body: the hex
// sha256 of the exact bytes.
func ContentHash(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])
}
