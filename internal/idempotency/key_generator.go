package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// GenerateKey builds a deterministic key from the provided parts. Grant
// paths derive their keys from the caller-supplied identifier (impression
// id, store transaction id) so retries collapse onto the same record.
func GenerateKey(parts ...interface{}) string {
	h := sha256.New()
	for _, part := range parts {
		fmt.Fprintf(h, "%v:", part)
	}

	return hex.EncodeToString(h.Sum(nil))
}
