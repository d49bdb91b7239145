// settlement-gateway/pkg/digest/digest.go
package digest

import (
	"encoding/hex"

	"golang.org/x/crypto/sha3"
)

// Keccak256 hashes the concatenation of parts. Payment ids and discount
// grant digests are both derived through here so on-chain and off-chain
// observers compute identical commitments.
func Keccak256(parts ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

func Hex(parts ...[]byte) string {
	return hex.EncodeToString(Keccak256(parts...))
}
