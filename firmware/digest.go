package firmware

import (
	"encoding/hex"
	"strings"

	"github.com/zeebo/blake3"
)

// Digest returns the BLAKE3-256 digest of data as lowercase hex.
func Digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// VerifyDigest checks data against an expected hex digest. An empty
// expectation always passes.
func VerifyDigest(data []byte, expected string) error {
	if expected == "" {
		return nil
	}
	actual := Digest(data)
	if !strings.EqualFold(actual, strings.TrimSpace(expected)) {
		return &DigestMismatchError{Expected: expected, Actual: actual}
	}
	return nil
}
