// Package checksum provides the digests used to name and compare store documents.
package checksum

import (
	"crypto/md5" //nolint:gosec // file naming, not security
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Identity returns the hex-encoded MD5 digest of an asset identity. The
// digest is unkeyed so a given identity maps to the same store file name
// in every process.
func Identity(identity string) string {
	h := md5.Sum([]byte(identity)) //nolint:gosec
	return hex.EncodeToString(h[:])
}
