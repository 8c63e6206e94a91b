package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// ContentHash returns the hex sha256 of data.
func ContentHash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// MediaKey returns the object key for an image: media/{hash_prefix}/{hash}{ext}.
// Identical content always maps to the same key.
func MediaKey(data []byte, ext string) string {
	h := ContentHash(data)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return fmt.Sprintf("media/%s/%s%s", h[:2], h, strings.ToLower(ext))
}
