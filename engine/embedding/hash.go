package embedding

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashContent returns the sha256 hex digest of content.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// ContentChanged reports whether newContent no longer matches oldHash.
func ContentChanged(oldHash string, newContent string) bool {
	return oldHash != HashContent(newContent)
}

// GenerateContentHash combines typed sources into one digest. Sources are
// joined as "type:content" parts separated by "|" in the given order, so the
// caller's ordering is part of the identity.
func GenerateContentHash(sources []ContentSource) string {
	parts := make([]string, 0, len(sources))
	for _, source := range sources {
		parts = append(parts, source.Type+":"+source.Content)
	}
	return HashContent(strings.Join(parts, "|"))
}
