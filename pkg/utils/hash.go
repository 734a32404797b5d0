package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

func HashString(input string) string {
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])
}

// HashQuery hashes a user question after folding case and whitespace, so
// "Pipeline  for Mining?" and "pipeline for mining?" share a cache entry.
func HashQuery(query string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	return HashString(normalized)
}
