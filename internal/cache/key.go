package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

// GetCacheKey returns the key of a stage result computed from a source
// directory. Relative and absolute spellings of one directory map to the
// same key.
// Format: {stage}-{pathHash} where the hash is 16 chars.
func GetCacheKey(stage, sourcePath string) string {
	return stage + "-" + hashString(normalizeSourcePath(sourcePath))[:16]
}

// normalizeSourcePath returns the cleaned absolute form of a path, or the
// cleaned input when it cannot be made absolute.
func normalizeSourcePath(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return filepath.Clean(p)
	}
	return abs
}

// hashString returns SHA-256 hash of the input string as hex.
func hashString(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}
