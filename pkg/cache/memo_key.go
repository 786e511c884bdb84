package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// MemoKey builds the analysis-output memoization key. The org id is part of
// the hash input, so entries are per-org by construction and never cross
// tenants.
func MemoKey(problem, businessType, depth, orgID string) string {
	h := sha256.Sum256([]byte(strings.Join([]string{problem, businessType, depth, orgID}, "|")))
	return "memo:analysis:" + hex.EncodeToString(h[:])
}
