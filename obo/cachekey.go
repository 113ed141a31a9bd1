package obo

import (
	"encoding/hex"
	"sort"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// cacheKey computes hash(assertion) ⊕ sortedScopes as specified in §3's OBO
// Cache Entry definition — a stable, collision-resistant key so identical
// (assertion, scopes) pairs always hit the same cache slot regardless of the
// order scopes were requested in. blake2b is preferred over sha256 here
// because it's the sub-package the teacher's crypto dependency was
// repointed at once its original bcrypt use had no home in this BFF (see
// DESIGN.md).
func cacheKey(assertion string, scopes []string) string {
	sorted := append([]string(nil), scopes...)
	sort.Strings(sorted)

	sum := blake2b.Sum256([]byte(assertion))
	return "obo:" + hex.EncodeToString(sum[:]) + "|" + strings.Join(sorted, ",")
}
