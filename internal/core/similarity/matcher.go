package similarity

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/halcyonlabs/consilium/internal/core/model"
)

// Threshold is the normalized edit-distance similarity above which two key
// texts are treated as the same logical item.
const Threshold = 0.8

// Normalize lowercases, trims and collapses inner whitespace so that
// formatting noise from repeated extraction passes does not defeat matching.
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// StableID returns a deterministic content-derived id for an item. The same
// normalized key text always produces the same id, which is what makes
// re-merging idempotent.
func StableID(p model.Payload) string {
	key := string(p.Kind()) + ":" + Normalize(p.KeyText())
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:16]
}

// Similarity computes (maxLen - editDistance) / maxLen over normalized text.
func Similarity(a, b string) float64 {
	a = Normalize(a)
	b = Normalize(b)
	if a == "" || b == "" {
		return 0
	}
	maxLen := len([]rune(a))
	if l := len([]rune(b)); l > maxLen {
		maxLen = l
	}
	dist := levenshtein.ComputeDistance(a, b)
	return float64(maxLen-dist) / float64(maxLen)
}

// AreSimilar reports whether two payloads of the same type refer to the same
// logical item. Symmetric and reflexive; empty key text on either side is
// never similar. Not transitive, which is why the merger compares against the
// canonical first-seen key of a cluster only.
func AreSimilar(a, b model.Payload) bool {
	if a.Kind() != b.Kind() {
		return false
	}
	return Similarity(a.KeyText(), b.KeyText()) >= Threshold
}

// AreSimilarText is the raw-text form used where only key text is at hand.
func AreSimilarText(a, b string) bool {
	return Similarity(a, b) >= Threshold
}
