package respcache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/infrawatch/ai-agent/internal/session"
)

// Fingerprint derives the cache key for an equivalent-request class: a pure
// function of the normalized query, the set of retrieved chunk IDs (order
// independent), and the windowed history. Identical inputs always produce the
// same fingerprint; a hit is only ever an exact match.
func Fingerprint(query string, chunkIDs []string, history []session.Message) string {
	h := sha256.New()
	h.Write([]byte(normalizeQuery(query)))
	h.Write([]byte{0})

	sorted := make([]string, len(chunkIDs))
	copy(sorted, chunkIDs)
	sort.Strings(sorted)
	for _, id := range sorted {
		h.Write([]byte(id))
		h.Write([]byte{0})
	}
	h.Write([]byte{0})

	for _, m := range history {
		h.Write([]byte(m.Role))
		h.Write([]byte{0x1f})
		h.Write([]byte(m.Content))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func normalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}
