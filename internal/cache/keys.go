package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/gitcohort/gitcohort-go/internal/models"
)

// ResourceKind names a cacheable per-resource lookup.
type ResourceKind string

const (
	KindIdentity ResourceKind = "identity"
	KindSummary  ResourceKind = "summary"
	KindProjects ResourceKind = "projects"
)

// ResourceKey builds the per-resource tier key. The window is part of
// the key: summaries for different windows are distinct entries, never
// merged.
func ResourceKey(kind ResourceKind, scopeID string, w models.Window) string {
	return fmt.Sprintf("%s:%s:%d:%d", kind, scopeID, w.Start.Unix(), w.End.Unix())
}

// IdentityKey keys a resolved identity. Identity is window-independent,
// so only the username scopes it.
func IdentityKey(username string) string {
	return fmt.Sprintf("%s:%s", KindIdentity, strings.ToLower(username))
}

// BatchKey hashes the sorted usernames plus the window into the batch
// tier key, so the same cohort queried with the same window is an exact
// repeat regardless of input order.
func BatchKey(usernames []string, w models.Window) string {
	sorted := make([]string, len(usernames))
	for i, u := range usernames {
		sorted[i] = strings.ToLower(strings.TrimSpace(u))
	}
	sort.Strings(sorted)

	h := sha256.New()
	h.Write([]byte(strings.Join(sorted, ",")))
	h.Write([]byte(fmt.Sprintf("|%d|%d", w.Start.Unix(), w.End.Unix())))
	return "batch:" + hex.EncodeToString(h.Sum(nil))
}
