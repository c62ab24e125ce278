package xid

import (
	"strings"

	"github.com/google/uuid"
)

// New returns a random identifier with a readable prefix, e.g. "sale-3f2a...".
func New(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if prefix == "" {
		return id
	}
	return prefix + "-" + id
}

// Valid reports whether id looks like something New produced for prefix.
func Valid(prefix string, id string) bool {
	rest, ok := strings.CutPrefix(id, prefix+"-")
	if !ok || len(rest) != 32 {
		return false
	}
	_, err := uuid.Parse(rest)
	return err == nil
}
