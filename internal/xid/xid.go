package xid

import (
	"strings"

	"github.com/google/uuid"
)

// New returns a prefixed random identifier such as "att-3f2a...".
func New(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if prefix == "" {
		return id
	}
	return prefix + "-" + id
}

// IdempotencyKey is sent with invoice creation so the backend can collapse
// duplicate submissions of one checkout attempt.
func IdempotencyKey() string {
	return uuid.NewString()
}
