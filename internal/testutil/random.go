package testutil

import (
	"strings"

	"github.com/google/uuid"
)

// RandomEmail returns a unique address so tests sharing a database do not collide.
func RandomEmail(prefix string) string {
	return prefix + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12] + "@example.com"
}
