package core

import (
	"strings"

	"github.com/google/uuid"
)

// ProvisionalPrefix namespaces locally generated message ids. The backend never
// issues ids with this prefix.
const ProvisionalPrefix = "tmp:"

// NewProvisionalID returns a fresh placeholder id for an optimistic entry.
func NewProvisionalID() string {
	return ProvisionalPrefix + uuid.NewString()
}

// IsProvisionalID reports whether id was generated locally.
func IsProvisionalID(id string) bool {
	return strings.HasPrefix(id, ProvisionalPrefix)
}
