// Package ownership defines the read-only asset index contract the
// verification engine consults.
package ownership

import (
	"context"
	"strings"
)

// Wildcard matches any collection, attribute key or attribute value.
const Wildcard = "ALL"

// Asset is one held token as seen by the index.
type Asset struct {
	Slug       string
	TokenID    string
	Attributes map[string]string
}

// Criteria is the query the engine asks of the oracle.
type Criteria struct {
	Slug           string
	AttributeKey   string
	AttributeValue string
	MinItems       int
}

// IsWildcard reports whether v is empty or the ALL sentinel.
func IsWildcard(v string) bool {
	return v == "" || v == Wildcard
}

// NormalizeAddress lower-cases and trims an address.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// Oracle answers how many assets matching criteria an address holds.
// Implementations return an *Error when the index cannot be reached; a zero
// count is never used to signal failure.
type Oracle interface {
	CountOwned(ctx context.Context, address string, criteria Criteria) (int, error)
}
