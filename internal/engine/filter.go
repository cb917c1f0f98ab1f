// Package engine implements the polling match engine: fetch, filter,
// dedup, notify.
package engine

import (
	"strings"

	"vintedwatch/monitor-service/internal/model"
)

// Matches reports whether a listing satisfies every set criterion of a
// search. Filtering is conjunctive; an unset criterion always passes.
// Keyword and category match against the title, brand and size against
// their own fields, all case-insensitive substring.
func Matches(def model.SearchDefinition, l model.Listing) bool {
	if l.Price > def.MaxPrice {
		return false
	}
	return containsFold(l.Title, def.Keyword) &&
		containsFold(l.Brand, def.Brand) &&
		containsFold(l.Title, def.Category) &&
		containsFold(l.Size, def.Size)
}

func containsFold(haystack, needle string) bool {
	needle = strings.TrimSpace(needle)
	if needle == "" {
		return true
	}
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
