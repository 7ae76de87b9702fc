// Package strings provides string normalization shared by the write and read sides.
package strings

import (
	"strings"

	"github.com/samber/lo"
)

// NormalizeTag trims and lowercases a tag name.
func NormalizeTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}

// NormalizeTags normalizes every tag, drops blanks and removes duplicates.
// First occurrence order is preserved.
//
//	NormalizeTags([]string{" Go ", "rust", "go", ""})
//	// Returns: []string{"go", "rust"}
func NormalizeTags(tags []string) []string {
	if tags == nil {
		return nil
	}
	normalized := lo.Map(tags, func(t string, _ int) string { return NormalizeTag(t) })
	return lo.Uniq(lo.Compact(normalized))
}
