package handler

import (
	"regexp"
	"strings"

	str "overflow/pkg/platform/strings"
)

var tagPattern = regexp.MustCompile(`\[(.*?)\]`)

// SearchQuery is a parsed free-text query.
type SearchQuery struct {
	Text string
	Tag  string
}

// ParseQuery extracts the first bracketed tag from raw and returns the
// remaining text trimmed. "goroutines [go]" yields Text "goroutines" and
// Tag "go". Later bracketed segments are left in the text.
func ParseQuery(raw string) SearchQuery {
	loc := tagPattern.FindStringSubmatchIndex(raw)
	if loc == nil {
		return SearchQuery{Text: strings.TrimSpace(raw)}
	}
	tag := raw[loc[2]:loc[3]]
	text := strings.ReplaceAll(raw, raw[loc[0]:loc[1]], "")
	return SearchQuery{
		Text: strings.TrimSpace(text),
		Tag:  str.NormalizeTag(tag),
	}
}

// Filter renders the tag restriction in the index filter syntax, or "" when
// the query is unrestricted.
func (q SearchQuery) Filter() string {
	if q.Tag == "" {
		return ""
	}
	return "tags:=[" + q.Tag + "]"
}
