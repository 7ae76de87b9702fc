package handler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseQuery(t *testing.T) {
	tests := []struct {
		raw    string
		want   SearchQuery
		filter string
	}{
		{raw: "goroutines [go]", want: SearchQuery{Text: "goroutines", Tag: "go"}, filter: "tags:=[go]"},
		{raw: "[go] channels", want: SearchQuery{Text: "channels", Tag: "go"}, filter: "tags:=[go]"},
		{raw: "  plain words  ", want: SearchQuery{Text: "plain words"}},
		{raw: "[Rust]", want: SearchQuery{Tag: "rust"}, filter: "tags:=[rust]"},
		{raw: "a [go] b [rust]", want: SearchQuery{Text: "a  b [rust]", Tag: "go"}, filter: "tags:=[go]"},
		{raw: "repeat [go] and [go]", want: SearchQuery{Text: "repeat  and", Tag: "go"}, filter: "tags:=[go]"},
		{raw: "empty []", want: SearchQuery{Text: "empty"}},
		{raw: "", want: SearchQuery{}},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got := ParseQuery(tt.raw)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.filter, got.Filter())
		})
	}
}
