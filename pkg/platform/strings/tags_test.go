package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTags(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{name: "nil slice", input: nil, expected: nil},
		{name: "empty slice", input: []string{}, expected: []string{}},
		{name: "trims and lowercases", input: []string{"  Go  ", "RUST"}, expected: []string{"go", "rust"}},
		{name: "removes case-insensitive duplicates", input: []string{"go", "Go", "rust", "GO"}, expected: []string{"go", "rust"}},
		{name: "drops blanks", input: []string{"", "  ", "go"}, expected: []string{"go"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeTags(tt.input))
		})
	}
}

func TestNormalizeTag(t *testing.T) {
	assert.Equal(t, "performance", NormalizeTag(" Performance "))
}
