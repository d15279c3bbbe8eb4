package utils

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
)

func TestExtractURLs(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "Wrapped and bare links in order",
			input:    "check <https://a.com|A> and https://b.com",
			expected: []string{"https://a.com", "https://b.com"},
		},
		{
			name:     "No links",
			input:    "no links here",
			expected: []string{},
		},
		{
			name:     "Empty input",
			input:    "",
			expected: []string{},
		},
		{
			name:     "Duplicates collapse to first occurrence",
			input:    "https://b.com then <https://a.com> then https://b.com again",
			expected: []string{"https://b.com", "https://a.com"},
		},
		{
			name:     "Wrapped link without label",
			input:    "see <http://example.org/path?q=1>",
			expected: []string{"http://example.org/path?q=1"},
		},
		{
			name:     "Trailing sentence punctuation is dropped",
			input:    "read https://go.dev/doc. Also https://pkg.go.dev!",
			expected: []string{"https://go.dev/doc", "https://pkg.go.dev"},
		},
		{
			name:     "Balanced parens are kept",
			input:    "https://en.wikipedia.org/wiki/Go_(programming_language)",
			expected: []string{"https://en.wikipedia.org/wiki/Go_(programming_language)"},
		},
		{
			name:     "Parenthesised link drops the closing paren",
			input:    "(see https://go.dev/blog)",
			expected: []string{"https://go.dev/blog"},
		},
		{
			name:     "Mentions and channel refs are not links",
			input:    "<@U123> posted in <#C1|general>: https://a.com",
			expected: []string{"https://a.com"},
		},
		{
			name:     "Wrapped label is not scanned",
			input:    "<https://a.com|https://b.com>",
			expected: []string{"https://a.com"},
		},
		{
			name:     "Non http schemes are ignored",
			input:    "<mailto:me@example.com|me> ftp://files.example.com",
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractURLs(tt.input)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestExtractURLs_Bounded(t *testing.T) {
	var b strings.Builder
	for i := 0; i < MaxURLMatches*4; i++ {
		fmt.Fprintf(&b, "https://example.com/%d ", i)
	}

	got := ExtractURLs(b.String())
	if len(got) != MaxURLMatches {
		t.Fatalf("Expected %d urls, got %d", MaxURLMatches, len(got))
	}
	if got[0] != "https://example.com/0" {
		t.Errorf("Expected first-seen order, got %s first", got[0])
	}
}
