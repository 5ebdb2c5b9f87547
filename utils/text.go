// utils/text.go - Text and filename helpers shared by services
package utils

import (
	"strings"
	"unicode"
)

// SplitList splits a delimiter-separated cell (member lists, attachment
// path lists) on any of the given separators, trimming whitespace and
// dropping empties while preserving order.
func SplitList(value string, seps ...rune) []string {
	if len(seps) == 0 {
		seps = []rune{','}
	}
	isSep := func(r rune) bool {
		for _, s := range seps {
			if r == s {
				return true
			}
		}
		return false
	}

	var items []string
	for _, part := range strings.FieldsFunc(value, isSep) {
		cleaned := strings.TrimSpace(part)
		if cleaned != "" {
			items = append(items, cleaned)
		}
	}
	return items
}

// UniqueFold returns items with case-insensitive duplicates removed,
// keeping first occurrences in order.
func UniqueFold(items []string) []string {
	seen := make(map[string]bool, len(items))
	var out []string
	for _, item := range items {
		key := strings.ToLower(item)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, item)
	}
	return out
}

// SanitizeFilename strips characters that are unsafe in a filename,
// collapses spaces to underscores, and never returns an empty string.
func SanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		case r == '_' || r == '-' || r == '.':
			b.WriteRune(r)
		}
	}
	safe := strings.Trim(b.String(), "._")
	if safe == "" {
		return "attachment"
	}
	return safe
}
