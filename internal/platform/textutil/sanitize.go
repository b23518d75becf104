package textutil

import (
	"html"
	"strings"
	"sync"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

var (
	strictPolicyOnce sync.Once
	strictPolicy     *bluemonday.Policy
)

func policy() *bluemonday.Policy {
	strictPolicyOnce.Do(func() {
		strictPolicy = bluemonday.StrictPolicy()
	})
	return strictPolicy
}

// SanitizePlain strips all markup from free-form user input, unescapes HTML
// entities introduced by the policy, collapses internal whitespace, and trims
// the result.
func SanitizePlain(input string) string {
	if input == "" {
		return ""
	}
	cleaned := policy().Sanitize(input)
	cleaned = html.UnescapeString(cleaned)
	return collapseWhitespace(cleaned)
}

// SanitizePlainMax sanitizes the input and truncates it to at most max runes.
func SanitizePlainMax(input string, max int) string {
	cleaned := SanitizePlain(input)
	if max <= 0 {
		return cleaned
	}
	runes := []rune(cleaned)
	if len(runes) <= max {
		return cleaned
	}
	return strings.TrimRightFunc(string(runes[:max]), unicode.IsSpace)
}

func collapseWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}
