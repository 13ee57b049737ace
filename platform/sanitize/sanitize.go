// Package sanitize provides text sanitization utilities for user-supplied tags.
package sanitize

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxOriginLength bounds the stored length of an assignment origin tag.
const MaxOriginLength = 64

var (
	// htmlTagRegex matches HTML tags
	htmlTagRegex = regexp.MustCompile(`<[^>]*>`)
	// whitespaceRegex collapses runs of whitespace
	whitespaceRegex = regexp.MustCompile(`\s+`)
)

// StripHTML removes all HTML tags from a string, making it safe for text-only display.
func StripHTML(s string) string {
	result := htmlTagRegex.ReplaceAllString(s, "")
	result = strings.ReplaceAll(result, "&lt;", "<")
	result = strings.ReplaceAll(result, "&gt;", ">")
	result = strings.ReplaceAll(result, "&amp;", "&")
	result = strings.ReplaceAll(result, "&quot;", "\"")
	result = strings.ReplaceAll(result, "&#39;", "'")
	// Re-strip after entity decode to catch encoded tags
	result = htmlTagRegex.ReplaceAllString(result, "")
	return strings.TrimSpace(result)
}

// OriginTag normalizes an analytics origin tag: HTML stripped, whitespace
// collapsed, lower-cased and truncated. Empty results become nil.
func OriginTag(s *string) *string {
	if s == nil {
		return nil
	}
	result := strings.ToLower(whitespaceRegex.ReplaceAllString(StripHTML(*s), " "))
	for utf8.RuneCountInString(result) > MaxOriginLength {
		_, size := utf8.DecodeLastRuneInString(result)
		result = result[:len(result)-size]
	}
	result = strings.TrimSpace(result)
	if result == "" {
		return nil
	}
	return &result
}
