package utils

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// Message length limits
const (
	MaxMessageLength  = 8000
	MaxTagLength      = 50
	MaxTagsPerMessage = 20
	MaxCategoryLength = 50
)

var (
	ErrEmptyMessage   = errors.New("message cannot be empty")
	ErrMessageTooLong = errors.New("message exceeds maximum length")
)

// SanitizeMessageBody trims body and enforces the length limits. The text
// itself is stored as sent; clients escape it when rendering.
func SanitizeMessageBody(body string) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", ErrEmptyMessage
	}
	if utf8.RuneCountInString(body) > MaxMessageLength {
		return "", ErrMessageTooLong
	}
	return body, nil
}

// NormalizeTags trims, drops empties and duplicates, truncates long tags and
// caps the list length. Order of first occurrence is kept.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = TruncateString(strings.TrimSpace(t), MaxTagLength)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
		if len(out) == MaxTagsPerMessage {
			break
		}
	}
	return out
}

// TruncateString safely truncates a string to max runes
func TruncateString(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen])
}
