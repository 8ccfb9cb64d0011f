package validate

import (
	"strings"
	"unicode/utf8"
)

func Required(value string) bool {
	return strings.TrimSpace(value) != ""
}

// RequiredPtr is Required for optional JSON fields.
func RequiredPtr(value *string) bool {
	return value != nil && Required(*value)
}

// MaxRunes reports whether value fits in limit characters. A non-positive limit disables the check.
func MaxRunes(value string, limit int) bool {
	return limit <= 0 || utf8.RuneCountInString(value) <= limit
}
