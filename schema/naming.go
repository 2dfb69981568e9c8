package schema

import (
	"strings"
	"unicode"
)

// SnakeCase converts a Go identifier to its snake_case column/table form.
// Consecutive upper-case runes are treated as a single abbreviation
// (e.g. "OrderID" -> "order_id", "HTTPStatus" -> "http_status").
func SnakeCase(name string) string {
	var b strings.Builder
	b.Grow(len(name) + 4)

	runes := []rune(name)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			prevLower := i > 0 && unicode.IsLower(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if i > 0 && (prevLower || nextLower) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}

	return b.String()
}
