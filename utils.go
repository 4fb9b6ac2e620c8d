package manager

import (
	"strings"
	"unicode"
)

// LogicalName - Returns the snake_case logical name of a Go identifier. An upper case rune starts a new word when
// it follows a lower case rune or a digit, or when it ends an acronym: CreateCapsule gives create_capsule and
// ABIVersion gives abi_version.
func LogicalName(ident string) string {
	runes := []rune(ident)
	var b strings.Builder
	b.Grow(len(ident) + 4)
	for i, r := range runes {
		if !unicode.IsUpper(r) {
			b.WriteRune(r)
			continue
		}
		if i > 0 {
			prev := runes[i-1]
			nextIsLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextIsLower) {
				b.WriteByte('_')
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
