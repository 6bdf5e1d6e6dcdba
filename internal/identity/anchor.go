package identity

import "strings"

// ToAnchor deterministically slugifies a heading title: lowercase,
// non-alphanumerics collapsed to '-', leading/trailing '-' trimmed.
// Idempotent: ToAnchor(ToAnchor(x)) == ToAnchor(x).
func ToAnchor(title string) string {
	var b strings.Builder
	lastDash := false
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash && b.Len() > 0 {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// IsReservedID reports whether id begins with the reserved system prefix.
// Any ID whose text starts with this prefix MUST be rejected on parse
// (§4.1), independent of the Bid-level reserved-namespace check.
func IsReservedID(id, reservedPrefix string) bool {
	return strings.HasPrefix(id, reservedPrefix)
}
