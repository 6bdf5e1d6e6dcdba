package markdown

import "strings"

// brefToken is the machine-readable token carried inside a CommonMark link
// title to pin the link target's stable identity (§4.6 "Canonical link
// transformation").
const brefToken = "bref://"

// autoTitleToken forces the link-text update heuristic on, overriding the
// "text matches old target title" comparison.
const autoTitleToken = "auto-title:true"

// linkTitle is a parsed CommonMark title attribute: any leading user words
// (preserved verbatim) followed by structured tokens.
type linkTitle struct {
	userWords string
	bref      string
	autoTitle bool
}

// parseLinkTitle splits s into user words and structured tokens. User words
// come first; a token anywhere in the string is lifted out and the
// remaining words are re-joined in order.
func parseLinkTitle(s string) linkTitle {
	var lt linkTitle
	var words []string
	for _, w := range strings.Fields(s) {
		switch {
		case strings.HasPrefix(w, brefToken):
			lt.bref = strings.TrimPrefix(w, brefToken)
		case w == autoTitleToken:
			lt.autoTitle = true
		default:
			words = append(words, w)
		}
	}
	lt.userWords = strings.Join(words, " ")
	return lt
}

// String re-serialises the title in canonical order: user words, then
// auto-title override, then the bref token last.
func (lt linkTitle) String() string {
	parts := make([]string, 0, 3)
	if lt.userWords != "" {
		parts = append(parts, lt.userWords)
	}
	if lt.autoTitle {
		parts = append(parts, autoTitleToken)
	}
	if lt.bref != "" {
		parts = append(parts, brefToken+lt.bref)
	}
	return strings.Join(parts, " ")
}
