package markdown

import "strings"

// headingSpan is one ATX heading line located in the body source.
type headingSpan struct {
	start, end int // byte offsets of the line, excluding the newline
	level      int
	raw        string
}

// linkSpan is one inline link located in the body source.
type linkSpan struct {
	start, end int // byte offsets of the whole [text](dest "title") span
	text       string
	dest       string
	title      string
}

// scanHeadings locates every ATX heading line outside fenced code blocks.
// Setext headings are deliberately not matched; the caller bails out of
// write-back on a count mismatch rather than patch the wrong line.
func scanHeadings(src []byte) []headingSpan {
	var spans []headingSpan
	inFence := false
	var fenceMarker byte
	pos := 0
	for pos <= len(src) {
		end := indexByteFrom(src, '\n', pos)
		lineEnd := end
		if end < 0 {
			lineEnd = len(src)
		}
		line := string(src[pos:lineEnd])
		trimmed := strings.TrimLeft(line, " ")

		if marker, isFence := fenceOf(trimmed); isFence {
			if !inFence {
				inFence = true
				fenceMarker = marker
			} else if marker == fenceMarker {
				inFence = false
			}
		} else if !inFence && len(line)-len(trimmed) < 4 {
			if level := atxLevel(trimmed); level > 0 {
				spans = append(spans, headingSpan{
					start: pos + (len(line) - len(trimmed)),
					end:   lineEnd,
					level: level,
					raw:   trimmed,
				})
			}
		}

		if end < 0 {
			break
		}
		pos = end + 1
	}
	return spans
}

func indexByteFrom(src []byte, b byte, from int) int {
	for i := from; i < len(src); i++ {
		if src[i] == b {
			return i
		}
	}
	return -1
}

func fenceOf(trimmed string) (byte, bool) {
	if strings.HasPrefix(trimmed, "```") {
		return '`', true
	}
	if strings.HasPrefix(trimmed, "~~~") {
		return '~', true
	}
	return 0, false
}

// atxLevel returns 1-6 for a `# `-prefixed line, 0 otherwise.
func atxLevel(line string) int {
	n := 0
	for n < len(line) && line[n] == '#' {
		n++
	}
	if n < 1 || n > 6 {
		return 0
	}
	if n == len(line) {
		return n
	}
	if line[n] == ' ' || line[n] == '\t' {
		return n
	}
	return 0
}

// scanInlineLinks locates every inline link span in document order,
// skipping fenced code blocks, inline code spans, escaped brackets and
// image syntax. Reference-style links are not matched.
func scanInlineLinks(src []byte) []linkSpan {
	var spans []linkSpan
	inFence := false
	var fenceMarker byte
	atLineStart := true

	for i := 0; i < len(src); {
		if atLineStart {
			lineEnd := indexByteFrom(src, '\n', i)
			if lineEnd < 0 {
				lineEnd = len(src)
			}
			trimmed := strings.TrimLeft(string(src[i:lineEnd]), " ")
			if marker, isFence := fenceOf(trimmed); isFence {
				if !inFence {
					inFence = true
					fenceMarker = marker
				} else if marker == fenceMarker {
					inFence = false
				}
				i = lineEnd
				if i < len(src) {
					i++
				}
				continue
			}
			atLineStart = false
		}

		ch := src[i]
		switch {
		case ch == '\n':
			atLineStart = true
			i++
		case inFence:
			i++
		case ch == '\\':
			i += 2
		case ch == '`':
			i = skipCodeSpan(src, i)
		case ch == '[' && (i == 0 || src[i-1] != '!'):
			if span, next, ok := parseInlineLink(src, i); ok {
				spans = append(spans, span)
				i = next
			} else {
				i++
			}
		default:
			i++
		}
	}
	return spans
}

// skipCodeSpan advances past a backtick code span: a run of n backticks is
// closed by the next run of exactly n. An unclosed run is literal text.
func skipCodeSpan(src []byte, i int) int {
	n := 0
	for i+n < len(src) && src[i+n] == '`' {
		n++
	}
	j := i + n
	for j < len(src) {
		if src[j] != '`' {
			j++
			continue
		}
		m := 0
		for j+m < len(src) && src[j+m] == '`' {
			m++
		}
		if m == n {
			return j + m
		}
		j += m
	}
	return i + n
}

// parseInlineLink parses [text](dest "title") starting at the opening
// bracket, returning the span and the offset just past it.
func parseInlineLink(src []byte, start int) (linkSpan, int, bool) {
	textEnd := matchBracket(src, start)
	if textEnd < 0 || textEnd+1 >= len(src) || src[textEnd+1] != '(' {
		return linkSpan{}, 0, false
	}
	dest, title, end, ok := parseLinkTail(src, textEnd+2)
	if !ok {
		return linkSpan{}, 0, false
	}
	return linkSpan{
		start: start,
		end:   end,
		text:  string(src[start+1 : textEnd]),
		dest:  dest,
		title: title,
	}, end, true
}

// matchBracket finds the ] closing the [ at start, honouring nesting,
// escapes and code spans. Returns -1 when unclosed or crossing a blank line.
func matchBracket(src []byte, start int) int {
	depth := 0
	for i := start; i < len(src); {
		switch src[i] {
		case '\\':
			i += 2
		case '`':
			i = skipCodeSpan(src, i)
		case '[':
			depth++
			i++
		case ']':
			depth--
			if depth == 0 {
				return i
			}
			i++
		case '\n':
			if i+1 < len(src) && src[i+1] == '\n' {
				return -1
			}
			i++
		default:
			i++
		}
	}
	return -1
}

// parseLinkTail parses the destination and optional quoted title inside the
// parenthesised tail, starting just past the opening paren. Returns the
// offset just past the closing paren.
func parseLinkTail(src []byte, i int) (dest, title string, end int, ok bool) {
	for i < len(src) && (src[i] == ' ' || src[i] == '\n') {
		i++
	}

	var db strings.Builder
	if i < len(src) && src[i] == '<' {
		i++
		for i < len(src) && src[i] != '>' {
			if src[i] == '\n' {
				return "", "", 0, false
			}
			db.WriteByte(src[i])
			i++
		}
		if i >= len(src) {
			return "", "", 0, false
		}
		i++
	} else {
		depth := 0
		for i < len(src) {
			c := src[i]
			if c == '\\' && i+1 < len(src) {
				db.WriteByte(c)
				db.WriteByte(src[i+1])
				i += 2
				continue
			}
			if c == '(' {
				depth++
			}
			if c == ')' {
				if depth == 0 {
					break
				}
				depth--
			}
			if c == ' ' || c == '\n' {
				break
			}
			db.WriteByte(c)
			i++
		}
	}
	dest = db.String()

	for i < len(src) && (src[i] == ' ' || src[i] == '\n') {
		i++
	}
	if i < len(src) && (src[i] == '"' || src[i] == '\'') {
		quote := src[i]
		i++
		var tb strings.Builder
		for i < len(src) && src[i] != quote {
			if src[i] == '\\' && i+1 < len(src) {
				tb.WriteByte(src[i+1])
				i += 2
				continue
			}
			tb.WriteByte(src[i])
			i++
		}
		if i >= len(src) {
			return "", "", 0, false
		}
		title = tb.String()
		i++
		for i < len(src) && (src[i] == ' ' || src[i] == '\n') {
			i++
		}
	}

	if i >= len(src) || src[i] != ')' {
		return "", "", 0, false
	}
	return dest, title, i + 1, true
}
