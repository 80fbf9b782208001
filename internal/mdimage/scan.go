// Package mdimage locates ![alt](link) image embeds in markdown text as
// exact byte-offset spans, so callers can splice replacements verbatim.
package mdimage

import "strings"

// Token is one image embed occurrence. Start and End are byte offsets
// into the scanned text; text[Start:End] is the full `![alt](link)`
// span.
type Token struct {
	Alt   string
	Link  string
	Start int
	End   int
}

type span struct {
	start int
	end   int
}

// fencedRanges returns the byte ranges covered by fenced code blocks.
// Fences are tracked per line prefix (``` or ~~~); an unterminated
// fence extends to end of input.
func fencedRanges(text string) []span {
	var ranges []span

	openFence := ""
	openStart := 0

	offset := 0
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimLeft(line, " \t")
		fence := ""
		if strings.HasPrefix(trimmed, "```") {
			fence = "```"
		} else if strings.HasPrefix(trimmed, "~~~") {
			fence = "~~~"
		}

		if fence != "" {
			if openFence == "" {
				openFence = fence
				openStart = offset
			} else if openFence == fence {
				// Closing fence line is part of the range.
				ranges = append(ranges, span{start: openStart, end: offset + len(line) + 1})
				openFence = ""
			}
		}

		offset += len(line) + 1
	}

	if openFence != "" {
		ranges = append(ranges, span{start: openStart, end: len(text)})
	}

	return ranges
}

func inRanges(offset int, ranges []span) bool {
	for _, r := range ranges {
		if offset >= r.start && offset < r.end {
			return true
		}
	}
	return false
}

// findClosingUnescaped returns the offset of the first unescaped
// closing character at or after start, or -1.
func findClosingUnescaped(text string, start int, closing byte) int {
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' {
			escaped = true
			continue
		}
		if ch == closing {
			return i
		}
	}
	return -1
}

// findMatchingParen balance-counts parentheses from the opening paren,
// tolerating raw nested parens in file paths.
func findMatchingParen(text string, open int) int {
	depth := 0
	escaped := false
	for i := open; i < len(text); i++ {
		ch := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch ch {
		case '\\':
			escaped = true
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func isSpace(ch byte) bool {
	switch ch {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

// Scan finds all image tokens outside fenced code blocks. The input is
// never mutated and returned spans never overlap.
func Scan(text string) []Token {
	var tokens []Token
	codeRanges := fencedRanges(text)

	idx := 0
	for idx < len(text) {
		rel := strings.Index(text[idx:], "![")
		if rel == -1 {
			break
		}
		start := idx + rel
		idx = start + 2

		if inRanges(start, codeRanges) {
			continue
		}

		altStart := start + 2
		altEnd := findClosingUnescaped(text, altStart, ']')
		if altEnd == -1 {
			continue
		}

		p := altEnd + 1
		for p < len(text) && isSpace(text[p]) {
			p++
		}
		if p >= len(text) || text[p] != '(' {
			continue
		}

		parenClose := findMatchingParen(text, p)
		if parenClose == -1 {
			continue
		}

		tokens = append(tokens, Token{
			Alt:   text[altStart:altEnd],
			Link:  strings.TrimSpace(text[p+1 : parenClose]),
			Start: start,
			End:   parenClose + 1,
		})
		idx = parenClose + 1
	}

	return tokens
}
