// Package fileurl converts filesystem paths coming back from the Eagle
// API into file:// URLs the markdown renderer accepts verbatim.
package fileurl

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

const fileScheme = "file://"

var driveSegment = regexp.MustCompile(`^[A-Za-z]:$`)
var drivePrefix = regexp.MustCompile(`^[A-Za-z]:/`)

// encodeSegment percent-encodes one path segment. Parentheses are
// forced to %28/%29 because the renderer treats raw parens inside a
// markdown link target as syntax.
func encodeSegment(segment string) string {
	escaped := url.PathEscape(segment)
	escaped = strings.ReplaceAll(escaped, "(", "%28")
	escaped = strings.ReplaceAll(escaped, ")", "%29")
	return escaped
}

// FromPath converts an absolute filesystem path to a file:// URL.
// Backslashes normalize to slashes, Windows drive letters keep their
// colon unencoded, and UNC paths keep the host as authority.
func FromPath(path string) string {
	normalized := strings.ReplaceAll(path, "\\", "/")

	// UNC path: \\server\share\dir or //server/share/dir.
	if strings.HasPrefix(normalized, "//") {
		rest := collapseSlashes(normalized[2:])
		parts := strings.Split(rest, "/")
		host := parts[0]
		encoded := make([]string, 0, len(parts)-1)
		for _, seg := range parts[1:] {
			if seg == "" {
				encoded = append(encoded, "")
				continue
			}
			encoded = append(encoded, encodeSegment(seg))
		}
		return fileScheme + host + "/" + strings.Join(encoded, "/")
	}

	if drivePrefix.MatchString(normalized) {
		normalized = "/" + normalized
	}
	if !strings.HasPrefix(normalized, "/") {
		normalized = "/" + normalized
	}

	parts := strings.Split(normalized, "/")
	encoded := make([]string, len(parts))
	for i, seg := range parts {
		switch {
		case seg == "":
			encoded[i] = ""
		case driveSegment.MatchString(seg):
			encoded[i] = seg
		default:
			encoded[i] = encodeSegment(seg)
		}
	}
	return fileScheme + strings.Join(encoded, "/")
}

func collapseSlashes(s string) string {
	for strings.Contains(s, "//") {
		s = strings.ReplaceAll(s, "//", "/")
	}
	return s
}

// NormalizeEagleAPIPath turns a path string from the Eagle API into a
// renderer-safe file:// URL. API responses are inconsistently encoded:
// raw, percent-encoded, double-encoded, and sometimes already carrying
// a file:// prefix. Each segment is decoded until stable and re-encoded
// once, so the function is idempotent and never double-encodes.
func NormalizeEagleAPIPath(path string) string {
	trimmed := strings.TrimPrefix(path, fileScheme)
	trimmed = strings.ReplaceAll(trimmed, "\\", "/")

	segments := strings.Split(trimmed, "/")
	decoded := make([]string, len(segments))
	for i, seg := range segments {
		decoded[i] = decodeFully(seg)
	}
	return FromPath(strings.Join(decoded, "/"))
}

// decodeFully percent-decodes until a fixed point, bailing out to the
// raw text when a segment is not valid percent-encoding.
func decodeFully(segment string) string {
	current := segment
	for i := 0; i < 4; i++ {
		if !strings.Contains(current, "%") {
			return current
		}
		next, err := url.PathUnescape(current)
		if err != nil || next == current {
			return current
		}
		// A decode that yields invalid UTF-8 was never real encoding.
		if !utf8.ValidString(next) {
			return current
		}
		current = next
	}
	return current
}

// ResolveThumbnailURL turns a search result's thumbnail field into a
// loadable URL: api-relative paths resolve against the Eagle host,
// absolute http(s) URLs pass through, anything else is treated as a
// local file path.
func ResolveThumbnailURL(raw, host string, port int) string {
	trimmed := strings.TrimSpace(raw)
	lower := strings.ToLower(trimmed)

	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return trimmed
	}
	if strings.HasPrefix(lower, "/api/") || strings.HasPrefix(lower, "api/") {
		return fmt.Sprintf("http://%s:%d/%s", host, port, strings.TrimPrefix(trimmed, "/"))
	}
	return NormalizeEagleAPIPath(trimmed)
}
