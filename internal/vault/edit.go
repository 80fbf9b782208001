package vault

import (
	"strings"

	"github.com/google/uuid"
)

// NewPlaceholderID returns a unique token for an in-flight upload
// placeholder.
func NewPlaceholderID() string {
	return uuid.NewString()
}

// PlaceholderFor is the transient embed written while an upload is in
// flight, later swapped for the real embed or a failure comment.
func PlaceholderFor(id string) string {
	return "![Uploading to Eagle..." + id + "]()"
}

// EmbedFor renders the durable Eagle embed. The alt text carries the
// item id so the link can be repaired later even if the URL rots.
func EmbedFor(itemID, fileURL string) string {
	return "![eagle:" + itemID + "](" + fileURL + ")"
}

// FailureCommentFor replaces a placeholder when an upload fails, keeping
// the note valid while flagging the problem to the author.
func FailureCommentFor(message string) string {
	return "<!--⚠️ " + message + "-->"
}

// InsertPlaceholder splices a placeholder embed into content at the
// given byte offset, clamped to the content bounds.
func InsertPlaceholder(content string, offset int, id string) string {
	if offset < 0 {
		offset = 0
	}
	if offset > len(content) {
		offset = len(content)
	}
	return content[:offset] + PlaceholderFor(id) + content[offset:]
}

// ReplaceFirstOccurrence substitutes the first exact match of target and
// reports whether a replacement happened.
func ReplaceFirstOccurrence(content, target, replacement string) (string, bool) {
	if target == "" {
		return content, false
	}
	idx := strings.Index(content, target)
	if idx == -1 {
		return content, false
	}
	return content[:idx] + replacement + content[idx+len(target):], true
}
