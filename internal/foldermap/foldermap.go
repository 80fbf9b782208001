// Package foldermap routes a note's vault folder to an Eagle folder
// name via user-configured prefix rules.
package foldermap

import "strings"

// Mapping pairs a vault folder prefix with an Eagle folder name.
type Mapping struct {
	VaultFolder string `yaml:"vault_folder"`
	EagleFolder string `yaml:"eagle_folder"`
}

// NormalizeFolderPath canonicalizes a vault path for comparison:
// backslashes become slashes, runs of slashes collapse, and leading or
// trailing slashes are trimmed.
func NormalizeFolderPath(input string) string {
	p := strings.TrimSpace(input)
	p = strings.ReplaceAll(p, "\\", "/")
	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}
	return strings.Trim(p, "/")
}

// FolderPathFromFilePath returns the folder part of a note path, empty
// for root-level notes.
func FolderPathFromFilePath(filePath string) string {
	normalized := NormalizeFolderPath(filePath)
	if normalized == "" {
		return ""
	}
	slash := strings.LastIndexByte(normalized, '/')
	if slash == -1 {
		return ""
	}
	return normalized[:slash]
}

// Sanitize normalizes every rule and drops rows whose source or target
// is empty after normalization. Duplicates are kept; resolution order
// handles them.
func Sanitize(mappings []Mapping) []Mapping {
	out := make([]Mapping, 0, len(mappings))
	for _, m := range mappings {
		m.VaultFolder = NormalizeFolderPath(m.VaultFolder)
		m.EagleFolder = NormalizeFolderPath(m.EagleFolder)
		if m.VaultFolder == "" || m.EagleFolder == "" {
			continue
		}
		out = append(out, m)
	}
	return out
}

// Resolve picks the Eagle folder for a note path. A rule matches when
// the note's folder equals the rule source or nests under it. The
// longest source wins; among equally long sources the last declared
// rule wins.
func Resolve(filePath string, mappings []Mapping) (string, bool) {
	folder := FolderPathFromFilePath(filePath)

	matched := ""
	matchedLen := -1
	found := false

	for _, m := range Sanitize(mappings) {
		isMatch := folder == m.VaultFolder || strings.HasPrefix(folder, m.VaultFolder+"/")
		if !isMatch {
			continue
		}
		if len(m.VaultFolder) >= matchedLen {
			matchedLen = len(m.VaultFolder)
			matched = m.EagleFolder
			found = true
		}
	}

	return matched, found
}
