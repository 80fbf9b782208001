// Package vault is the note-store boundary: a directory tree of
// markdown files read and rewritten by the upload and relink flows.
package vault

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"eaglelink/internal/imagefmt"
)

const tempDirName = ".eagle-temp"

var ErrUnsafePath = errors.New("unsafe note path")

type Vault struct {
	root   string
	locker *locker
}

func Open(root string) (*Vault, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve vault root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat vault root %s: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("vault root is not a directory: %s", abs)
	}
	return &Vault{root: abs, locker: newLocker()}, nil
}

func (v *Vault) Root() string { return v.root }

// NormalizeNotePath validates and canonicalizes a vault-relative path.
func NormalizeNotePath(p string) (string, error) {
	if strings.ContainsRune(p, 0) {
		return "", ErrUnsafePath
	}
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.TrimPrefix(p, "./")
	if strings.HasPrefix(p, "/") {
		return "", ErrUnsafePath
	}
	clean := path.Clean(p)
	if clean == "." || strings.HasPrefix(clean, "..") {
		return "", ErrUnsafePath
	}
	return clean, nil
}

// AbsPath maps a vault-relative note path to an absolute one.
func (v *Vault) AbsPath(rel string) (string, error) {
	clean, err := NormalizeNotePath(rel)
	if err != nil {
		return "", err
	}
	full := filepath.Join(v.root, filepath.FromSlash(clean))
	if check, err := filepath.Rel(v.root, full); err != nil || strings.HasPrefix(check, "..") {
		return "", ErrUnsafePath
	}
	return full, nil
}

// ListNotes walks the vault and returns all markdown files as sorted
// vault-relative slash paths. Hidden directories and the temp dir are
// skipped.
func (v *Vault) ListNotes() ([]string, error) {
	var notes []string
	err := filepath.WalkDir(v.root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			name := d.Name()
			if p != v.root && (strings.HasPrefix(name, ".") || name == tempDirName) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.EqualFold(filepath.Ext(d.Name()), ".md") {
			return nil
		}
		rel, err := filepath.Rel(v.root, p)
		if err != nil {
			return err
		}
		notes = append(notes, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk vault %s: %w", v.root, err)
	}
	sort.Strings(notes)
	return notes, nil
}

func (v *Vault) ReadNote(rel string) (string, error) {
	full, err := v.AbsPath(rel)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return "", fmt.Errorf("read note %s: %w", rel, err)
	}
	return string(data), nil
}

// WriteNote persists a note atomically, serialized per path.
func (v *Vault) WriteNote(rel, content string) error {
	full, err := v.AbsPath(rel)
	if err != nil {
		return err
	}
	unlock := v.locker.lock(full)
	defer unlock()
	if err := writeFileAtomic(full, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write note %s: %w", rel, err)
	}
	return nil
}

// ReadBinary reads a non-markdown file (a locally embedded image) from
// the vault.
func (v *Vault) ReadBinary(rel string) ([]byte, error) {
	full, err := v.AbsPath(rel)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("read file %s: %w", rel, err)
	}
	return data, nil
}

// SaveTemp writes an asset into the vault's temp dir under a unique
// name so the Eagle process can import it by absolute path. The
// returned cleanup removes the file and is safe to call always.
func (v *Vault) SaveTemp(asset imagefmt.Asset) (string, func(), error) {
	dir := filepath.Join(v.root, tempDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", nil, fmt.Errorf("create temp dir: %w", err)
	}

	name := "eagle-temp-" + uuid.NewString()
	if ext := imagefmt.ExtractExtension(asset.Name); ext != "" {
		name += "." + ext
	}
	full := filepath.Join(dir, name)
	if err := os.WriteFile(full, asset.Data, 0o644); err != nil {
		return "", nil, fmt.Errorf("write temp file: %w", err)
	}

	cleanup := func() {
		_ = os.Remove(full)
	}
	return full, cleanup, nil
}
