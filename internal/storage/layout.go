// Package storage maps asset identifiers to on-disk directories and owns the
// stage-then-publish discipline that makes reads lock-free: a committed
// directory is immutable, and the only mutations are whole-directory creation
// and whole-directory removal.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidName rejects filenames that could escape an asset directory or
// that use characters outside the conservative allow-list.
var ErrInvalidName = errors.New("invalid filename")

// Layout computes canonical paths under a single root, one directory per
// asset identifier. Path computation is pure; List and Exists touch the
// filesystem.
type Layout struct {
	root string
}

// NewLayout creates the root directory if needed and returns the Layout.
func NewLayout(root string) (*Layout, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &Layout{root: abs}, nil
}

// Root returns the absolute storage root.
func (l *Layout) Root() string {
	return l.root
}

// Dir returns the committed directory for an asset identifier.
func (l *Layout) Dir(assetID string) (string, error) {
	if err := CheckName(assetID); err != nil {
		return "", err
	}
	return filepath.Join(l.root, assetID), nil
}

// FilePath returns the canonical path of one file inside an asset directory,
// rejecting traversal attempts with ErrInvalidName.
func (l *Layout) FilePath(assetID, filename string) (string, error) {
	dir, err := l.Dir(assetID)
	if err != nil {
		return "", err
	}
	if err := CheckName(filename); err != nil {
		return "", err
	}
	return filepath.Join(dir, filename), nil
}

// Exists reports whether the asset's committed directory is visible.
func (l *Layout) Exists(assetID string) (bool, error) {
	dir, err := l.Dir(assetID)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat asset dir: %w", err)
	}
	return info.IsDir(), nil
}

// List returns the committed filenames and sizes for an asset.
func (l *Layout) List(assetID string) (map[string]int64, error) {
	dir, err := l.Dir(assetID)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read asset dir: %w", err)
	}
	files := make(map[string]int64, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", e.Name(), err)
		}
		files[e.Name()] = info.Size()
	}
	return files, nil
}

// Remove deletes the whole committed directory for an asset. Open file
// handles held by in-flight readers keep serving until closed.
func (l *Layout) Remove(assetID string) error {
	dir, err := l.Dir(assetID)
	if err != nil {
		return err
	}
	return os.RemoveAll(dir)
}

// CheckName enforces the filename contract: non-empty, no path separators,
// no parent references, characters limited to alphanumerics plus '.', '_',
// '-', and not dot-only.
func CheckName(name string) error {
	if name == "" || len(name) > 255 {
		return ErrInvalidName
	}
	if strings.Contains(name, "/") || strings.Contains(name, "\\") || strings.Contains(name, "..") {
		return ErrInvalidName
	}
	allDots := true
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			allDots = false
		case r == '_' || r == '-':
			allDots = false
		case r == '.':
		default:
			return ErrInvalidName
		}
	}
	if allDots {
		return ErrInvalidName
	}
	return nil
}
