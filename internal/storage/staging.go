package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Stager writes upload bytes into a private staging area and promotes a
// complete staging directory into the public layout with a single rename.
// Staging and root must share a filesystem or the rename loses atomicity.
type Stager struct {
	stagingRoot string
	layout      *Layout
}

// NewStager creates the staging root and returns the Stager.
func NewStager(stagingRoot string, layout *Layout) (*Stager, error) {
	abs, err := filepath.Abs(stagingRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve staging root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create staging root: %w", err)
	}
	return &Stager{stagingRoot: abs, layout: layout}, nil
}

// Staging is one in-progress upload. It is not safe for concurrent use; each
// ingest owns its own Staging.
type Staging struct {
	assetID string
	dir     string
	stager  *Stager
}

// Begin creates a private staging directory for the asset identifier.
func (s *Stager) Begin(assetID string) (*Staging, error) {
	if err := CheckName(assetID); err != nil {
		return nil, err
	}
	dir := filepath.Join(s.stagingRoot, assetID)
	if err := os.Mkdir(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	return &Staging{assetID: assetID, dir: dir, stager: s}, nil
}

// Write stores one sanitized file in the staging directory.
func (st *Staging) Write(filename string, r io.Reader) (int64, error) {
	if err := CheckName(filename); err != nil {
		return 0, err
	}
	f, err := os.OpenFile(filepath.Join(st.dir, filename), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, fmt.Errorf("create staged file: %w", err)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, fmt.Errorf("write staged file %s: %w", filename, err)
	}
	return n, nil
}

// ReadFile returns a staged file's content, for validation before promotion.
func (st *Staging) ReadFile(filename string) ([]byte, error) {
	if err := CheckName(filename); err != nil {
		return nil, err
	}
	return os.ReadFile(filepath.Join(st.dir, filename))
}

// Promote makes the staged directory visible under the public layout. The
// rename is the single visibility-flipping operation: a concurrent reader
// observes the directory either fully absent or fully present. On rename
// failure the staged files are discarded and nothing becomes visible.
func (st *Staging) Promote() error {
	dst, err := st.stager.layout.Dir(st.assetID)
	if err != nil {
		st.Discard()
		return err
	}
	if err := os.Rename(st.dir, dst); err != nil {
		st.Discard()
		return fmt.Errorf("promote asset %s: %w", st.assetID, err)
	}
	return nil
}

// Discard removes the staging directory and everything in it. Safe to call
// after a successful Promote (the directory no longer exists).
func (st *Staging) Discard() {
	os.RemoveAll(st.dir) //nolint:errcheck
}
