// Package stream serves committed HLS files to players. Committed files are
// immutable, so any number of concurrent readers share them without locking.
package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/your-org/streamvault/internal/asset"
	"github.com/your-org/streamvault/internal/storage"
)

// ErrNotReady means the asset exists but is still uploading or processing.
var ErrNotReady = errors.New("asset not ready for streaming")

// ErrFileNotFound means the asset exists and is ready, but the requested
// filename is not part of its committed bundle.
var ErrFileNotFound = errors.New("file not found in asset")

// Server resolves and serves files from committed asset directories.
type Server struct {
	store  asset.Store
	layout *storage.Layout
}

// NewServer constructs a Server over the given metadata store and layout.
func NewServer(store asset.Store, layout *storage.Layout) *Server {
	return &Server{store: store, layout: layout}
}

// Resolve checks the asset's lifecycle status and the filename, returning the
// on-disk path and content type. Errors: asset.ErrNotFound (asset absent or
// failed), ErrNotReady, storage.ErrInvalidName, ErrFileNotFound.
func (s *Server) Resolve(ctx context.Context, assetID, filename string) (string, string, error) {
	a, err := s.store.Get(ctx, assetID)
	if err != nil {
		return "", "", err
	}
	if a.Status == asset.StatusFailed {
		return "", "", asset.ErrNotFound
	}
	if !a.Status.Streamable() {
		return "", "", ErrNotReady
	}

	path, err := s.layout.FilePath(assetID, filename)
	if err != nil {
		return "", "", err
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", "", ErrFileNotFound
		}
		return "", "", fmt.Errorf("stat %s: %w", filename, err)
	}
	if info.IsDir() {
		return "", "", ErrFileNotFound
	}
	return path, ContentType(filename), nil
}

// ServeFile resolves the request and streams the file, honoring Range
// headers. It reports the number of bytes the file spans so callers can
// account for transfer volume.
func (s *Server) ServeFile(w http.ResponseWriter, r *http.Request, assetID, filename string) (int64, error) {
	path, contentType, err := s.Resolve(r.Context(), assetID, filename)
	if err != nil {
		return 0, err
	}

	f, err := os.Open(path)
	if err != nil {
		// The directory can vanish between Resolve and Open when a deletion
		// lands in between; that is an ordinary miss, not an I/O defect.
		if os.IsNotExist(err) {
			return 0, ErrFileNotFound
		}
		return 0, fmt.Errorf("open %s: %w", filename, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", filename, err)
	}

	w.Header().Set("Content-Type", contentType)
	http.ServeContent(w, r, filename, info.ModTime(), f)
	return info.Size(), nil
}

// ContentType maps a filename extension to the fixed MIME type used on the
// streaming path.
func ContentType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".m3u8", ".m3u":
		return "application/vnd.apple.mpegurl"
	case ".ts":
		return "video/mp2t"
	default:
		return "application/octet-stream"
	}
}
