// Package ingest coordinates bundle uploads: stage, validate, promote
// atomically, record, and hand the committed directory to the external media
// processor. It also owns asset deletion.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/your-org/streamvault/internal/asset"
	"github.com/your-org/streamvault/internal/bundle"
	"github.com/your-org/streamvault/internal/storage"
	"github.com/your-org/streamvault/pkg/storage/objectstore"
)

// ErrForbidden is returned when the requester does not own the asset.
var ErrForbidden = errors.New("access denied")

// Publisher sends processing job events; satisfied by the kafka producer.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte, headers map[string]string) error
}

// Params wires the service's collaborators. Producer and Mirror may be nil.
type Params struct {
	Store     asset.Store
	Layout    *storage.Layout
	Stager    *storage.Stager
	Validator *bundle.Validator
	Producer  Publisher
	Mirror    objectstore.Client
	Logger    *zap.Logger
}

// Service is the ingest and deletion coordinator.
type Service struct {
	store     asset.Store
	layout    *storage.Layout
	stager    *storage.Stager
	validator *bundle.Validator
	producer  Publisher
	mirror    objectstore.Client
	logger    *zap.Logger
}

// NewService constructs the coordinator.
func NewService(p Params) *Service {
	return &Service{
		store:     p.Store,
		layout:    p.Layout,
		stager:    p.Stager,
		validator: p.Validator,
		producer:  p.Producer,
		mirror:    p.Mirror,
		logger:    p.Logger,
	}
}

// UploadFile is one named part of the multipart upload.
type UploadFile struct {
	Name string
	Open func() (io.ReadCloser, error)
}

// IngestRequest carries the owner identity, metadata and the bundle files.
type IngestRequest struct {
	OwnerID     string
	Title       string
	Description string
	Files       []UploadFile
}

// Ingest runs the full write path. On any failure no asset record exists and
// no directory is visible; on success the returned asset is `ready`, or
// `processing` when a media processor is configured.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (*asset.Asset, error) {
	id := uuid.NewString()

	staging, err := s.stager.Begin(id)
	if err != nil {
		return nil, fmt.Errorf("begin staging: %w", err)
	}

	files, checksum, err := s.stage(staging, req.Files)
	if err != nil {
		staging.Discard()
		return nil, err
	}

	result, err := s.validator.Validate(files, staging)
	if err != nil {
		staging.Discard()
		return nil, err
	}

	// Single visibility flip: after this the directory is fully present or,
	// on error, fully absent.
	if err := staging.Promote(); err != nil {
		return nil, err
	}

	a := &asset.Asset{
		ID:             id,
		OwnerID:        req.OwnerID,
		Title:          req.Title,
		Description:    req.Description,
		MasterPlaylist: result.Master,
		FileCount:      result.FileCount,
		TotalSize:      result.TotalSize,
		Status:         asset.StatusUploading,
	}
	if err := s.store.Create(ctx, a); err != nil {
		// Keep the invariant: no directory without a record.
		if rerr := s.layout.Remove(id); rerr != nil {
			s.logger.Error("rollback of committed directory failed",
				zap.String("asset_id", id), zap.Error(rerr))
		}
		return nil, fmt.Errorf("create asset record: %w", err)
	}

	next := asset.StatusReady
	if s.producer != nil {
		if err := s.dispatchProcessing(ctx, a, checksum); err != nil {
			// The bundle is committed and streamable; only the duration and
			// thumbnail enrichment is lost.
			s.logger.Warn("processing dispatch failed, marking asset ready",
				zap.String("asset_id", id), zap.Error(err))
		} else {
			next = asset.StatusProcessing
		}
	}
	if err := s.store.UpdateStatus(ctx, id, asset.StatusUploading, next); err != nil {
		// Never leave a record stuck at uploading: undo the creation so the
		// caller can retry from a clean state.
		if _, derr := s.store.Delete(ctx, id, req.OwnerID); derr != nil {
			s.logger.Error("rollback of asset record failed",
				zap.String("asset_id", id), zap.Error(derr))
		}
		if rerr := s.layout.Remove(id); rerr != nil {
			s.logger.Error("rollback of committed directory failed",
				zap.String("asset_id", id), zap.Error(rerr))
		}
		return nil, fmt.Errorf("finalize asset status: %w", err)
	}
	a.Status = next

	if s.mirror != nil {
		go s.mirrorBundle(a.ID, result)
	}

	s.logger.Info("bundle committed",
		zap.String("asset_id", id),
		zap.String("master", result.Master),
		zap.Int("files", result.FileCount),
		zap.Int64("bytes", result.TotalSize),
		zap.String("status", string(next)))
	return a, nil
}

// stage copies every upload into the staging directory, hashing as it goes.
func (s *Service) stage(staging *storage.Staging, uploads []UploadFile) ([]bundle.File, string, error) {
	seen := make(map[string]bool, len(uploads))
	files := make([]bundle.File, 0, len(uploads))
	hasher := sha256.New()

	for _, up := range uploads {
		if seen[up.Name] {
			return nil, "", fmt.Errorf("duplicate filename %s: %w", up.Name, storage.ErrInvalidName)
		}
		seen[up.Name] = true

		r, err := up.Open()
		if err != nil {
			return nil, "", fmt.Errorf("open upload %s: %w", up.Name, err)
		}
		n, err := staging.Write(up.Name, io.TeeReader(r, hasher))
		r.Close() //nolint:errcheck
		if err != nil {
			return nil, "", err
		}
		files = append(files, bundle.File{Name: up.Name, Size: n})
	}
	return files, hex.EncodeToString(hasher.Sum(nil)), nil
}

func (s *Service) dispatchProcessing(ctx context.Context, a *asset.Asset, checksum string) error {
	dir, err := s.layout.Dir(a.ID)
	if err != nil {
		return err
	}
	job := ProcessingJob{
		AssetID:        a.ID,
		Directory:      dir,
		MasterPlaylist: a.MasterPlaylist,
		FileCount:      a.FileCount,
		TotalSize:      a.TotalSize,
		Checksum:       checksum,
		RequestedAt:    time.Now().UTC(),
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal processing job: %w", err)
	}
	headers := map[string]string{
		"asset_id":   a.ID,
		"event_type": "processing.requested",
	}
	return s.producer.Publish(ctx, []byte(a.ID), payload, headers)
}

// ApplyProcessingResult moves a processing asset to its terminal status based
// on the external processor's outcome.
func (s *Service) ApplyProcessingResult(ctx context.Context, res ProcessingResult) error {
	if res.Error != "" {
		s.logger.Warn("media processing failed",
			zap.String("asset_id", res.AssetID), zap.String("cause", res.Error))
		return s.store.SetProcessingResult(ctx, res.AssetID, nil, nil, asset.StatusFailed)
	}
	return s.store.SetProcessingResult(ctx, res.AssetID, res.DurationSec, res.ThumbnailPath, asset.StatusReady)
}

// HandleResultMessage decodes one result event from the processing results
// topic and applies it.
func (s *Service) HandleResultMessage(ctx context.Context, key, value []byte) error {
	var res ProcessingResult
	if err := json.Unmarshal(value, &res); err != nil {
		return fmt.Errorf("decode processing result: %w", err)
	}
	if res.AssetID == "" {
		res.AssetID = string(key)
	}
	if err := s.ApplyProcessingResult(ctx, res); err != nil {
		// A result for an already-deleted asset is not an error worth retrying.
		if errors.Is(err, asset.ErrNotFound) {
			s.logger.Debug("processing result for missing asset",
				zap.String("asset_id", res.AssetID))
			return nil
		}
		return err
	}
	return nil
}

// DeletionResult reports the two halves of a deletion. RecordRemoved is
// always true on a nil-error return; DirErr is non-nil when the directory
// could not be fully reclaimed (an external sweep may retry).
type DeletionResult struct {
	RecordRemoved bool
	DirErr        error
}

// Delete removes the asset record first, so no new stream request can
// resolve it, then removes the directory. In-flight reads on already-open
// handles complete normally.
func (s *Service) Delete(ctx context.Context, id, requesterID string) (*DeletionResult, error) {
	a, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.OwnerID != requesterID {
		return nil, ErrForbidden
	}

	removed, err := s.store.Delete(ctx, id, requesterID)
	if err != nil {
		return nil, fmt.Errorf("delete asset record: %w", err)
	}
	if !removed {
		return nil, asset.ErrNotFound
	}

	res := &DeletionResult{RecordRemoved: true}
	if err := s.layout.Remove(id); err != nil {
		s.logger.Error("asset directory removal failed",
			zap.String("asset_id", id), zap.Error(err))
		res.DirErr = err
	}

	if s.mirror != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			if err := s.mirror.RemovePrefix(ctx, id+"/"); err != nil {
				s.logger.Warn("mirror cleanup failed",
					zap.String("asset_id", id), zap.Error(err))
			}
		}()
	}

	s.logger.Info("asset deleted", zap.String("asset_id", id))
	return res, nil
}

// mirrorBundle copies a committed directory to the object store. Best effort;
// the local directory stays the system of record.
func (s *Service) mirrorBundle(assetID string, result *bundle.Result) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	files, err := s.layout.List(assetID)
	if err != nil {
		s.logger.Warn("mirror listing failed", zap.String("asset_id", assetID), zap.Error(err))
		return
	}
	dir, err := s.layout.Dir(assetID)
	if err != nil {
		s.logger.Warn("mirror path failed", zap.String("asset_id", assetID), zap.Error(err))
		return
	}
	for name, size := range files {
		if err := s.mirrorFile(ctx, assetID, dir, name, size); err != nil {
			s.logger.Warn("mirror upload failed",
				zap.String("asset_id", assetID), zap.String("file", name), zap.Error(err))
			return
		}
	}
	s.logger.Debug("bundle mirrored",
		zap.String("asset_id", assetID), zap.Int("files", result.FileCount))
}

func (s *Service) mirrorFile(ctx context.Context, assetID, dir, name string, size int64) error {
	f, err := os.Open(filepath.Join(dir, name))
	if err != nil {
		return err
	}
	defer f.Close()
	return s.mirror.Put(ctx, assetID+"/"+name, f, size, "application/octet-stream")
}
