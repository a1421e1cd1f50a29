package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/your-org/streamvault/internal/asset"
	"github.com/your-org/streamvault/internal/bundle"
	"github.com/your-org/streamvault/internal/storage"
)

type capturingPublisher struct {
	keys    []string
	values  [][]byte
	headers []map[string]string
	err     error
}

func (p *capturingPublisher) Publish(_ context.Context, key, value []byte, headers map[string]string) error {
	if p.err != nil {
		return p.err
	}
	p.keys = append(p.keys, string(key))
	p.values = append(p.values, value)
	p.headers = append(p.headers, headers)
	return nil
}

type fixture struct {
	service *Service
	store   asset.Store
	layout  *storage.Layout
}

func newFixture(t *testing.T, producer Publisher) *fixture {
	t.Helper()
	base := t.TempDir()

	layout, err := storage.NewLayout(filepath.Join(base, "assets"))
	require.NoError(t, err)
	stager, err := storage.NewStager(filepath.Join(base, "staging"), layout)
	require.NoError(t, err)
	store, err := asset.NewSQLiteStore(filepath.Join(base, "meta.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() }) //nolint:errcheck

	svc := NewService(Params{
		Store:     store,
		Layout:    layout,
		Stager:    stager,
		Validator: &bundle.Validator{MaxBundleBytes: 1 << 20},
		Producer:  producer,
		Logger:    zap.NewNop(),
	})
	return &fixture{service: svc, store: store, layout: layout}
}

func upload(name, content string) UploadFile {
	return UploadFile{
		Name: name,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(content)), nil
		},
	}
}

func validBundle() []UploadFile {
	return []UploadFile{
		upload("playlist.m3u8", "#EXTM3U\nseg1.ts\nseg2.ts\n"),
		upload("seg1.ts", "segment-one"),
		upload("seg2.ts", "segment-two"),
	}
}

func TestIngest_CommitsBundleAndRecord(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	a, err := f.service.Ingest(ctx, IngestRequest{
		OwnerID: "owner-1",
		Title:   "launch teaser",
		Files:   validBundle(),
	})
	require.NoError(t, err)

	// Without a processor the asset is immediately streamable.
	assert.Equal(t, asset.StatusReady, a.Status)
	assert.Equal(t, "playlist.m3u8", a.MasterPlaylist)
	assert.Equal(t, 3, a.FileCount)

	got, err := f.store.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, asset.StatusReady, got.Status)
	assert.Equal(t, "owner-1", got.OwnerID)

	// The committed directory holds exactly the uploaded set.
	files, err := f.layout.List(a.ID)
	require.NoError(t, err)
	assert.Len(t, files, 3)
	assert.Equal(t, int64(len("segment-one")), files["seg1.ts"])

	dir, err := f.layout.Dir(a.ID)
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(dir, "seg2.ts"))
	require.NoError(t, err)
	assert.Equal(t, "segment-two", string(data))
}

func TestIngest_DispatchesProcessingJob(t *testing.T) {
	producer := &capturingPublisher{}
	f := newFixture(t, producer)

	a, err := f.service.Ingest(context.Background(), IngestRequest{
		OwnerID: "owner-1",
		Title:   "t",
		Files:   validBundle(),
	})
	require.NoError(t, err)
	assert.Equal(t, asset.StatusProcessing, a.Status)

	require.Len(t, producer.values, 1)
	assert.Equal(t, a.ID, producer.keys[0])
	assert.Equal(t, "processing.requested", producer.headers[0]["event_type"])

	var job ProcessingJob
	require.NoError(t, json.Unmarshal(producer.values[0], &job))
	assert.Equal(t, a.ID, job.AssetID)
	assert.Equal(t, "playlist.m3u8", job.MasterPlaylist)
	assert.Equal(t, 3, job.FileCount)
	assert.NotEmpty(t, job.Checksum)
	assert.DirExists(t, job.Directory)
}

func TestIngest_PublishFailureStillCommitsReady(t *testing.T) {
	producer := &capturingPublisher{err: errors.New("broker down")}
	f := newFixture(t, producer)

	a, err := f.service.Ingest(context.Background(), IngestRequest{
		OwnerID: "owner-1",
		Title:   "t",
		Files:   validBundle(),
	})
	require.NoError(t, err)
	assert.Equal(t, asset.StatusReady, a.Status)
}

type brokenStatusStore struct {
	asset.Store
}

func (s *brokenStatusStore) UpdateStatus(context.Context, string, asset.Status, asset.Status) error {
	return errors.New("disk full")
}

func TestIngest_StatusFinalizeFailureRollsBack(t *testing.T) {
	base := t.TempDir()
	layout, err := storage.NewLayout(filepath.Join(base, "assets"))
	require.NoError(t, err)
	stager, err := storage.NewStager(filepath.Join(base, "staging"), layout)
	require.NoError(t, err)
	store, err := asset.NewSQLiteStore(filepath.Join(base, "meta.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() }) //nolint:errcheck

	svc := NewService(Params{
		Store:     &brokenStatusStore{Store: store},
		Layout:    layout,
		Stager:    stager,
		Validator: &bundle.Validator{MaxBundleBytes: 1 << 20},
		Logger:    zap.NewNop(),
	})

	_, err = svc.Ingest(context.Background(), IngestRequest{
		OwnerID: "owner-1",
		Title:   "t",
		Files:   validBundle(),
	})
	require.Error(t, err)

	// No record survives at uploading and no directory is left visible.
	page, err := store.List(context.Background(), "owner-1", 100, 0)
	require.NoError(t, err)
	assert.Empty(t, page.Assets)

	entries, err := os.ReadDir(layout.Root())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestIngest_ValidationFailureLeavesNothing(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.service.Ingest(ctx, IngestRequest{
		OwnerID: "owner-1",
		Title:   "t",
		Files: []UploadFile{
			upload("playlist.m3u8", "#EXTM3U\nseg1.ts\nmissing.ts\n"),
			upload("seg1.ts", "data"),
		},
	})
	var verr *bundle.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, bundle.KindDanglingReference, verr.Kind)

	assertEmptyVault(t, f, "owner-1")
}

func TestIngest_DuplicateFilenameRejected(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.service.Ingest(context.Background(), IngestRequest{
		OwnerID: "owner-1",
		Title:   "t",
		Files: []UploadFile{
			upload("playlist.m3u8", "#EXTM3U\nseg1.ts\n"),
			upload("seg1.ts", "data"),
			upload("seg1.ts", "data again"),
		},
	})
	assert.ErrorIs(t, err, storage.ErrInvalidName)
	assertEmptyVault(t, f, "owner-1")
}

func TestIngest_TraversalNameRejected(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.service.Ingest(context.Background(), IngestRequest{
		OwnerID: "owner-1",
		Title:   "t",
		Files: []UploadFile{
			upload("playlist.m3u8", "#EXTM3U\nseg1.ts\n"),
			upload("../escape.ts", "data"),
		},
	})
	assert.ErrorIs(t, err, storage.ErrInvalidName)
	assertEmptyVault(t, f, "owner-1")
}

func TestIngest_RejectionIsRepeatable(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	bad := func() []UploadFile {
		return []UploadFile{upload("seg1.ts", "no playlist here")}
	}
	for i := 0; i < 3; i++ {
		_, err := f.service.Ingest(ctx, IngestRequest{OwnerID: "o", Title: "t", Files: bad()})
		var verr *bundle.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, bundle.KindMissingMasterPlaylist, verr.Kind)
	}
	assertEmptyVault(t, f, "o")
}

func TestApplyProcessingResult(t *testing.T) {
	f := newFixture(t, &capturingPublisher{})
	ctx := context.Background()

	a, err := f.service.Ingest(ctx, IngestRequest{OwnerID: "o", Title: "t", Files: validBundle()})
	require.NoError(t, err)
	require.Equal(t, asset.StatusProcessing, a.Status)

	duration := 420
	thumb := a.ID + "/thumbnail.jpg"
	require.NoError(t, f.service.ApplyProcessingResult(ctx, ProcessingResult{
		AssetID:       a.ID,
		DurationSec:   &duration,
		ThumbnailPath: &thumb,
	}))

	got, err := f.store.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, asset.StatusReady, got.Status)
	require.NotNil(t, got.DurationSec)
	assert.Equal(t, 420, *got.DurationSec)
	require.NotNil(t, got.ThumbnailPath)
	assert.Equal(t, thumb, *got.ThumbnailPath)
}

func TestApplyProcessingResult_Failure(t *testing.T) {
	f := newFixture(t, &capturingPublisher{})
	ctx := context.Background()

	a, err := f.service.Ingest(ctx, IngestRequest{OwnerID: "o", Title: "t", Files: validBundle()})
	require.NoError(t, err)

	require.NoError(t, f.service.ApplyProcessingResult(ctx, ProcessingResult{
		AssetID: a.ID,
		Error:   "ffmpeg exited 1",
	}))

	got, err := f.store.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, asset.StatusFailed, got.Status)
}

func TestHandleResultMessage(t *testing.T) {
	f := newFixture(t, &capturingPublisher{})
	ctx := context.Background()

	a, err := f.service.Ingest(ctx, IngestRequest{OwnerID: "o", Title: "t", Files: validBundle()})
	require.NoError(t, err)

	duration := 6
	payload, err := json.Marshal(ProcessingResult{AssetID: a.ID, DurationSec: &duration})
	require.NoError(t, err)
	require.NoError(t, f.service.HandleResultMessage(ctx, []byte(a.ID), payload))

	got, err := f.store.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, asset.StatusReady, got.Status)

	// Results for assets deleted in the meantime are dropped, not retried.
	payload, err = json.Marshal(ProcessingResult{AssetID: "gone", DurationSec: &duration})
	require.NoError(t, err)
	assert.NoError(t, f.service.HandleResultMessage(ctx, []byte("gone"), payload))

	// Malformed payloads surface a decode error.
	assert.Error(t, f.service.HandleResultMessage(ctx, nil, []byte("{not json")))
}

func TestDelete_RecordFirst(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	a, err := f.service.Ingest(ctx, IngestRequest{OwnerID: "owner-1", Title: "t", Files: validBundle()})
	require.NoError(t, err)

	res, err := f.service.Delete(ctx, a.ID, "owner-1")
	require.NoError(t, err)
	assert.True(t, res.RecordRemoved)
	assert.NoError(t, res.DirErr)

	_, err = f.store.Get(ctx, a.ID)
	assert.ErrorIs(t, err, asset.ErrNotFound)
	exists, err := f.layout.Exists(a.ID)
	require.NoError(t, err)
	assert.False(t, exists)

	// A second delete reports not found.
	_, err = f.service.Delete(ctx, a.ID, "owner-1")
	assert.ErrorIs(t, err, asset.ErrNotFound)
}

func TestDelete_WrongOwnerForbidden(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	a, err := f.service.Ingest(ctx, IngestRequest{OwnerID: "owner-1", Title: "t", Files: validBundle()})
	require.NoError(t, err)

	_, err = f.service.Delete(ctx, a.ID, "owner-2")
	assert.ErrorIs(t, err, ErrForbidden)

	got, err := f.store.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
}

// assertEmptyVault checks the failure invariant: no record and no directory.
func assertEmptyVault(t *testing.T, f *fixture, ownerID string) {
	t.Helper()
	page, err := f.store.List(context.Background(), ownerID, 100, 0)
	require.NoError(t, err)
	assert.Empty(t, page.Assets)

	entries, err := os.ReadDir(f.layout.Root())
	require.NoError(t, err)
	assert.Empty(t, entries)
}
