// Package service composes the metadata and blob accessors into the photo
// operations the API exposes. It owns the split-write ordering: blobs are
// written before the metadata that references them and deleted before the
// metadata that references them goes away, so a crash mid-operation leaves
// at worst an orphaned blob, never metadata pointing at nothing.
package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/notes-bin/photoleader/internal/model"
	"github.com/notes-bin/photoleader/internal/store"
)

// MetadataStore is the slice of the store client the service needs for
// metadata documents.
type MetadataStore interface {
	Insert(ctx context.Context, photo *model.Photo) (primitive.ObjectID, error)
	FindByID(ctx context.Context, id string) (*model.Photo, error)
	List(ctx context.Context, filter store.Filter, skip, limit int64) ([]model.Photo, error)
	Search(ctx context.Context, text string) ([]model.Photo, error)
	Count(ctx context.Context) (int64, error)
	TopUsers(ctx context.Context, limit int64) ([]model.UserCount, error)
	TopTags(ctx context.Context, limit int64) ([]model.TagCount, error)
	DeleteByID(ctx context.Context, id string) (int64, *primitive.ObjectID, error)
}

// BlobStore is the slice of the store client the service needs for the
// binary payloads.
type BlobStore interface {
	PutBlob(ctx context.Context, r io.Reader, name, contentType string) (primitive.ObjectID, error)
	OpenBlob(ctx context.Context, id primitive.ObjectID) (*store.Blob, error)
	DeleteBlob(ctx context.Context, id primitive.ObjectID) error
}

type Photos struct {
	meta  MetadataStore
	blobs BlobStore
}

func NewPhotos(meta MetadataStore, blobs BlobStore) *Photos {
	return &Photos{meta: meta, blobs: blobs}
}

// UploadRequest carries one multipart upload.
type UploadRequest struct {
	Data        []byte
	Filename    string
	ContentType string
	User        string
	Description string
	Tags        []string
}

// Stats is the aggregate view behind /api/stats.
type Stats struct {
	TotalPhotos int64             `json:"total_photos"`
	TopUsers    []model.UserCount `json:"top_users"`
	TopTags     []model.TagCount  `json:"top_tags"`
}

// Create inserts a metadata-only record, without any blob attached.
func (p *Photos) Create(ctx context.Context, photo *model.Photo) (*model.Photo, error) {
	if _, err := p.meta.Insert(ctx, photo); err != nil {
		return nil, err
	}
	decorate(photo)
	return photo, nil
}

// CreateFromUpload stores the blob first, then the metadata referencing
// it. There is no two-phase rollback: a metadata insert failing after the
// blob write leaves an orphaned blob, which is logged for the
// reconciliation sweep and surfaced as the insert's error.
func (p *Photos) CreateFromUpload(ctx context.Context, req UploadRequest) (*model.Photo, error) {
	if req.Filename == "" {
		return nil, &store.Error{Kind: store.ErrValidation, Cause: fmt.Errorf("filename is required")}
	}
	if req.User == "" {
		return nil, &store.Error{Kind: store.ErrValidation, Cause: fmt.Errorf("user is required")}
	}

	uploadID := uuid.NewString()
	blobID, err := p.blobs.PutBlob(ctx, bytes.NewReader(req.Data), req.Filename, req.ContentType)
	if err != nil {
		return nil, err
	}

	photo := &model.Photo{
		Filename:    req.Filename,
		User:        req.User,
		Tags:        req.Tags,
		Description: req.Description,
		SizeKB:      kilobytes(len(req.Data)),
		ContentType: req.ContentType,
		BlobID:      &blobID,
	}
	if _, err := p.meta.Insert(ctx, photo); err != nil {
		slog.Error("metadata insert failed after blob write, blob orphaned",
			"upload_id", uploadID, "blob_id", blobID.Hex(), "error", err)
		return nil, err
	}
	slog.Info("photo stored", "upload_id", uploadID,
		"photo_id", photo.ID.Hex(), "blob_id", blobID.Hex(), "size_kb", photo.SizeKB)
	decorate(photo)
	return photo, nil
}

// DeletePhoto removes the blob best-effort, then the metadata record. The
// metadata document is the authoritative existence record and goes last;
// a failed blob delete is logged and swallowed so the overall delete still
// succeeds once the metadata is gone.
func (p *Photos) DeletePhoto(ctx context.Context, id string) error {
	photo, err := p.meta.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if photo.BlobID != nil {
		if err := p.blobs.DeleteBlob(ctx, *photo.BlobID); err != nil {
			slog.Warn("blob delete failed during photo delete, continuing",
				"photo_id", id, "blob_id", photo.BlobID.Hex(), "error", err)
		}
	}
	if _, _, err := p.meta.DeleteByID(ctx, id); err != nil {
		return err
	}
	return nil
}

func (p *Photos) GetPhoto(ctx context.Context, id string) (*model.Photo, error) {
	photo, err := p.meta.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	decorate(photo)
	return photo, nil
}

func (p *Photos) ListPhotos(ctx context.Context, filter store.Filter, skip, limit int64) ([]model.Photo, error) {
	photos, err := p.meta.List(ctx, filter, skip, limit)
	if err != nil {
		return nil, err
	}
	decorateAll(photos)
	return photos, nil
}

func (p *Photos) PhotosByUser(ctx context.Context, user string) ([]model.Photo, error) {
	photos, err := p.meta.List(ctx, store.Filter{User: user}, 0, store.SubListLimit)
	if err != nil {
		return nil, err
	}
	decorateAll(photos)
	return photos, nil
}

func (p *Photos) PhotosByTag(ctx context.Context, tag string) ([]model.Photo, error) {
	photos, err := p.meta.List(ctx, store.Filter{Tag: tag}, 0, store.SubListLimit)
	if err != nil {
		return nil, err
	}
	decorateAll(photos)
	return photos, nil
}

func (p *Photos) Search(ctx context.Context, text string) ([]model.Photo, error) {
	photos, err := p.meta.Search(ctx, text)
	if err != nil {
		return nil, err
	}
	decorateAll(photos)
	return photos, nil
}

func (p *Photos) Stats(ctx context.Context) (*Stats, error) {
	total, err := p.meta.Count(ctx)
	if err != nil {
		return nil, err
	}
	users, err := p.meta.TopUsers(ctx, 5)
	if err != nil {
		return nil, err
	}
	tags, err := p.meta.TopTags(ctx, 10)
	if err != nil {
		return nil, err
	}
	return &Stats{TotalPhotos: total, TopUsers: users, TopTags: tags}, nil
}

// FetchBlob resolves metadata, then the blob. Either step's absence is a
// plain not-found; a metadata record without a blob reference has no bytes
// to serve.
func (p *Photos) FetchBlob(ctx context.Context, id string) (*store.Blob, *model.Photo, error) {
	photo, err := p.meta.FindByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if photo.BlobID == nil {
		return nil, nil, &store.Error{Kind: store.ErrNotFound, Cause: fmt.Errorf("photo %s has no blob", id)}
	}
	blob, err := p.blobs.OpenBlob(ctx, *photo.BlobID)
	if err != nil {
		return nil, nil, err
	}
	if blob.ContentType == "" {
		blob.ContentType = photo.ContentType
	}
	return blob, photo, nil
}

// kilobytes converts a byte length to KB rounded to two decimals, the
// precision stored in size_kb.
func kilobytes(n int) float64 {
	return math.Round(float64(n)/1024*100) / 100
}

func decorate(p *model.Photo) {
	if p.BlobID != nil {
		p.PhotoURL = fmt.Sprintf("/api/photos/%s/file", p.ID.Hex())
	}
}

func decorateAll(photos []model.Photo) {
	for i := range photos {
		decorate(&photos[i])
	}
}
