package store

import (
	"context"
	"io"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

// Blob is an open download stream plus the descriptive fields stored with
// the GridFS file document. Close it after reading.
type Blob struct {
	Name        string
	Length      int64
	ContentType string

	io.ReadCloser
}

func (c *Client) newBucket() (*gridfs.Bucket, error) {
	return gridfs.NewBucket(c.db, options.GridFSBucket().
		SetName(blobBucketName).
		SetWriteConcern(writeconcern.Majority()))
}

// PutBlob stores one immutable byte stream in the bucket and returns its
// fresh identifier. Bucket indexes are built lazily before the first write
// is acknowledged; index builds are writes, so the driver routes them to
// the primary.
//
// The write deadline is a mutable field on the bucket, so each upload gets
// its own short-lived bucket handle. The shared c.bucket is never deadline-
// stamped and stays safe for concurrent use.
func (c *Client) PutBlob(ctx context.Context, r io.Reader, name, contentType string) (primitive.ObjectID, error) {
	if err := c.ensureBlobIndexes(ctx); err != nil {
		return primitive.NilObjectID, err
	}
	bucket, err := c.newBucket()
	if err != nil {
		return primitive.NilObjectID, classify(err)
	}
	if err := bucket.SetWriteDeadline(time.Now().Add(opTimeout)); err != nil {
		return primitive.NilObjectID, classify(err)
	}
	id, err := bucket.UploadFromStream(name, r,
		options.GridFSUpload().SetMetadata(bson.D{{Key: "content_type", Value: contentType}}))
	if err != nil {
		return primitive.NilObjectID, classify(err)
	}
	return id, nil
}

// OpenBlob opens the stored byte stream for id.
func (c *Client) OpenBlob(ctx context.Context, id primitive.ObjectID) (*Blob, error) {
	ds, err := c.bucket.OpenDownloadStream(id)
	if err != nil {
		return nil, classify(err)
	}
	file := ds.GetFile()
	blob := &Blob{
		Name:       file.Name,
		Length:     file.Length,
		ReadCloser: ds,
	}
	if len(file.Metadata) > 0 {
		if ct, err := file.Metadata.LookupErr("content_type"); err == nil {
			blob.ContentType, _ = ct.StringValueOK()
		}
	}
	return blob, nil
}

// DeleteBlob removes the file document and all its chunks. Absent blobs
// report ErrNotFound; cascade callers decide whether that matters.
func (c *Client) DeleteBlob(ctx context.Context, id primitive.ObjectID) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	// DeleteContext honors the context and leaves the bucket's deadline
	// fields untouched.
	if err := c.bucket.DeleteContext(ctx, id); err != nil {
		return classify(err)
	}
	return nil
}

// ensureBlobIndexes creates the bucket's uniqueness index over
// (files_id, n) on the chunks collection and the (filename, uploadDate)
// lookup index on the files collection. Idempotent: createIndexes on an
// existing identical index is a no-op server-side. The ready flag latches
// only after a successful build.
func (c *Client) ensureBlobIndexes(ctx context.Context) error {
	c.blobMu.Lock()
	defer c.blobMu.Unlock()
	if c.blobReady {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	chunks := c.bucket.GetChunksCollection()
	_, err := chunks.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "files_id", Value: 1}, {Key: "n", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return classify(err)
	}

	files := c.bucket.GetFilesCollection()
	_, err = files.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "filename", Value: 1}, {Key: "uploadDate", Value: 1}},
	})
	if err != nil {
		return classify(err)
	}

	c.blobReady = true
	return nil
}
