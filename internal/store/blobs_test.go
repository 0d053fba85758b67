package store

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func TestBlobRoundTrip(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()
	payload := bytes.Repeat([]byte("photo"), 2000)

	id, err := c.PutBlob(ctx, bytes.NewReader(payload), "beach.jpg", "image/jpeg")
	require.NoError(t, err)

	blob, err := c.OpenBlob(ctx, id)
	require.NoError(t, err)
	defer blob.Close()

	assert.Equal(t, "beach.jpg", blob.Name)
	assert.Equal(t, int64(len(payload)), blob.Length)
	assert.Equal(t, "image/jpeg", blob.ContentType)

	got, err := io.ReadAll(blob)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	require.NoError(t, c.DeleteBlob(ctx, id))
	err = c.DeleteBlob(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = c.OpenBlob(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpenBlob_Missing(t *testing.T) {
	c := testClient(t)

	_, err := c.OpenBlob(context.Background(), primitive.NewObjectID())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEnsureBlobIndexes(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()

	_, err := c.PutBlob(ctx, bytes.NewReader([]byte("x")), "a.bin", "application/octet-stream")
	require.NoError(t, err)

	cur, err := c.bucket.GetChunksCollection().Indexes().List(ctx)
	require.NoError(t, err)
	var specs []bson.M
	require.NoError(t, cur.All(ctx, &specs))

	found := false
	for _, spec := range specs {
		if spec["name"] == "files_id_1_n_1" {
			found = true
			unique, _ := spec["unique"].(bool)
			assert.True(t, unique, "chunk index must be unique over (files_id, n)")
		}
	}
	assert.True(t, found, "chunks collection must carry the compound index")
}

// unreachableClient builds a Client against a port nothing listens on.
// The driver connects lazily, so construction succeeds and every
// operation fails at server selection.
func unreachableClient(t *testing.T) *Client {
	t.Helper()
	mc, err := mongo.Connect(context.Background(), options.Client().
		SetHosts([]string{"127.0.0.1:1"}).
		SetDirect(true).
		SetServerSelectionTimeout(100*time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(func() { _ = mc.Disconnect(context.Background()) })

	c := &Client{client: mc, db: mc.Database("uploadDB")}
	c.bucket, err = c.newBucket()
	require.NoError(t, err)
	return c
}

// Uploads stamp a write deadline on their own short-lived bucket handle
// and deletes go through DeleteContext, so concurrent blob operations on
// one Client never touch shared mutable bucket state. Run with the race
// detector enabled.
func TestBlobOps_ConcurrentOnOneClient(t *testing.T) {
	c := unreachableClient(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- c.DeleteBlob(ctx, primitive.NewObjectID())
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.PutBlob(ctx, bytes.NewReader([]byte("x")), "a.bin", "application/octet-stream")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.Error(t, err, "operations against a dead store must fail, not hang")
	}
}
