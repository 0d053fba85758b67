// Package store is the access layer for the MongoDB replica set. It owns
// the routing and durability policies: metadata writes are acknowledged by
// a majority of members before they return, listing reads prefer
// secondaries, point lookups and topology probes go to the primary.
package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

const (
	photosCollection = "files"
	blobBucketName   = "photos"

	// Bound on server selection and on majority-acknowledgement waits.
	// Past it the operation fails with ErrTimeout instead of hanging.
	opTimeout = 5 * time.Second
)

// Client wraps a replica-set connection with policy-scoped collection
// handles. One Client lives for the whole process; all methods are safe
// for concurrent use.
type Client struct {
	client *mongo.Client
	db     *mongo.Database

	// writes carries w:majority, reads carries secondaryPreferred,
	// primary carries primary-only routing for read-after-write lookups.
	writes  *mongo.Collection
	reads   *mongo.Collection
	primary *mongo.Collection

	// fallbackAddr is the known-primary address the Topology Monitor
	// dials directly when the routed replSetGetStatus fails.
	fallbackAddr string

	// prober issues the topology commands. It is a seam so the routed
	// and direct replSetGetStatus tiers can be driven without a server.
	prober topologyProber

	bucket *gridfs.Bucket

	// blobMu guards lazy index creation on the bucket collections. The
	// ready flag latches only on success so a failed build is retried by
	// the next write instead of poisoning the process.
	blobMu    sync.Mutex
	blobReady bool
}

// Connect dials the replica set behind uri and verifies liveness with a
// ping before returning.
func Connect(ctx context.Context, uri, dbName, fallbackAddr string) (*Client, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(opTimeout)

	mc, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, classify(err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := mc.Ping(pingCtx, nil); err != nil {
		_ = mc.Disconnect(context.Background())
		return nil, classify(err)
	}

	db := mc.Database(dbName)
	c := &Client{
		client:       mc,
		db:           db,
		prober:       &driverProber{client: mc},
		fallbackAddr: fallbackAddr,
		writes: db.Collection(photosCollection,
			options.Collection().SetWriteConcern(writeconcern.Majority())),
		reads: db.Collection(photosCollection,
			options.Collection().SetReadPreference(readpref.SecondaryPreferred())),
		primary: db.Collection(photosCollection,
			options.Collection().SetReadPreference(readpref.Primary())),
	}
	c.bucket, err = c.newBucket()
	if err != nil {
		_ = mc.Disconnect(context.Background())
		return nil, classify(err)
	}
	slog.Info("connected to replica set", "database", dbName)
	return c, nil
}

// Ping is the lightweight liveness probe used by the health endpoint and
// by the Topology Monitor before any topology introspection.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := c.prober.ping(ctx); err != nil {
		return classify(err)
	}
	return nil
}

func (c *Client) Disconnect(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}
