package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/notes-bin/photoleader/internal/model"
)

const (
	// DefaultLimit bounds the main gallery listing.
	DefaultLimit = 50
	// SubListLimit bounds the per-user and per-tag listings.
	SubListLimit = 100
)

// Filter is a conjunction over the optional tag and user criteria. Zero
// values mean "no constraint".
type Filter struct {
	Tag  string
	User string
}

// Insert validates and writes one metadata document with majority
// durability. UploadDate and Status are assigned here; the caller's values
// for them are ignored.
func (c *Client) Insert(ctx context.Context, photo *model.Photo) (primitive.ObjectID, error) {
	if photo.Filename == "" {
		return primitive.NilObjectID, wrapErr(ErrValidation, fmt.Errorf("filename is required"))
	}
	if photo.User == "" {
		return primitive.NilObjectID, wrapErr(ErrValidation, fmt.Errorf("user is required"))
	}
	photo.ID = primitive.NilObjectID
	photo.UploadDate = time.Now().UTC()
	if photo.Status == "" {
		photo.Status = model.StatusUploaded
	}
	if photo.Tags == nil {
		photo.Tags = []string{}
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	res, err := c.writes.InsertOne(ctx, photo)
	if err != nil {
		return primitive.NilObjectID, classify(err)
	}
	id := res.InsertedID.(primitive.ObjectID)
	photo.ID = id
	return id, nil
}

// FindByID reads from the primary so a document is visible immediately
// after its own majority write.
func (c *Client) FindByID(ctx context.Context, id string) (*model.Photo, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, wrapErr(ErrInvalidID, err)
	}
	var photo model.Photo
	if err := c.primary.FindOne(ctx, bson.D{{Key: "_id", Value: oid}}).Decode(&photo); err != nil {
		return nil, classify(err)
	}
	return &photo, nil
}

// List returns photos newest-first. Reads are routed secondaryPreferred,
// so results may lag the primary by replication delay.
func (c *Client) List(ctx context.Context, filter Filter, skip, limit int64) ([]model.Photo, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "upload_date", Value: -1}}).
		SetSkip(skip).
		SetLimit(limit)
	cur, err := c.reads.Find(ctx, listQuery(filter), opts)
	if err != nil {
		return nil, classify(err)
	}
	photos := []model.Photo{}
	if err := cur.All(ctx, &photos); err != nil {
		return nil, classify(err)
	}
	return photos, nil
}

// Search matches text case-insensitively as a substring of filename or
// description. Empty text is a validation error, a text matching nothing
// is an empty result.
func (c *Client) Search(ctx context.Context, text string) ([]model.Photo, error) {
	if text == "" {
		return nil, wrapErr(ErrValidation, fmt.Errorf("search text is required"))
	}
	cur, err := c.reads.Find(ctx, searchQuery(text), options.Find().SetLimit(DefaultLimit))
	if err != nil {
		return nil, classify(err)
	}
	photos := []model.Photo{}
	if err := cur.All(ctx, &photos); err != nil {
		return nil, classify(err)
	}
	return photos, nil
}

// Count returns the total number of metadata documents.
func (c *Client) Count(ctx context.Context) (int64, error) {
	n, err := c.reads.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, classify(err)
	}
	return n, nil
}

// TopUsers groups the collection by owner, descending by photo count.
func (c *Client) TopUsers(ctx context.Context, limit int64) ([]model.UserCount, error) {
	if limit <= 0 {
		limit = 5
	}
	cur, err := c.reads.Aggregate(ctx, topUsersPipeline(limit))
	if err != nil {
		return nil, classify(err)
	}
	users := []model.UserCount{}
	if err := cur.All(ctx, &users); err != nil {
		return nil, classify(err)
	}
	return users, nil
}

// TopTags unwinds each document's tags before grouping, so a photo listing
// the same tag twice counts twice for it.
func (c *Client) TopTags(ctx context.Context, limit int64) ([]model.TagCount, error) {
	if limit <= 0 {
		limit = 10
	}
	cur, err := c.reads.Aggregate(ctx, topTagsPipeline(limit))
	if err != nil {
		return nil, classify(err)
	}
	tags := []model.TagCount{}
	if err := cur.All(ctx, &tags); err != nil {
		return nil, classify(err)
	}
	return tags, nil
}

// DeleteByID removes one document and reports how many were deleted (0 or
// 1; an absent id is not an error) together with the prior blob reference
// so the caller can clean up the blob afterwards.
func (c *Client) DeleteByID(ctx context.Context, id string) (int64, *primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return 0, nil, wrapErr(ErrInvalidID, err)
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	var prior model.Photo
	err = c.writes.FindOneAndDelete(ctx, bson.D{{Key: "_id", Value: oid}}).Decode(&prior)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil, nil
	}
	if err != nil {
		return 0, nil, classify(err)
	}
	return 1, prior.BlobID, nil
}

func listQuery(f Filter) bson.D {
	q := bson.D{}
	if f.Tag != "" {
		q = append(q, bson.E{Key: "tags", Value: f.Tag})
	}
	if f.User != "" {
		q = append(q, bson.E{Key: "user", Value: f.User})
	}
	return q
}

func searchQuery(text string) bson.D {
	re := primitive.Regex{Pattern: regexp.QuoteMeta(text), Options: "i"}
	return bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "filename", Value: re}},
		bson.D{{Key: "description", Value: re}},
	}}}
}

func topUsersPipeline(limit int64) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$user"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}}},
		{{Key: "$limit", Value: limit}},
	}
}

func topTagsPipeline(limit int64) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$unwind", Value: "$tags"}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$tags"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}}},
		{{Key: "$limit", Value: limit}},
	}
}
