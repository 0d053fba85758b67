package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Photo statuses. New statuses may be added by downstream workflow steps.
const (
	StatusUploaded  = "uploaded"
	StatusProcessed = "processed"
)

// Photo is one metadata document in the files collection. The blob itself
// lives in GridFS; BlobID links to it and is absent for metadata-only
// records created through the JSON API.
type Photo struct {
	ID          primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Filename    string              `bson:"filename" json:"filename"`
	User        string              `bson:"user" json:"user"`
	Tags        []string            `bson:"tags" json:"tags"`
	Description string              `bson:"description" json:"description"`
	UploadDate  time.Time           `bson:"upload_date" json:"upload_date"`
	SizeKB      float64             `bson:"size_kb" json:"size_kb"`
	ContentType string              `bson:"content_type,omitempty" json:"content_type,omitempty"`
	Status      string              `bson:"status" json:"status"`
	BlobID      *primitive.ObjectID `bson:"blob_id,omitempty" json:"blob_id,omitempty"`

	// PhotoURL points at the blob-fetch endpoint. Derived, never stored.
	PhotoURL string `bson:"-" json:"photo_url,omitempty"`
}

// UserCount is one bucket of the top-users aggregation.
type UserCount struct {
	User  string `bson:"_id" json:"user"`
	Count int64  `bson:"count" json:"count"`
}

// TagCount is one bucket of the top-tags aggregation. A photo listing the
// same tag twice contributes two counts to that bucket.
type TagCount struct {
	Tag   string `bson:"_id" json:"tag"`
	Count int64  `bson:"count" json:"count"`
}
