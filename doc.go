// Package photoleader is a photo metadata and blob service backed by a
// MongoDB replica set.
//
// Features:
// - Photo upload with split blob (GridFS) and metadata storage
// - Majority-acknowledged writes, secondary-preferred gallery reads
// - Tag, user and free-text browsing with aggregate stats
// - Replica set health and per-member status reporting
//
// Example usage:
//
//	MONGO_URI="mongodb://host1:27017,host2:27017/uploadDB?replicaSet=rs0" go run main.go
//
// Configuration:
//
//	See config/config.json for server settings; MONGO_URI overrides the
//	connection string.
//
// API Documentation:
//
//	All endpoints are documented in the internal/api/handler.go file
package main
