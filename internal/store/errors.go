package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
)

// Error taxonomy. Every fault leaving this package wraps exactly one of
// these sentinels; raw driver errors never drive caller control flow.
var (
	ErrValidation  = errors.New("invalid input")
	ErrInvalidID   = errors.New("malformed id")
	ErrNotFound    = errors.New("not found")
	ErrUnreachable = errors.New("store unreachable")
	ErrTimeout     = errors.New("durability wait timed out")
)

// Error attaches the raw driver fault to a taxonomy sentinel. The cause is
// diagnostic only: errors.Is matches the Kind, and the cause text surfaces
// in logs.
type Error struct {
	Kind  error
	Cause error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Cause.Error())
}

func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

func wrapErr(kind, cause error) error {
	return &Error{Kind: kind, Cause: cause}
}

// classify maps a driver-level fault into the taxonomy. Order matters:
// document misses are checked before the generic timeout and network
// buckets so a found-nothing result is never reported as a fault.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments), errors.Is(err, gridfs.ErrFileNotFound):
		return wrapErr(ErrNotFound, err)
	case errors.Is(err, context.DeadlineExceeded), mongo.IsTimeout(err), isWriteConcernTimeout(err):
		return wrapErr(ErrTimeout, err)
	default:
		return wrapErr(ErrUnreachable, err)
	}
}

// isWriteConcernTimeout reports whether a majority write gave up waiting
// for replica acknowledgement. The write may still complete at the store;
// callers must treat ErrTimeout as ambiguous, not as guaranteed-failed.
func isWriteConcernTimeout(err error) bool {
	var we mongo.WriteException
	if errors.As(err, &we) && we.WriteConcernError != nil {
		return we.WriteConcernError.Code == 64 // WriteConcernFailed
	}
	return false
}
