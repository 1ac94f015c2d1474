package firebase

import (
	"context"
	"errors"

	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"library-automation/internal/errs"
)

// mapError classifies Firestore and gRPC failures into error kinds.
// Typed errors returned from inside a transaction pass through unchanged.
func mapError(err error, message string) error {
	if err == nil {
		return nil
	}
	if typed := errs.As(err); typed != nil {
		return typed
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.KindStoreUnavailable, err, message)
	}
	switch status.Code(err) {
	case codes.NotFound:
		return errs.Wrap(errs.KindNotFound, err, message)
	case codes.AlreadyExists:
		return errs.Wrap(errs.KindConflict, err, message)
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange,
		codes.PermissionDenied, codes.Unauthenticated, codes.Unimplemented:
		// missing composite index, rejected query or service account rights
		return errs.Wrap(errs.KindInternal, err, message)
	default:
		// Unavailable, DeadlineExceeded, Aborted, ResourceExhausted, Internal, Unknown
		return errs.Wrap(errs.KindStoreUnavailable, err, message)
	}
}

func isDone(err error) bool {
	return errors.Is(err, iterator.Done)
}
