package errors

import "errors"

var (
	ErrNotFound = errors.New("not found")
	ErrInvalid  = errors.New("invalid")
	ErrConflict = errors.New("conflict")
	ErrTooMany  = errors.New("too many requests")
	ErrInternal = errors.New("internal")
	// ErrTransient marks a dependency failure that may succeed on retry.
	ErrTransient = errors.New("transient dependency failure")
	// ErrIndexInconsistency marks a vector index that cannot serve the
	// request, e.g. a dimension mismatch or a missing collection.
	ErrIndexInconsistency = errors.New("index inconsistency")
	ErrUnavailable        = errors.New("unavailable")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

func IsInvalid(err error) bool {
	return errors.Is(err, ErrInvalid)
}

func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

func IsIndexInconsistency(err error) bool {
	return errors.Is(err, ErrIndexInconsistency)
}
