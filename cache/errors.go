package cache

import (
	"errors"
	"fmt"
)

// ErrUnknownIndex is returned when a store is asked for an index its schema does
// not declare.
var ErrUnknownIndex = errors.New("cache: unknown index")

// Error reports a failed cache operation. Any error surfaced by a cache store is an
// *Error; callers on best-effort paths log and drop it.
type Error struct {
	Op  string
	Key string
	Err error
}

func (e *Error) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("cache %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("cache %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap returns err as an *Error for op on key. A nil err stays nil and an existing
// *Error is returned as is.
func Wrap(op, key string, err error) error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return err
	}
	return &Error{Op: op, Key: key, Err: err}
}

// IsCacheError reports whether err originated in the cache layer.
func IsCacheError(err error) bool {
	var ce *Error
	return errors.As(err, &ce)
}
