package sync

import (
	"errors"
	"fmt"
)

var (
	ErrSyncAlreadyRunning = errors.New("sync already running for project")
	ErrProjectNotFound    = errors.New("project not found")
	ErrUnknownFormat      = errors.New("unknown translation format")
	ErrInvalidStrategy    = errors.New("invalid sync strategy")

	// ErrVersionConflict signals an optimistic-lock failure: the row was
	// modified by a concurrent edit between load and write.
	ErrVersionConflict = errors.New("entry version conflict")
)

// ApplyError wraps a transaction or storage failure during apply. The whole
// pull's mutation set is rolled back and the caller must retry from fetch.
type ApplyError struct {
	Op  string
	Err error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("apply %s: %v", e.Op, e.Err)
}

func (e *ApplyError) Unwrap() error {
	return e.Err
}
