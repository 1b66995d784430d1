package store

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("file not found")
	ErrConflict = errors.New("revision conflict")
)

type InvalidPathError struct {
	Path   string
	Reason string
}

func (e *InvalidPathError) Error() string {
	if e == nil {
		return "invalid path"
	}
	return fmt.Sprintf("invalid path %q: %s", e.Path, e.Reason)
}

// ConflictError reports a conditional write rejected because the
// revision the caller based it on is no longer current.
type ConflictError struct {
	Path     string
	Expected string
	Err      error
}

func (e *ConflictError) Error() string {
	if e == nil {
		return ErrConflict.Error()
	}
	return fmt.Sprintf("write %s: revision %q is stale", e.Path, e.Expected)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

func (e *ConflictError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

type BackendWriteError struct {
	Backend string
	Op      string
	Path    string
	Err     error
}

func (e *BackendWriteError) Error() string {
	if e == nil {
		return "backend write error"
	}
	return fmt.Sprintf("%s %s %s: %v", e.Backend, e.Op, e.Path, e.Err)
}

func (e *BackendWriteError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func IsInvalidPath(err error) bool {
	var target *InvalidPathError
	return errors.As(err, &target)
}

func IsBackendWrite(err error) bool {
	var target *BackendWriteError
	return errors.As(err, &target)
}
