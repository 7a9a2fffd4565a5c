// Package errs defines the error taxonomy shared by the indexing and
// archive engines (spec §7): sentinel values for the common categories,
// plus wrapped error types for the handful of cases that carry structured
// detail. Errors are composed with fmt.Errorf's %w verb, in keeping with
// this module's (and the teacher's modern pkg/ tree's) wrapping idiom;
// github.com/pkg/errors is used by the packages inherited from the teacher
// that already used it (pkg/compression, pkg/encoding) and by
// internal/store/rpcstore.
package errs

import (
	"errors"
	"fmt"
)

// Sentinel errors for the categories of spec §7 that don't need additional
// structured detail beyond an offending path or message.
var (
	// ErrCancelled indicates that an async operation's cancellation token
	// fired before the operation completed.
	ErrCancelled = errors.New("operation cancelled")
	// ErrInternal indicates an assertion-level violation: a state this
	// system's own invariants should have made impossible.
	ErrInternal = errors.New("internal error")
	// ErrEmptyArchive indicates that an archive contained no entries.
	ErrEmptyArchive = errors.New("archive contains no entries")
	// ErrNotAnArchive indicates that the input could only be opened via the
	// raw format with no filter layered on top, i.e. it is an unadorned
	// copy of its input and not a real archive.
	ErrNotAnArchive = errors.New("input is not an archive")
	// ErrIncorrectPassphrase indicates that a read-data-block failure during
	// extraction was attributed to a bad passphrase.
	ErrIncorrectPassphrase = errors.New("incorrect passphrase")
)

// IOError wraps a failure from a filesystem read/write/enumeration
// operation together with the path that triggered it.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("io error at %q: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// NewIOError constructs an *IOError for the given path and cause.
func NewIOError(path string, err error) error {
	if err == nil {
		return nil
	}
	return &IOError{Path: path, Err: err}
}

// CodecError wraps a failure surfaced by the archive codec, carrying the
// codec's own errno-equivalent and message.
type CodecError struct {
	Errno   int
	Message string
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("codec error %d: %s", e.Errno, e.Message)
}

// StoreError wraps a failure from the SPARQL-ish store interface (query
// prepare/execute, single update, batch execute).
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store error during %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// InvalidFormatError indicates an unrecognized archive format enum value.
type InvalidFormatError struct {
	Format string
}

func (e *InvalidFormatError) Error() string {
	return fmt.Sprintf("invalid archive format: %q", e.Format)
}

// InvalidFilterError indicates an unrecognized archive filter enum value.
type InvalidFilterError struct {
	Filter string
}

func (e *InvalidFilterError) Error() string {
	return fmt.Sprintf("invalid archive filter: %q", e.Filter)
}

// NotADirectoryError indicates a fatal conflict encountered while
// extracting an archive: an ancestor of an entry's destination path exists
// but is not a directory. This is never silently worked around since it is
// the signature of a path-escape attempt.
type NotADirectoryError struct {
	Path string
}

func (e *NotADirectoryError) Error() string {
	return fmt.Sprintf("path component is not a directory: %q", e.Path)
}
