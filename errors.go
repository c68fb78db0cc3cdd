package memfs

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Kind is a named error condition reported by engine operations.
// Kind implements error so it can be used as an errors.Is target.
type Kind int

const (
	NotFound         Kind = iota + 1 // path unmapped
	IsADirectory                     // expected a file, got a directory
	NotADirectory                    // expected a directory, got a file
	AlreadyExists                    // destination occupied
	PermissionDenied                 // access policy rejection or unprivileged caller
	InvalidArgument                  // malformed path or argument
	NotEmpty                         // rmdir on a directory with real children
	OutOfMemory                      // buffer growth refused
	NotPermitted                     // directory renamed into its own subtree
)

var kindNames = map[Kind]string{
	NotFound:         "not found",
	IsADirectory:     "is a directory",
	NotADirectory:    "not a directory",
	AlreadyExists:    "already exists",
	PermissionDenied: "permission denied",
	InvalidArgument:  "invalid argument",
	NotEmpty:         "directory not empty",
	OutOfMemory:      "out of memory",
	NotPermitted:     "operation not permitted",
}

func (k Kind) Error() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("unknown error kind %d", int(k))
}

func (k Kind) String() string {
	return k.Error()
}

// Errno returns the POSIX errno a transport should report for k.
// A directory renamed into its own subtree maps to EINVAL as rename(2) does.
func (k Kind) Errno() unix.Errno {
	switch k {
	case NotFound:
		return unix.ENOENT
	case IsADirectory:
		return unix.EISDIR
	case NotADirectory:
		return unix.ENOTDIR
	case AlreadyExists:
		return unix.EEXIST
	case PermissionDenied:
		return unix.EACCES
	case InvalidArgument, NotPermitted:
		return unix.EINVAL
	case NotEmpty:
		return unix.ENOTEMPTY
	case OutOfMemory:
		return unix.ENOMEM
	default:
		return unix.EIO
	}
}

// Error is returned by every failed operation
type Error struct {
	Op   string
	Path string
	Kind Kind
}

func NewError(op, path string, kind Kind) *Error {
	return &Error{Op: op, Path: path, Kind: kind}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Op, e.Path, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// KindOf extracts the Kind from err; 0 if err carries none.
func KindOf(err error) Kind {
	var k Kind
	if errors.As(err, &k) {
		return k
	}
	return 0
}
