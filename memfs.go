// Package memfs contains the core domain types and the operation contract of
// the in-memory filesystem engine. Transports (FUSE or otherwise) talk to the
// engine only through [FileSystemOperator].
package memfs

import (
	"time"

	"golang.org/x/sys/unix"
)

// NodeType tags the variant of an inode
type NodeType uint8

const (
	FileNode NodeType = iota
	DirNode
)

func (t NodeType) String() string {
	switch t {
	case FileNode:
		return "file"
	case DirNode:
		return "dir"
	default:
		return "unknown"
	}
}

// ModeType returns the S_IFMT bits matching the node type
func (t NodeType) ModeType() uint32 {
	if t == DirNode {
		return unix.S_IFDIR
	}
	return unix.S_IFREG
}

// UnchangedID is the uid passed to Chown to leave the owner as is
const UnchangedID = ^uint32(0)

// Caller identifies who invokes an operation. Uid 0 is privileged.
type Caller struct {
	Uid uint32
	Gid uint32
}

// Root is the privileged caller
var Root = Caller{}

func (c Caller) Privileged() bool {
	return c.Uid == 0
}

// AccessMode is a bitmask of requested permissions, with the same values as
// R_OK, W_OK and X_OK.
type AccessMode uint32

const (
	AccessExist AccessMode = 0
	AccessExec  AccessMode = unix.X_OK
	AccessWrite AccessMode = unix.W_OK
	AccessRead  AccessMode = unix.R_OK
)

// TimeSpec is a timestamp or one of the UtimeNow / UtimeOmit sentinels.
type TimeSpec struct {
	Sec  int64
	Nsec int64
}

var (
	// UtimeNow sets the field to the current time
	UtimeNow = TimeSpec{Nsec: unix.UTIME_NOW}
	// UtimeOmit leaves the field untouched
	UtimeOmit = TimeSpec{Nsec: unix.UTIME_OMIT}
)

// TimeSpecOf converts t into a TimeSpec
func TimeSpecOf(t time.Time) TimeSpec {
	return TimeSpec{Sec: t.Unix(), Nsec: int64(t.Nanosecond())}
}

func (ts TimeSpec) IsNow() bool  { return ts.Nsec == unix.UTIME_NOW }
func (ts TimeSpec) IsOmit() bool { return ts.Nsec == unix.UTIME_OMIT }

// Resolve returns the concrete time, substituting now for UtimeNow.
// ok is false for UtimeOmit.
func (ts TimeSpec) Resolve(now time.Time) (t time.Time, ok bool) {
	switch {
	case ts.IsOmit():
		return time.Time{}, false
	case ts.IsNow():
		return now, true
	default:
		return time.Unix(ts.Sec, ts.Nsec), true
	}
}

// Stat is a metadata snapshot of one inode
type Stat struct {
	Ino      uint64
	Type     NodeType
	Mode     uint32 // permission bits only
	Nlink    uint32
	Uid      uint32
	Gid      uint32
	Size     int64 // logical content size
	Capacity int64 // allocated buffer size; 0 for directories
	Atime    time.Time
	Mtime    time.Time
}

// FullMode returns the permission bits combined with the file type bits
func (s Stat) FullMode() uint32 {
	return s.Type.ModeType() | (s.Mode & 0o7777)
}

// DirEntry is one name listed by ReadDir
type DirEntry struct {
	Name string
	Ino  uint64
	Type NodeType
}

// FsStats summarizes the engine's footprint
type FsStats struct {
	Inodes    uint64 // live inodes
	Paths     uint64 // live namespace entries, aliases included
	Allocated uint64 // bytes held by file buffers
}

// FileSystemOperator is the call interface of the engine. Each method is one
// filesystem operation with its locking encapsulated; callers never manage
// locks. Failed checks return a *Error carrying a [Kind].
type FileSystemOperator interface {
	Stat(c Caller, path string) (Stat, error)
	Access(c Caller, path string, mask AccessMode) error

	Open(c Caller, path string) (uint64, error)
	Release(path string, fh uint64) error
	OpenDir(c Caller, path string) (uint64, error)
	ReleaseDir(path string, fh uint64) error

	Truncate(c Caller, path string, size int64) error
	Read(c Caller, path string, buf []byte, offset int64) (int, error)
	Write(c Caller, path string, data []byte, offset int64) (int, error)

	Link(c Caller, src, dst string) error
	Unlink(c Caller, path string) error
	Rename(c Caller, src, dst string) error
	Mknod(c Caller, path string, mode uint32) error
	Create(c Caller, path string, mode uint32) (uint64, error)
	Mkdir(c Caller, path string, mode uint32) error
	Rmdir(c Caller, path string) error
	ReadDir(c Caller, path string) ([]DirEntry, error)

	Utime(c Caller, path string, atime, mtime TimeSpec) error
	Chmod(c Caller, path string, mode uint32) error
	Chown(c Caller, path string, uid, gid uint32) error

	StatFs() FsStats
}
