// Package fuse exposes a [memfs.FileSystemOperator] to the kernel through
// go-fuse. It converts FUSE arguments into engine calls on absolute paths and
// engine error kinds into errno values; it never takes engine locks itself.
package fuse

import (
	"syscall"
	"time"

	"github.com/brettbedarf/memfs"
	"github.com/brettbedarf/memfs/internal/util"
	"github.com/hanwen/go-fuse/v2/fuse"
)

const (
	blockSize = 4096
	nameLen   = 255
	// nominal free space reported by statfs; buffers are allocated on demand
	freeBlocks = 1 << 20
)

// adapter translates one FUSE request into exactly one engine operation,
// except where noted
type adapter struct {
	op memfs.FileSystemOperator
}

// toErrno maps an engine error onto the errno the kernel expects
func toErrno(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	if kind := memfs.KindOf(err); kind != 0 {
		return kind.Errno()
	}
	return syscall.EIO
}

// fillAttr copies an engine snapshot into a FUSE attribute block
func fillAttr(st memfs.Stat, out *fuse.Attr) {
	out.Ino = st.Ino
	out.Size = uint64(st.Size)
	out.Blocks = (uint64(st.Capacity) + 511) / 512
	out.Blksize = blockSize
	out.Mode = st.FullMode()
	out.Nlink = st.Nlink
	out.Owner = fuse.Owner{Uid: st.Uid, Gid: st.Gid}
	atime, mtime := st.Atime, st.Mtime
	out.SetTimes(&atime, &mtime, &mtime)
}

func (a *adapter) getattr(c memfs.Caller, path string, out *fuse.Attr) syscall.Errno {
	st, err := a.op.Stat(c, path)
	if err != nil {
		return toErrno(err)
	}
	fillAttr(st, out)
	return 0
}

// setattr applies each attribute the kernel marked valid, in the order
// mode, owner, size, times, and stops at the first failure
func (a *adapter) setattr(c memfs.Caller, path string, in *fuse.SetAttrIn) syscall.Errno {
	logger := util.GetLogger("Fuse.Setattr")
	logger.Trace().Str("path", path).Uint32("valid", in.Valid).Msg("Setattr called")

	if mode, ok := in.GetMode(); ok {
		if err := a.op.Chmod(c, path, mode); err != nil {
			return toErrno(err)
		}
	}

	uid, uidOk := in.GetUID()
	gid, gidOk := in.GetGID()
	if uidOk || gidOk {
		if !uidOk {
			uid = memfs.UnchangedID
		}
		// the engine always replaces the group, so keep the current one
		if !gidOk {
			st, err := a.op.Stat(c, path)
			if err != nil {
				return toErrno(err)
			}
			gid = st.Gid
		}
		if err := a.op.Chown(c, path, uid, gid); err != nil {
			return toErrno(err)
		}
	}

	if size, ok := in.GetSize(); ok {
		if err := a.op.Truncate(c, path, int64(size)); err != nil {
			return toErrno(err)
		}
	}

	atime := timeSpec(in.Valid, fuse.FATTR_ATIME, fuse.FATTR_ATIME_NOW, in.Atime, in.Atimensec)
	mtime := timeSpec(in.Valid, fuse.FATTR_MTIME, fuse.FATTR_MTIME_NOW, in.Mtime, in.Mtimensec)
	if !atime.IsOmit() || !mtime.IsOmit() {
		if err := a.op.Utime(c, path, atime, mtime); err != nil {
			return toErrno(err)
		}
	}
	return 0
}

// timeSpec decodes one timestamp of a setattr request
func timeSpec(valid, setBit, nowBit uint32, sec uint64, nsec uint32) memfs.TimeSpec {
	switch {
	case valid&nowBit != 0:
		return memfs.UtimeNow
	case valid&setBit != 0:
		return memfs.TimeSpecOf(time.Unix(int64(sec), int64(nsec)))
	default:
		return memfs.UtimeOmit
	}
}

func (a *adapter) opendir(c memfs.Caller, path string) syscall.Errno {
	fh, err := a.op.OpenDir(c, path)
	if err != nil {
		return toErrno(err)
	}
	// listings are produced fresh by readdir, so the handle is not kept
	return toErrno(a.op.ReleaseDir(path, fh))
}

func (a *adapter) readdir(c memfs.Caller, path string) ([]fuse.DirEntry, syscall.Errno) {
	entries, err := a.op.ReadDir(c, path)
	if err != nil {
		return nil, toErrno(err)
	}
	out := make([]fuse.DirEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, fuse.DirEntry{
			Name: e.Name,
			Ino:  e.Ino,
			Mode: e.Type.ModeType(),
		})
	}
	return out, 0
}

// open also truncates when O_TRUNC is set, making it two engine calls
func (a *adapter) open(c memfs.Caller, path string, flags uint32) (uint64, syscall.Errno) {
	fh, err := a.op.Open(c, path)
	if err != nil {
		return 0, toErrno(err)
	}
	if flags&syscall.O_TRUNC != 0 {
		if err := a.op.Truncate(c, path, 0); err != nil {
			return 0, toErrno(err)
		}
	}
	return fh, 0
}

func (a *adapter) create(c memfs.Caller, path string, mode uint32, out *fuse.Attr) (uint64, syscall.Errno) {
	fh, err := a.op.Create(c, path, mode)
	if err != nil {
		return 0, toErrno(err)
	}
	return fh, a.getattr(memfs.Root, path, out)
}

// mknod only creates regular files
func (a *adapter) mknod(c memfs.Caller, path string, mode uint32, out *fuse.Attr) syscall.Errno {
	if typ := mode & syscall.S_IFMT; typ != 0 && typ != syscall.S_IFREG {
		return syscall.ENOSYS
	}
	if err := a.op.Mknod(c, path, mode); err != nil {
		return toErrno(err)
	}
	return a.getattr(memfs.Root, path, out)
}

func (a *adapter) mkdir(c memfs.Caller, path string, mode uint32, out *fuse.Attr) syscall.Errno {
	if err := a.op.Mkdir(c, path, mode); err != nil {
		return toErrno(err)
	}
	return a.getattr(memfs.Root, path, out)
}

func (a *adapter) link(c memfs.Caller, src, dst string, out *fuse.Attr) syscall.Errno {
	if err := a.op.Link(c, src, dst); err != nil {
		return toErrno(err)
	}
	return a.getattr(memfs.Root, dst, out)
}

func (a *adapter) statfs(out *fuse.StatfsOut) {
	stats := a.op.StatFs()
	used := (stats.Allocated + blockSize - 1) / blockSize

	out.Bsize = blockSize
	out.Frsize = blockSize
	out.Blocks = used + freeBlocks
	out.Bfree = freeBlocks
	out.Bavail = freeBlocks
	out.Files = stats.Inodes
	out.Ffree = freeBlocks
	out.NameLen = nameLen

	logger := util.GetLogger("Fuse.Statfs")
	logger.Trace().
		Uint64("inodes", stats.Inodes).
		Str("allocated", util.Bytes(stats.Allocated)).
		Msg("Statfs served")
}
