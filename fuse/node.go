package fuse

import (
	"context"
	"syscall"

	"github.com/brettbedarf/memfs"
	"github.com/brettbedarf/memfs/internal/util"
	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"golang.org/x/sys/unix"
)

// Node is one inode of the mounted tree. It keeps no state of its own: each
// call resolves the node's current path from the kernel-maintained tree and
// forwards it to the engine.
type Node struct {
	gofuse.Inode
	adapter *adapter
}

// fileHandle carries the engine handle returned by Open/Create
type fileHandle struct {
	fh uint64
}

var (
	_ gofuse.InodeEmbedder = (*Node)(nil)
	_ gofuse.NodeGetattrer = (*Node)(nil)
	_ gofuse.NodeSetattrer = (*Node)(nil)
	_ gofuse.NodeAccesser  = (*Node)(nil)
	_ gofuse.NodeLookuper  = (*Node)(nil)
	_ gofuse.NodeOpendirer = (*Node)(nil)
	_ gofuse.NodeReaddirer = (*Node)(nil)
	_ gofuse.NodeOpener    = (*Node)(nil)
	_ gofuse.NodeCreater   = (*Node)(nil)
	_ gofuse.NodeReader    = (*Node)(nil)
	_ gofuse.NodeWriter    = (*Node)(nil)
	_ gofuse.NodeFlusher   = (*Node)(nil)
	_ gofuse.NodeFsyncer   = (*Node)(nil)
	_ gofuse.NodeReleaser  = (*Node)(nil)
	_ gofuse.NodeMknoder   = (*Node)(nil)
	_ gofuse.NodeMkdirer   = (*Node)(nil)
	_ gofuse.NodeLinker    = (*Node)(nil)
	_ gofuse.NodeUnlinker  = (*Node)(nil)
	_ gofuse.NodeRmdirer   = (*Node)(nil)
	_ gofuse.NodeRenamer   = (*Node)(nil)
	_ gofuse.NodeStatfser  = (*Node)(nil)
)

// NewRoot returns the root node serving op
func NewRoot(op memfs.FileSystemOperator) *Node {
	return &Node{adapter: &adapter{op: op}}
}

// callerOf extracts the requesting user; calls made outside a FUSE request
// run as the privileged caller
func callerOf(ctx context.Context) memfs.Caller {
	if c, ok := fuse.FromContext(ctx); ok {
		return memfs.Caller{Uid: c.Uid, Gid: c.Gid}
	}
	return memfs.Root
}

// absPath converts a mount-relative path ("" for the root) to an engine path
func absPath(rel string) string {
	return "/" + rel
}

func childPath(dir, name string) string {
	if dir == "/" {
		return dir + name
	}
	return dir + "/" + name
}

func (n *Node) path() string {
	return absPath(n.Path(n.Root()))
}

// newChild links a node for an engine inode that was just created or found
func (n *Node) newChild(ctx context.Context, out *fuse.EntryOut) *gofuse.Inode {
	child := &Node{adapter: n.adapter}
	return n.NewInode(ctx, child, gofuse.StableAttr{
		Mode: out.Attr.Mode & syscall.S_IFMT,
		Ino:  out.Attr.Ino,
	})
}

func (n *Node) Getattr(ctx context.Context, f gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	return n.adapter.getattr(callerOf(ctx), n.path(), &out.Attr)
}

func (n *Node) Setattr(ctx context.Context, f gofuse.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	c, path := callerOf(ctx), n.path()
	if errno := n.adapter.setattr(c, path, in); errno != 0 {
		return errno
	}
	return n.adapter.getattr(memfs.Root, path, &out.Attr)
}

func (n *Node) Access(ctx context.Context, mask uint32) syscall.Errno {
	return toErrno(n.adapter.op.Access(callerOf(ctx), n.path(), memfs.AccessMode(mask)))
}

func (n *Node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	logger := util.GetLogger("Fuse.Lookup")
	path := childPath(n.path(), name)
	logger.Trace().Str("path", path).Msg("Lookup called")

	if errno := n.adapter.getattr(callerOf(ctx), path, &out.Attr); errno != 0 {
		return nil, errno
	}
	return n.newChild(ctx, out), 0
}

func (n *Node) Opendir(ctx context.Context) syscall.Errno {
	return n.adapter.opendir(callerOf(ctx), n.path())
}

func (n *Node) Readdir(ctx context.Context) (gofuse.DirStream, syscall.Errno) {
	entries, errno := n.adapter.readdir(callerOf(ctx), n.path())
	if errno != 0 {
		return nil, errno
	}
	return gofuse.NewListDirStream(entries), 0
}

func (n *Node) Open(ctx context.Context, flags uint32) (gofuse.FileHandle, uint32, syscall.Errno) {
	logger := util.GetLogger("Fuse.Open")
	path := n.path()
	logger.Debug().Str("path", path).Uint32("flags", flags).Msg("Open called")

	fh, errno := n.adapter.open(callerOf(ctx), path, flags)
	if errno != 0 {
		return nil, 0, errno
	}
	return &fileHandle{fh: fh}, 0, 0
}

func (n *Node) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*gofuse.Inode, gofuse.FileHandle, uint32, syscall.Errno) {
	logger := util.GetLogger("Fuse.Create")
	path := childPath(n.path(), name)
	logger.Debug().Str("path", path).Uint32("mode", mode).Msg("Create called")

	fh, errno := n.adapter.create(callerOf(ctx), path, mode, &out.Attr)
	if errno != 0 {
		return nil, nil, 0, errno
	}
	return n.newChild(ctx, out), &fileHandle{fh: fh}, 0, 0
}

func (n *Node) Read(ctx context.Context, f gofuse.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	read, err := n.adapter.op.Read(callerOf(ctx), n.path(), dest, off)
	if err != nil {
		return nil, toErrno(err)
	}
	return fuse.ReadResultData(dest[:read]), 0
}

func (n *Node) Write(ctx context.Context, f gofuse.FileHandle, data []byte, off int64) (uint32, syscall.Errno) {
	written, err := n.adapter.op.Write(callerOf(ctx), n.path(), data, off)
	if err != nil {
		return 0, toErrno(err)
	}
	return uint32(written), 0
}

// Flush and Fsync succeed: content already lives in the engine
func (n *Node) Flush(ctx context.Context, f gofuse.FileHandle) syscall.Errno {
	return 0
}

func (n *Node) Fsync(ctx context.Context, f gofuse.FileHandle, flags uint32) syscall.Errno {
	return 0
}

func (n *Node) Release(ctx context.Context, f gofuse.FileHandle) syscall.Errno {
	h, ok := f.(*fileHandle)
	if !ok {
		return 0
	}
	return toErrno(n.adapter.op.Release(n.path(), h.fh))
}

func (n *Node) Mknod(ctx context.Context, name string, mode uint32, dev uint32, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	if errno := n.adapter.mknod(callerOf(ctx), childPath(n.path(), name), mode, &out.Attr); errno != 0 {
		return nil, errno
	}
	return n.newChild(ctx, out), 0
}

func (n *Node) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	if errno := n.adapter.mkdir(callerOf(ctx), childPath(n.path(), name), mode, &out.Attr); errno != 0 {
		return nil, errno
	}
	return n.newChild(ctx, out), 0
}

func (n *Node) Link(ctx context.Context, target gofuse.InodeEmbedder, name string, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	src := absPath(target.EmbeddedInode().Path(n.Root()))
	if errno := n.adapter.link(callerOf(ctx), src, childPath(n.path(), name), &out.Attr); errno != 0 {
		return nil, errno
	}
	return n.newChild(ctx, out), 0
}

func (n *Node) Unlink(ctx context.Context, name string) syscall.Errno {
	return toErrno(n.adapter.op.Unlink(callerOf(ctx), childPath(n.path(), name)))
}

func (n *Node) Rmdir(ctx context.Context, name string) syscall.Errno {
	return toErrno(n.adapter.op.Rmdir(callerOf(ctx), childPath(n.path(), name)))
}

// Rename never replaces, so RENAME_NOREPLACE needs no handling
func (n *Node) Rename(ctx context.Context, name string, newParent gofuse.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	if flags&unix.RENAME_EXCHANGE != 0 {
		return syscall.EINVAL
	}
	logger := util.GetLogger("Fuse.Rename")
	src := childPath(n.path(), name)
	dst := childPath(absPath(newParent.EmbeddedInode().Path(n.Root())), newName)
	logger.Debug().Str("src", src).Str("dst", dst).Msg("Rename called")

	return toErrno(n.adapter.op.Rename(callerOf(ctx), src, dst))
}

func (n *Node) Statfs(ctx context.Context, out *fuse.StatfsOut) syscall.Errno {
	n.adapter.statfs(out)
	return 0
}
