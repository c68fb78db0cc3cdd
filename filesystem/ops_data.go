package filesystem

import (
	"math"

	"github.com/brettbedarf/memfs"
	"github.com/brettbedarf/memfs/internal/util"
)

// Operations that touch a single inode's content or metadata. All of them
// hold the namespace lock shared and the inode's pooled lock shared or
// exclusive.

// inodeCtx takes the shared namespace lock and the pooled lock for path.
// On NotFound every lock has already been released.
func (fs *FileSystem) inodeCtx(logger *util.Logger, op, path string, exclusive bool) (*opContext, error) {
	ctx := readTree(fs.ns)
	if !ctx.lockInode(fs.ns, path, exclusive) {
		ctx.Close()
		return nil, fail(logger, op, path, memfs.NotFound)
	}
	return ctx, nil
}

// Stat returns a metadata snapshot
func (fs *FileSystem) Stat(c memfs.Caller, path string) (memfs.Stat, error) {
	const op = "stat"
	logger := fs.logger("Stat")

	ctx, err := fs.inodeCtx(&logger, op, path, false)
	if err != nil {
		return memfs.Stat{}, err
	}
	defer ctx.Close()

	if !canAccess(ctx.inode, c, memfs.AccessRead) {
		return memfs.Stat{}, fail(&logger, op, path, memfs.PermissionDenied)
	}
	return ctx.inode.stat(), nil
}

// Access checks each permission bit in mask; AccessExist only checks that
// path is mapped.
func (fs *FileSystem) Access(c memfs.Caller, path string, mask memfs.AccessMode) error {
	const op = "access"
	logger := fs.logger("Access")

	ctx, err := fs.inodeCtx(&logger, op, path, false)
	if err != nil {
		return err
	}
	defer ctx.Close()

	for _, bit := range []memfs.AccessMode{memfs.AccessRead, memfs.AccessWrite, memfs.AccessExec} {
		if mask&bit != 0 && !canAccess(ctx.inode, c, bit) {
			return fail(&logger, op, path, memfs.PermissionDenied)
		}
	}
	return nil
}

// Open returns the inode id as a handle. Nothing is pinned: the handle does
// not keep the inode alive across an unlink.
func (fs *FileSystem) Open(c memfs.Caller, path string) (uint64, error) {
	const op = "open"
	logger := fs.logger("Open")

	ctx, err := fs.inodeCtx(&logger, op, path, false)
	if err != nil {
		return 0, err
	}
	defer ctx.Close()

	if !canAccess(ctx.inode, c, memfs.AccessRead) {
		return 0, fail(&logger, op, path, memfs.PermissionDenied)
	}
	return uint64(ctx.inode.ID), nil
}

// Release is a no-op; handles carry no state
func (fs *FileSystem) Release(path string, fh uint64) error {
	return nil
}

// OpenDir returns the directory's inode id as a handle
func (fs *FileSystem) OpenDir(c memfs.Caller, path string) (uint64, error) {
	const op = "opendir"
	logger := fs.logger("OpenDir")

	ctx, err := fs.inodeCtx(&logger, op, path, false)
	if err != nil {
		return 0, err
	}
	defer ctx.Close()

	if !ctx.inode.IsDir() {
		return 0, fail(&logger, op, path, memfs.NotADirectory)
	}
	if !canAccess(ctx.inode, c, memfs.AccessRead) {
		return 0, fail(&logger, op, path, memfs.PermissionDenied)
	}
	return uint64(ctx.inode.ID), nil
}

// ReleaseDir is a no-op
func (fs *FileSystem) ReleaseDir(path string, fh uint64) error {
	return nil
}

// fileFor returns the file variant of the locked inode or IsADirectory
func fileFor(logger *util.Logger, ctx *opContext, op, path string) (*File, error) {
	switch b := ctx.inode.body.(type) {
	case *File:
		return b, nil
	case *Directory:
		return nil, fail(logger, op, path, memfs.IsADirectory)
	default:
		panic("unknown inode variant")
	}
}

// maxBufferSize caps buffer growth when MaxFileSize is 0 or larger
const maxBufferSize = 1 << 40

// ensureCapacity grows f to exactly need bytes when it is smaller. A size
// above MaxFileSize (or maxBufferSize) fails with OutOfMemory before anything
// is touched.
func (fs *FileSystem) ensureCapacity(logger *util.Logger, op, path string, n *Inode, f *File, need int64) error {
	if need <= f.Capacity() {
		return nil
	}
	limit := int64(maxBufferSize)
	if fs.cfg.MaxFileSize > 0 {
		limit = min(limit, fs.cfg.MaxFileSize)
	}
	if need > limit {
		logger.Warn().Str("path", path).Str("need", util.Bytes(need)).Str("limit", util.Bytes(limit)).
			Msg("Buffer growth above max file size")
		return fail(logger, op, path, memfs.OutOfMemory)
	}
	old := f.Capacity()
	f.grow(need, n.Size)
	fs.ns.addAllocated(need - old)
	logger.Trace().Str("path", path).Str("from", util.Bytes(old)).Str("to", util.Bytes(need)).Msg("Buffer grown")
	return nil
}

// Truncate sets the logical size. Shrinking keeps the buffer; growing
// reallocates it to exactly size bytes and zero fills the gap.
func (fs *FileSystem) Truncate(c memfs.Caller, path string, size int64) error {
	const op = "truncate"
	logger := fs.logger("Truncate")

	ctx, err := fs.inodeCtx(&logger, op, path, true)
	if err != nil {
		return err
	}
	defer ctx.Close()

	f, err := fileFor(&logger, ctx, op, path)
	if err != nil {
		return err
	}
	n := ctx.inode
	if !canAccess(n, c, memfs.AccessWrite) {
		return fail(&logger, op, path, memfs.PermissionDenied)
	}
	if size < 0 {
		return fail(&logger, op, path, memfs.InvalidArgument)
	}

	if err := fs.ensureCapacity(&logger, op, path, n, f, size); err != nil {
		return err
	}
	if size > n.Size {
		clear(f.data[n.Size:size])
	}
	n.Size = size
	n.Mtime = fs.now()
	return nil
}

// Read copies up to len(buf) bytes starting at offset and returns the count;
// 0 at or past the end of content.
func (fs *FileSystem) Read(c memfs.Caller, path string, buf []byte, offset int64) (int, error) {
	const op = "read"
	logger := fs.logger("Read")

	ctx, err := fs.inodeCtx(&logger, op, path, false)
	if err != nil {
		return 0, err
	}
	defer ctx.Close()

	f, err := fileFor(&logger, ctx, op, path)
	if err != nil {
		return 0, err
	}
	n := ctx.inode
	if !canAccess(n, c, memfs.AccessRead) {
		return 0, fail(&logger, op, path, memfs.PermissionDenied)
	}
	if offset < 0 {
		return 0, fail(&logger, op, path, memfs.InvalidArgument)
	}
	if offset >= n.Size {
		return 0, nil
	}
	return copy(buf, f.data[offset:n.Size]), nil
}

// Write copies data at offset, growing the buffer to exactly offset+len(data)
// when needed, and returns len(data). A gap between the old end of content
// and offset reads back as zeros.
func (fs *FileSystem) Write(c memfs.Caller, path string, data []byte, offset int64) (int, error) {
	const op = "write"
	logger := fs.logger("Write")

	ctx, err := fs.inodeCtx(&logger, op, path, true)
	if err != nil {
		return 0, err
	}
	defer ctx.Close()

	f, err := fileFor(&logger, ctx, op, path)
	if err != nil {
		return 0, err
	}
	n := ctx.inode
	if !canAccess(n, c, memfs.AccessWrite) {
		return 0, fail(&logger, op, path, memfs.PermissionDenied)
	}
	if offset < 0 {
		return 0, fail(&logger, op, path, memfs.InvalidArgument)
	}
	if offset > math.MaxInt64-int64(len(data)) {
		return 0, fail(&logger, op, path, memfs.OutOfMemory)
	}

	end := offset + int64(len(data))
	if err := fs.ensureCapacity(&logger, op, path, n, f, end); err != nil {
		return 0, err
	}
	if offset > n.Size {
		clear(f.data[n.Size:offset])
	}
	copy(f.data[offset:end], data)
	n.Size = max(n.Size, end)
	n.Mtime = fs.now()
	return len(data), nil
}

// Utime sets the accessed and modified times. UtimeNow uses the current
// time and UtimeOmit leaves the field as is.
func (fs *FileSystem) Utime(c memfs.Caller, path string, atime, mtime memfs.TimeSpec) error {
	const op = "utime"
	logger := fs.logger("Utime")

	ctx, err := fs.inodeCtx(&logger, op, path, true)
	if err != nil {
		return err
	}
	defer ctx.Close()

	n := ctx.inode
	if !canAccess(n, c, memfs.AccessWrite) {
		return fail(&logger, op, path, memfs.PermissionDenied)
	}

	now := fs.now()
	if t, ok := atime.Resolve(now); ok {
		n.Atime = t
	}
	if t, ok := mtime.Resolve(now); ok {
		n.Mtime = t
	}
	return nil
}

// Chmod replaces the permission bits
func (fs *FileSystem) Chmod(c memfs.Caller, path string, mode uint32) error {
	const op = "chmod"
	logger := fs.logger("Chmod")

	ctx, err := fs.inodeCtx(&logger, op, path, true)
	if err != nil {
		return err
	}
	defer ctx.Close()

	if !canAccess(ctx.inode, c, memfs.AccessWrite) {
		return fail(&logger, op, path, memfs.PermissionDenied)
	}
	ctx.inode.Mode = mode & 0o7777
	return nil
}

// Chown is reserved to the privileged caller. The owner is left alone when
// uid is memfs.UnchangedID; the group is always replaced.
func (fs *FileSystem) Chown(c memfs.Caller, path string, uid, gid uint32) error {
	const op = "chown"
	logger := fs.logger("Chown")

	ctx, err := fs.inodeCtx(&logger, op, path, true)
	if err != nil {
		return err
	}
	defer ctx.Close()

	if !c.Privileged() {
		return fail(&logger, op, path, memfs.PermissionDenied)
	}
	if uid != memfs.UnchangedID {
		ctx.inode.Uid = uid
	}
	ctx.inode.Gid = gid
	return nil
}
