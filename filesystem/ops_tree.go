package filesystem

import (
	"slices"
	"strings"

	"github.com/brettbedarf/memfs"
	"github.com/brettbedarf/memfs/internal/util"
)

// Structural operations. Each holds the namespace lock exclusively for its
// whole duration, which also excludes every holder of a pooled inode lock.

// parentDir resolves the parent directory of a path being created, removed
// or moved and checks it for write access.
func (fs *FileSystem) parentDir(logger *util.Logger, c memfs.Caller, op, path, parent string) (*Inode, *Directory, error) {
	p, ok := fs.ns.Lookup(parent)
	if !ok {
		return nil, nil, fail(logger, op, path, memfs.NotFound)
	}
	d, ok := p.Dir()
	if !ok {
		return nil, nil, fail(logger, op, path, memfs.NotADirectory)
	}
	if !canAccess(p, c, memfs.AccessWrite) {
		return nil, nil, fail(logger, op, path, memfs.PermissionDenied)
	}
	return p, d, nil
}

// Link maps dst to the inode at src and bumps its link count
func (fs *FileSystem) Link(c memfs.Caller, src, dst string) error {
	const op = "link"
	logger := fs.logger("Link")

	ctx := writeTree(fs.ns)
	defer ctx.Close()

	parent, name, ok := splitParent(dst)
	if !ok {
		return fail(&logger, op, dst, memfs.InvalidArgument)
	}
	n, ok := fs.ns.Lookup(src)
	if !ok {
		return fail(&logger, op, src, memfs.NotFound)
	}
	if n.IsDir() {
		return fail(&logger, op, src, memfs.IsADirectory)
	}
	if _, exists := fs.ns.Lookup(dst); exists {
		return fail(&logger, op, dst, memfs.AlreadyExists)
	}
	p, d, err := fs.parentDir(&logger, c, op, dst, parent)
	if err != nil {
		return err
	}

	d.set(name, n.ID)
	fs.ns.Insert(dst, n)
	fs.touch(p)

	logger.Debug().Str("src", src).Str("dst", dst).Uint32("nlink", n.Nlink).Msg("Link created")
	return nil
}

// Unlink removes a file's path entry, destroying the inode on its last link
func (fs *FileSystem) Unlink(c memfs.Caller, path string) error {
	const op = "unlink"
	logger := fs.logger("Unlink")

	ctx := writeTree(fs.ns)
	defer ctx.Close()

	parent, name, ok := splitParent(path)
	if !ok {
		return fail(&logger, op, path, memfs.InvalidArgument)
	}
	n, ok := fs.ns.Lookup(path)
	if !ok {
		return fail(&logger, op, path, memfs.NotFound)
	}
	if n.IsDir() {
		return fail(&logger, op, path, memfs.IsADirectory)
	}
	if !canAccess(n, c, memfs.AccessWrite) {
		return fail(&logger, op, path, memfs.PermissionDenied)
	}
	p, ok := fs.ns.Lookup(parent)
	if !ok {
		return fail(&logger, op, path, memfs.NotFound)
	}
	d, ok := p.Dir()
	if !ok {
		return fail(&logger, op, path, memfs.NotADirectory)
	}

	d.remove(name)
	fs.ns.Remove(path)
	fs.touch(p)

	logger.Debug().Str("path", path).Msg("Unlinked")
	return nil
}

// createFile builds a file inode at path. Caller holds the namespace lock
// exclusively.
func (fs *FileSystem) createFile(logger *util.Logger, c memfs.Caller, op, path string, mode uint32) (*Inode, error) {
	parent, name, ok := splitParent(path)
	if !ok {
		return nil, fail(logger, op, path, memfs.InvalidArgument)
	}
	if _, exists := fs.ns.Lookup(path); exists {
		return nil, fail(logger, op, path, memfs.AlreadyExists)
	}
	p, d, err := fs.parentDir(logger, c, op, path, parent)
	if err != nil {
		return nil, err
	}

	n := NewFileInode(fs.ns.NextID(), mode, c, fs.now(), fs.cfg.InitFileCapacity)
	fs.ns.Insert(path, n)
	d.set(name, n.ID)
	fs.touch(p)

	logger.Debug().Str("path", path).Uint64("ino", uint64(n.ID)).Msg("File created")
	return n, nil
}

// Mknod creates an empty regular file
func (fs *FileSystem) Mknod(c memfs.Caller, path string, mode uint32) error {
	logger := fs.logger("Mknod")

	ctx := writeTree(fs.ns)
	defer ctx.Close()

	_, err := fs.createFile(&logger, c, "mknod", path, mode)
	return err
}

// Create is Mknod followed by Open without releasing the namespace lock in
// between. The new file is opened regardless of the mode it was given.
func (fs *FileSystem) Create(c memfs.Caller, path string, mode uint32) (uint64, error) {
	logger := fs.logger("Create")

	ctx := writeTree(fs.ns)
	defer ctx.Close()

	n, err := fs.createFile(&logger, c, "create", path, mode)
	if err != nil {
		return 0, err
	}
	return uint64(n.ID), nil
}

// Mkdir creates a directory along with its "." and ".." path entries
func (fs *FileSystem) Mkdir(c memfs.Caller, path string, mode uint32) error {
	const op = "mkdir"
	logger := fs.logger("Mkdir")

	ctx := writeTree(fs.ns)
	defer ctx.Close()

	parent, name, ok := splitParent(path)
	if !ok {
		return fail(&logger, op, path, memfs.InvalidArgument)
	}
	if _, exists := fs.ns.Lookup(path); exists {
		return fail(&logger, op, path, memfs.AlreadyExists)
	}
	p, d, err := fs.parentDir(&logger, c, op, path, parent)
	if err != nil {
		return err
	}

	n := NewDirInode(fs.ns.NextID(), p.ID, mode, c, fs.now(), fs.cfg.DirSize)
	fs.ns.Insert(path, n)
	fs.ns.Insert(joinPath(path, "."), n)
	fs.ns.Insert(joinPath(path, ".."), p)
	d.set(name, n.ID)
	fs.touch(p)

	logger.Debug().Str("path", path).Uint64("ino", uint64(n.ID)).Msg("Directory created")
	return nil
}

// Rmdir removes an empty directory
func (fs *FileSystem) Rmdir(c memfs.Caller, path string) error {
	const op = "rmdir"
	logger := fs.logger("Rmdir")

	ctx := writeTree(fs.ns)
	defer ctx.Close()

	parent, name, ok := splitParent(path)
	if !ok {
		return fail(&logger, op, path, memfs.InvalidArgument)
	}
	n, ok := fs.ns.Lookup(path)
	if !ok {
		return fail(&logger, op, path, memfs.NotFound)
	}
	dir, ok := n.Dir()
	if !ok {
		return fail(&logger, op, path, memfs.NotADirectory)
	}
	if !canAccess(n, c, memfs.AccessWrite) {
		return fail(&logger, op, path, memfs.PermissionDenied)
	}
	if !dir.Empty() {
		return fail(&logger, op, path, memfs.NotEmpty)
	}
	p, d, err := fs.parentDir(&logger, c, op, path, parent)
	if err != nil {
		return err
	}

	fs.ns.Remove(joinPath(path, "."))
	fs.ns.Remove(joinPath(path, ".."))
	d.remove(name)
	fs.ns.Remove(path)
	fs.touch(p)

	logger.Debug().Str("path", path).Msg("Directory removed")
	return nil
}

// Rename moves src to dst. A directory moves with its whole subtree: every
// descendant path entry is re-mapped under the new prefix.
func (fs *FileSystem) Rename(c memfs.Caller, src, dst string) error {
	const op = "rename"
	logger := fs.logger("Rename")

	ctx := writeTree(fs.ns)
	defer ctx.Close()

	srcParent, srcName, ok := splitParent(src)
	if !ok {
		return fail(&logger, op, src, memfs.InvalidArgument)
	}
	dstParent, dstName, ok := splitParent(dst)
	if !ok {
		return fail(&logger, op, dst, memfs.InvalidArgument)
	}
	n, ok := fs.ns.Lookup(src)
	if !ok {
		return fail(&logger, op, src, memfs.NotFound)
	}
	if src == dst {
		return nil
	}
	if n.IsDir() && isWithin(dst, src) {
		return fail(&logger, op, dst, memfs.NotPermitted)
	}
	if existing, exists := fs.ns.Lookup(dst); exists {
		if existing.IsDir() {
			return fail(&logger, op, dst, memfs.IsADirectory)
		}
		return fail(&logger, op, dst, memfs.AlreadyExists)
	}
	sp, sd, err := fs.parentDir(&logger, c, op, src, srcParent)
	if err != nil {
		return err
	}
	dp, dd, err := fs.parentDir(&logger, c, op, dst, dstParent)
	if err != nil {
		return err
	}

	moved := 0
	if dir, ok := n.Dir(); ok {
		for _, old := range fs.descendants(src, dir) {
			id := fs.ns.paths[old]
			child, _ := fs.ns.Get(id)
			// insert before remove: the link count must stay above zero
			fs.ns.Insert(dst+strings.TrimPrefix(old, src), child)
			fs.ns.Remove(old)
			moved++
		}
	}

	sd.remove(srcName)
	dd.set(dstName, n.ID)
	fs.ns.Insert(dst, n)
	fs.ns.Remove(src)

	if dir, ok := n.Dir(); ok && sp.ID != dp.ID {
		dotdot := joinPath(dst, "..")
		fs.ns.Remove(dotdot)
		fs.ns.Insert(dotdot, dp)
		dir.set("..", dp.ID)
	}
	fs.touch(sp)
	fs.touch(dp)

	logger.Debug().Str("src", src).Str("dst", dst).Int("descendants", moved).Msg("Renamed")
	return nil
}

// descendants lists every path entry below dir, aliases included, without
// descending through the aliases themselves.
func (fs *FileSystem) descendants(path string, dir *Directory) []string {
	var out []string
	for name, id := range dir.children {
		p := joinPath(path, name)
		out = append(out, p)
		if isAlias(name) {
			continue
		}
		if child, ok := fs.ns.Get(id); ok {
			if d, ok := child.Dir(); ok {
				out = append(out, fs.descendants(p, d)...)
			}
		}
	}
	return out
}

// ReadDir lists every entry of a directory, "." and ".." included, sorted by
// name.
func (fs *FileSystem) ReadDir(c memfs.Caller, path string) ([]memfs.DirEntry, error) {
	const op = "readdir"
	logger := fs.logger("ReadDir")

	ctx, err := fs.inodeCtx(&logger, op, path, false)
	if err != nil {
		return nil, err
	}
	defer ctx.Close()

	d, ok := ctx.inode.Dir()
	if !ok {
		return nil, fail(&logger, op, path, memfs.NotADirectory)
	}
	if !canAccess(ctx.inode, c, memfs.AccessRead) {
		return nil, fail(&logger, op, path, memfs.PermissionDenied)
	}

	entries := make([]memfs.DirEntry, 0, d.Len())
	for name, id := range d.children {
		entry := memfs.DirEntry{Name: name, Ino: uint64(id)}
		if child, ok := fs.ns.Get(id); ok {
			entry.Type = child.Type
		}
		entries = append(entries, entry)
	}
	slices.SortFunc(entries, func(a, b memfs.DirEntry) int {
		return strings.Compare(a.Name, b.Name)
	})
	return entries, nil
}
