package filesystem

import (
	"fmt"
	"os"
	"time"

	"github.com/brettbedarf/memfs"
	"github.com/brettbedarf/memfs/config"
	"github.com/brettbedarf/memfs/internal/util"
	"github.com/google/uuid"
)

// FileSystem is the operation layer: every exported operation resolves its
// path(s) through the [Namespace], takes the locks it needs in namespace →
// inode order, checks existence, type and access, then mutates.
type FileSystem struct {
	cfg *config.Config
	ns  *Namespace
	id  string // instance id attached to log lines
	now func() time.Time
}

var _ memfs.FileSystemOperator = (*FileSystem)(nil)

// NewFS validates cfg (nil means defaults) and seeds a namespace holding only
// the root directory, owned by the current process user.
func NewFS(cfg *config.Config) (*FileSystem, error) {
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	fs := &FileSystem{
		cfg: cfg,
		ns:  NewNamespace(cfg.LockPoolSize),
		id:  uuid.NewString(),
		now: time.Now,
	}
	owner := memfs.Caller{Uid: uint32(os.Getuid()), Gid: uint32(os.Getgid())}
	fs.seedRoot(owner)

	logger := fs.logger("NewFS")
	logger.Debug().
		Int("lockPool", cfg.LockPoolSize).
		Str("maxFileSize", util.Bytes(cfg.MaxFileSize)).
		Msg("Filesystem initialized")
	return fs, nil
}

// seedRoot installs "/" with its "." and ".." aliases both naming itself
func (fs *FileSystem) seedRoot(owner memfs.Caller) {
	id := fs.ns.NextID()
	root := NewDirInode(id, id, fs.cfg.RootMode, owner, fs.now(), fs.cfg.DirSize)
	fs.ns.Insert(delimiter, root)
	fs.ns.Insert(joinPath(delimiter, "."), root)
	fs.ns.Insert(joinPath(delimiter, ".."), root)
}

// ID returns the instance id
func (fs *FileSystem) ID() string {
	return fs.id
}

// Namespace exposes the underlying namespace. Callers must follow its
// locking protocol.
func (fs *FileSystem) Namespace() *Namespace {
	return fs.ns
}

func (fs *FileSystem) logger(component string) util.Logger {
	return util.GetLogger("FS." + component).With().Str("fs", fs.id).Logger()
}

// fail logs a rejected check and builds the operation error
func fail(logger *util.Logger, op, path string, kind memfs.Kind) error {
	logger.Debug().Str("path", path).Stringer("kind", kind).Msg("Rejected")
	return memfs.NewError(op, path, kind)
}

// touch stamps the modified time of a directory whose entries changed.
// Caller holds the namespace lock exclusively, which excludes every holder
// of the directory's pooled lock.
func (fs *FileSystem) touch(n *Inode) {
	n.Mtime = fs.now()
}

// StatFs reports the engine's live inodes, path entries and buffer bytes
func (fs *FileSystem) StatFs() memfs.FsStats {
	ctx := readTree(fs.ns)
	defer ctx.Close()

	return memfs.FsStats{
		Inodes:    uint64(fs.ns.Inodes()),
		Paths:     uint64(fs.ns.Len()),
		Allocated: uint64(fs.ns.Allocated()),
	}
}

// CheckInvariants verifies that link counts equal the number of path entries
// naming each inode, that every directory entry has a path entry and vice
// versa, and that no file's size exceeds its capacity.
func (fs *FileSystem) CheckInvariants() error {
	ctx := readTree(fs.ns)
	defer ctx.Close()

	refs := make(map[InodeID]uint32)
	var err error
	fs.ns.Range(func(path string, n *Inode) bool {
		refs[n.ID]++

		if f, ok := n.File(); ok && n.Size > f.Capacity() {
			err = fmt.Errorf("%s: size %d exceeds capacity %d", path, n.Size, f.Capacity())
			return false
		}

		// child entries of canonical directory paths must be mapped
		if d, ok := n.Dir(); ok && !isAliasPath(path) {
			for name, childID := range d.children {
				if got, ok := fs.ns.paths[joinPath(path, name)]; !ok || got != childID {
					err = fmt.Errorf("%s: entry %q has no matching path", path, name)
					return false
				}
			}
		}

		// and every non-root path must be listed by its parent
		if parent, name, ok := splitPathLoose(path); ok {
			p, found := fs.ns.Lookup(parent)
			if !found {
				err = fmt.Errorf("%s: parent %s is unmapped", path, parent)
				return false
			}
			d, isDir := p.Dir()
			if !isDir {
				err = fmt.Errorf("%s: parent %s is not a directory", path, parent)
				return false
			}
			if got, ok := d.Get(name); !ok || got != n.ID {
				err = fmt.Errorf("%s: not listed by parent %s", path, parent)
				return false
			}
		}
		return true
	})
	if err != nil {
		return err
	}

	if len(refs) != fs.ns.Inodes() {
		return fmt.Errorf("arena holds %d inodes, paths name %d", fs.ns.Inodes(), len(refs))
	}
	for id, count := range refs {
		n, _ := fs.ns.Get(id)
		if n.Nlink != count {
			return fmt.Errorf("inode %d: nlink %d, path entries %d", id, n.Nlink, count)
		}
	}
	return nil
}

// isAliasPath reports whether the final component of path is "." or ".."
func isAliasPath(path string) bool {
	_, name, _ := splitPathLoose(path)
	return isAlias(name)
}

// splitPathLoose is splitParent that also accepts alias names
func splitPathLoose(path string) (parent, name string, ok bool) {
	if path == delimiter {
		return "", "", false
	}
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			parent, name = path[:i], path[i+1:]
			if parent == "" {
				parent = delimiter
			}
			return parent, name, true
		}
	}
	return "", "", false
}
