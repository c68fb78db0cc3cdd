package filesystem

import (
	"time"

	"github.com/brettbedarf/memfs"
)

// InodeID is the unique, monotonically assigned identity of an inode
type InodeID uint64

// Attr is the metadata record shared by both inode variants.
// Nlink is guarded by the namespace-wide lock; every other mutable field by
// the inode's pooled lock.
type Attr struct {
	ID    InodeID
	Type  memfs.NodeType
	Mode  uint32 // permission bits
	Uid   uint32
	Gid   uint32
	Mtime time.Time
	Atime time.Time
	Nlink uint32
	Size  int64
}

// Inode is a tagged union over [*File] and [*Directory] sharing one [Attr].
type Inode struct {
	Attr
	body inodeBody
}

// inodeBody is implemented only by *File and *Directory
type inodeBody interface {
	isInodeBody()
}

// File owns a growable byte buffer. len(data) is the allocated capacity and
// is never smaller than the owning inode's Size.
type File struct {
	data []byte
}

// Directory maps child names to inode ids. It always holds "." and "..".
type Directory struct {
	children map[string]InodeID
}

func (*File) isInodeBody()      {}
func (*Directory) isInodeBody() {}

func newAttr(id InodeID, typ memfs.NodeType, mode uint32, owner memfs.Caller, now time.Time) Attr {
	return Attr{
		ID:    id,
		Type:  typ,
		Mode:  mode & 0o7777,
		Uid:   owner.Uid,
		Gid:   owner.Gid,
		Mtime: now,
		Atime: now,
	}
}

// NewFileInode builds a file with capacity pre-allocated bytes and size 0
func NewFileInode(id InodeID, mode uint32, owner memfs.Caller, now time.Time, capacity int) *Inode {
	return &Inode{
		Attr: newAttr(id, memfs.FileNode, mode, owner, now),
		body: &File{data: make([]byte, capacity)},
	}
}

// NewDirInode builds a directory whose "." points at itself and ".." at parent.
// The root passes its own id as parent.
func NewDirInode(id, parent InodeID, mode uint32, owner memfs.Caller, now time.Time, size int64) *Inode {
	n := &Inode{
		Attr: newAttr(id, memfs.DirNode, mode, owner, now),
		body: &Directory{children: map[string]InodeID{
			".":  id,
			"..": parent,
		}},
	}
	n.Size = size
	return n
}

// File returns the file variant, ok is false for directories
func (n *Inode) File() (f *File, ok bool) {
	f, ok = n.body.(*File)
	return
}

// Dir returns the directory variant, ok is false for files
func (n *Inode) Dir() (d *Directory, ok bool) {
	d, ok = n.body.(*Directory)
	return
}

func (n *Inode) IsDir() bool {
	return n.Type == memfs.DirNode
}

// capacity returns the allocated buffer size; directories hold none
func (n *Inode) capacity() int64 {
	switch b := n.body.(type) {
	case *File:
		return b.Capacity()
	case *Directory:
		return 0
	default:
		panic("unknown inode variant")
	}
}

// stat snapshots the metadata. Caller holds the inode's pooled lock.
func (n *Inode) stat() memfs.Stat {
	return memfs.Stat{
		Ino:      uint64(n.ID),
		Type:     n.Type,
		Mode:     n.Mode,
		Nlink:    n.Nlink,
		Uid:      n.Uid,
		Gid:      n.Gid,
		Size:     n.Size,
		Capacity: n.capacity(),
		Atime:    n.Atime,
		Mtime:    n.Mtime,
	}
}

// release drops the variant's storage once the inode is destroyed
func (n *Inode) release() {
	switch b := n.body.(type) {
	case *File:
		b.data = nil
	case *Directory:
		clear(b.children)
	}
}

func (f *File) Capacity() int64 {
	return int64(len(f.data))
}

// grow swaps in a buffer of exactly need bytes holding the first keep bytes
// of the old one. It is a no-op when the buffer is already large enough.
func (f *File) grow(need, keep int64) (grown bool) {
	if need <= f.Capacity() {
		return false
	}
	buf := make([]byte, need)
	copy(buf, f.data[:keep])
	f.data = buf
	return true
}

// Get returns the id stored under name
func (d *Directory) Get(name string) (InodeID, bool) {
	id, ok := d.children[name]
	return id, ok
}

func (d *Directory) set(name string, id InodeID) {
	d.children[name] = id
}

func (d *Directory) remove(name string) {
	delete(d.children, name)
}

// Len counts every entry, "." and ".." included
func (d *Directory) Len() int {
	return len(d.children)
}

// Empty reports whether only the self and parent aliases remain
func (d *Directory) Empty() bool {
	return len(d.children) == 2
}

// Names lists the entries in no particular order
func (d *Directory) Names() []string {
	names := make([]string, 0, len(d.children))
	for name := range d.children {
		names = append(names, name)
	}
	return names
}
