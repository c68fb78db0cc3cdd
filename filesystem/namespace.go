package filesystem

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/brettbedarf/memfs/internal/util"
	"github.com/puzpuzpuz/xsync/v4"
)

// Namespace maps absolute path strings to inode ids and owns every inode
// reachable from "/". Resolution is a flat lookup of the exact path string:
// every ancestor and every "."/".." alias is an entry of its own.
//
// The namespace-wide lock guards the path map, every directory's child map
// and every link count. Callers take it (shared for reads, exclusive for
// structural mutation) before calling Lookup/Insert/Remove, and always before
// any pooled inode lock.
type Namespace struct {
	mu    *xsync.RBMutex
	paths map[string]InodeID          // guarded by mu
	arena *xsync.Map[InodeID, *Inode] // single owner of inode records
	pool  *LockPool

	lastID    atomic.Uint64
	allocated atomic.Int64 // bytes held by file buffers

	onDestroy func(n *Inode)
}

// NewNamespace creates an empty namespace with a pool of poolSize inode locks
func NewNamespace(poolSize int) *Namespace {
	return &Namespace{
		mu:    xsync.NewRBMutex(),
		paths: make(map[string]InodeID),
		arena: xsync.NewMap[InodeID, *Inode](),
		pool:  NewLockPool(poolSize),
	}
}

// NextID hands out a fresh inode id; ids start at 1
func (ns *Namespace) NextID() InodeID {
	return InodeID(ns.lastID.Add(1))
}

// OnDestroy registers fn to be called once per destroyed inode.
// Must be set before the namespace is shared.
func (ns *Namespace) OnDestroy(fn func(n *Inode)) {
	ns.onDestroy = fn
}

// RLock takes the namespace-wide lock shared
func (ns *Namespace) RLock() *xsync.RToken {
	return ns.mu.RLock()
}

func (ns *Namespace) RUnlock(t *xsync.RToken) {
	ns.mu.RUnlock(t)
}

// Lock takes the namespace-wide lock exclusively
func (ns *Namespace) Lock() {
	ns.mu.Lock()
}

func (ns *Namespace) Unlock() {
	ns.mu.Unlock()
}

// Lookup returns the inode mapped at exactly path
func (ns *Namespace) Lookup(path string) (*Inode, bool) {
	id, ok := ns.paths[path]
	if !ok {
		return nil, false
	}
	return ns.arena.Load(id)
}

// Get returns a live inode by id
func (ns *Namespace) Get(id InodeID) (*Inode, bool) {
	return ns.arena.Load(id)
}

// Insert maps path to n and bumps its link count. It fails without mutating
// anything when path is already mapped. Structural validity (parent exists
// and is a directory) is the caller's job.
func (ns *Namespace) Insert(path string, n *Inode) bool {
	if _, exists := ns.paths[path]; exists {
		return false
	}
	ns.paths[path] = n.ID
	if _, loaded := ns.arena.LoadOrStore(n.ID, n); !loaded {
		ns.allocated.Add(n.capacity())
	}
	n.Nlink++
	return true
}

// Remove unmaps path and drops the target's link count, destroying the inode
// when the count reaches zero. It reports success whether or not that was
// the last link.
func (ns *Namespace) Remove(path string) bool {
	id, ok := ns.paths[path]
	if !ok {
		return false
	}
	delete(ns.paths, path)

	n, ok := ns.arena.Load(id)
	if !ok {
		return true
	}
	n.Nlink--
	if n.Nlink == 0 {
		ns.destroy(n)
	}
	return true
}

// destroy tears down n. Only reachable from Remove on the last link.
func (ns *Namespace) destroy(n *Inode) {
	logger := util.GetLogger("Namespace.destroy")

	ns.arena.Delete(n.ID)
	ns.allocated.Add(-n.capacity())
	if ns.onDestroy != nil {
		ns.onDestroy(n)
	}
	n.release()
	logger.Trace().Uint64("ino", uint64(n.ID)).Stringer("type", n.Type).Msg("Inode destroyed")
}

// LockFor returns the pooled lock guarding the inode at path. The slot is
// chosen from the inode's identity so every hard link of one inode shares a
// lock; an unmapped path hashes as itself. Caller holds the namespace lock.
func (ns *Namespace) LockFor(path string) *sync.RWMutex {
	return ns.pool.For(ns.lockKey(path))
}

// SlotFor reports which pool slot LockFor(path) selects
func (ns *Namespace) SlotFor(path string) int {
	return ns.pool.Slot(ns.lockKey(path))
}

func (ns *Namespace) lockKey(path string) string {
	if id, ok := ns.paths[path]; ok {
		return inodeKey(id)
	}
	return path
}

func inodeKey(id InodeID) string {
	return "ino:" + strconv.FormatUint(uint64(id), 10)
}

// Len returns the number of path entries
func (ns *Namespace) Len() int {
	return len(ns.paths)
}

// Inodes returns the number of live inodes
func (ns *Namespace) Inodes() int {
	return ns.arena.Size()
}

// Allocated returns the bytes held by all file buffers
func (ns *Namespace) Allocated() int64 {
	return ns.allocated.Load()
}

func (ns *Namespace) addAllocated(delta int64) {
	ns.allocated.Add(delta)
}

// Range visits every path entry until fn returns false.
// Caller holds the namespace lock.
func (ns *Namespace) Range(fn func(path string, n *Inode) bool) {
	for path, id := range ns.paths {
		n, ok := ns.arena.Load(id)
		if !ok {
			continue
		}
		if !fn(path, n) {
			return
		}
	}
}
