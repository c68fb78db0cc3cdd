package filesystem

import (
	"encoding/binary"
	"sync"

	"github.com/zeebo/blake3"
)

// LockPool is a fixed set of read/write locks selected by hashing a key.
// Unrelated keys may land on the same slot and serialize each other.
type LockPool struct {
	locks []sync.RWMutex
}

// NewLockPool creates a pool of n locks; n below 1 is raised to 1
func NewLockPool(n int) *LockPool {
	return &LockPool{locks: make([]sync.RWMutex, max(n, 1))}
}

// Size returns the number of slots
func (p *LockPool) Size() int {
	return len(p.locks)
}

// Slot returns the stable slot index for key
func (p *LockPool) Slot(key string) int {
	sum := blake3.Sum256([]byte(key))
	return int(binary.LittleEndian.Uint64(sum[:8]) % uint64(len(p.locks)))
}

// For returns the lock guarding key
func (p *LockPool) For(key string) *sync.RWMutex {
	return &p.locks[p.Slot(key)]
}
