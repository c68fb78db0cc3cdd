package filesystem

import (
	"github.com/brettbedarf/memfs"
	"golang.org/x/sys/unix"
)

// CheckAccess decides whether caller may perform want on an inode with the
// given owner, group and mode. Uid 0 is always granted. Otherwise the owner,
// group or other triad is selected, in that order of precedence, and want
// must be a single bit of memfs.AccessRead, AccessWrite or AccessExec.
func CheckAccess(uid, gid, mode uint32, caller memfs.Caller, want memfs.AccessMode) bool {
	if caller.Privileged() {
		return true
	}

	var r, w, x uint32 = unix.S_IROTH, unix.S_IWOTH, unix.S_IXOTH
	if caller.Uid == uid {
		r, w, x = unix.S_IRUSR, unix.S_IWUSR, unix.S_IXUSR
	} else if caller.Gid == gid {
		r, w, x = unix.S_IRGRP, unix.S_IWGRP, unix.S_IXGRP
	}

	switch want {
	case memfs.AccessRead:
		return mode&r != 0
	case memfs.AccessWrite:
		return mode&w != 0
	case memfs.AccessExec:
		return mode&x != 0
	default:
		return false
	}
}

// canAccess applies CheckAccess to an inode. Caller holds a lock covering n's mode.
func canAccess(n *Inode, caller memfs.Caller, want memfs.AccessMode) bool {
	return CheckAccess(n.Uid, n.Gid, n.Mode, caller, want)
}
