package filesystem

// opContext tracks the locks held by one operation, plus the inode it
// resolved. Calling Close() unwinds all unlocking callbacks in reverse order,
// so the pooled inode lock is always dropped before the namespace lock.
//
// NOTE: opContext itself is **not** thread-safe; it lives and dies inside a
// single operation call.
type opContext struct {
	inode    *Inode
	closeFns []func()
}

// readTree takes the namespace-wide lock shared
func readTree(ns *Namespace) *opContext {
	tok := ns.RLock()
	ctx := &opContext{}
	ctx.AddClose(func() { ns.RUnlock(tok) })
	return ctx
}

// writeTree takes the namespace-wide lock exclusively
func writeTree(ns *Namespace) *opContext {
	ns.Lock()
	ctx := &opContext{}
	ctx.AddClose(ns.Unlock)
	return ctx
}

// lockInode resolves path under the held namespace lock and takes the
// inode's pooled lock shared or exclusive. ok is false when path is unmapped.
func (ctx *opContext) lockInode(ns *Namespace, path string, exclusive bool) (ok bool) {
	n, found := ns.Lookup(path)
	if !found {
		return false
	}
	mu := ns.LockFor(path)
	if exclusive {
		mu.Lock()
		ctx.AddClose(mu.Unlock)
	} else {
		mu.RLock()
		ctx.AddClose(mu.RUnlock)
	}
	ctx.inode = n
	return true
}

// AddClose pushes a cleanup callback (e.g., unlock) onto the end of the stack.
func (ctx *opContext) AddClose(fn func()) {
	ctx.closeFns = append(ctx.closeFns, fn)
}

// Close unwinds all cleanup callbacks in reverse order.
// Safe to call even if ctx is nil or no locks were acquired; it is
// a no-op in those cases, so you can `defer ctx.Close()` unconditionally.
func (ctx *opContext) Close() {
	if ctx == nil {
		return
	}
	for i := len(ctx.closeFns) - 1; i >= 0; i-- {
		ctx.closeFns[i]()
	}
	ctx.closeFns = nil
}
