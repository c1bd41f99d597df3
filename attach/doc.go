// Package attach manages attachment of native threads to the managed runtime.
//
// Native callbacks arrive on threads the runtime has never seen. Before a
// callback can touch managed objects its thread must be attached, and a
// thread attached by the bridge must eventually be detached again:
//
//	tok, err := mgr.Attach()
//	if err != nil {
//	    return err
//	}
//	defer mgr.Release(tok)
//	env := tok.Env()
//
// Attachment belongs to the OS thread, so callers lock their goroutine with
// runtime.LockOSThread for the duration.
//
// # Policies
//
// Ephemeral detaches after each delivery. Persistent keeps the thread
// attached and detaches it from the native library's thread-exit hook, which
// saves an attach per callback on busy worker threads.
//
// Threads already attached by the host, such as the caller's own thread
// when a request completes synchronously, are never detached.
package attach
