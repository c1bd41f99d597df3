//go:build linux

package osthread

import "golang.org/x/sys/unix"

// ID returns the kernel id of the calling OS thread. The caller must be
// locked to its thread (runtime.LockOSThread) for the value to stay
// meaningful.
func ID() (uint64, bool) {
	return uint64(unix.Gettid()), true
}
