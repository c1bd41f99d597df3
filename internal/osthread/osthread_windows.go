//go:build windows

package osthread

import "golang.org/x/sys/windows"

// ID returns the id of the calling OS thread.
func ID() (uint64, bool) {
	return uint64(windows.GetCurrentThreadId()), true
}
