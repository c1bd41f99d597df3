//go:build !linux && !windows && !cgo

package osthread

// ID reports that OS thread identity is unavailable without cgo on this
// platform. Callers fall back to treating every delivery as a fresh thread.
func ID() (uint64, bool) {
	return 0, false
}
