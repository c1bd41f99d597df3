//go:build !linux && !windows && cgo

package osthread

/*
#include <pthread.h>
#include <stdint.h>

static uint64_t osthread_self(void) {
	return (uint64_t)(uintptr_t)pthread_self();
}
*/
import "C"

// ID returns the pthread handle of the calling OS thread. Handles of exited
// threads may be reused, like kernel thread ids.
func ID() (uint64, bool) {
	return uint64(C.osthread_self()), true
}
