package osthread

import (
	"runtime"
	"sync"
	"testing"
)

func TestID_StableWhileLocked(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	a, ok := ID()
	if !ok {
		t.Skip("thread identity unavailable on this platform")
	}
	b, _ := ID()
	if a != b {
		t.Fatalf("ID changed while locked: %d != %d", a, b)
	}
}

func TestID_DistinctAcrossLockedThreads(t *testing.T) {
	if _, ok := ID(); !ok {
		t.Skip("thread identity unavailable on this platform")
	}

	const n = 4
	ids := make([]uint64, n)
	var ready, done sync.WaitGroup
	ready.Add(n)
	done.Add(n)
	release := make(chan struct{})

	for i := 0; i < n; i++ {
		go func(i int) {
			defer done.Done()
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()
			ids[i], _ = ID()
			ready.Done()
			<-release
		}(i)
	}
	ready.Wait()
	close(release)
	done.Wait()

	seen := make(map[uint64]bool)
	for _, id := range ids {
		if seen[id] {
			t.Fatalf("duplicate thread id %d among concurrently locked goroutines", id)
		}
		seen[id] = true
	}
}
