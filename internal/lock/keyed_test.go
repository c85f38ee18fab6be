package lock

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestKeyed_SerializesSameKey(t *testing.T) {
	k := NewKeyed()
	var inFlight, maxInFlight int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("acc-1")
			defer unlock()

			n := atomic.AddInt32(&inFlight, 1)
			for {
				m := atomic.LoadInt32(&maxInFlight)
				if n <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
		}()
	}
	wg.Wait()

	if maxInFlight != 1 {
		t.Fatalf("expected at most one holder, saw %d", maxInFlight)
	}
	if k.Len() != 0 {
		t.Fatalf("expected entries to be released, %d left", k.Len())
	}
}

func TestKeyed_DifferentKeysDoNotBlock(t *testing.T) {
	k := NewKeyed()
	unlockA := k.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := k.Lock("b")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("lock on b blocked behind a")
	}
}

func TestKeyed_UnlockIsIdempotent(t *testing.T) {
	k := NewKeyed()
	unlock := k.Lock("a")
	if !k.IsLocked("a") {
		t.Fatalf("expected a to be locked")
	}
	unlock()
	unlock()
	if k.IsLocked("a") {
		t.Fatalf("expected a to be released")
	}
	// Must not deadlock.
	k.Lock("a")()
}
