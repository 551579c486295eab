package persistence

import (
	"sync"
	"testing"
	"time"
)

func TestLockRegistry_SerializesSameOwner(t *testing.T) {
	r := NewLockRegistry()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := r.Lock(7)
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Fatalf("counter = %d want 50", counter)
	}
}

func TestLockPair_OppositeDirectionsDoNotDeadlock(t *testing.T) {
	r := NewLockRegistry()

	done := make(chan struct{})
	go func() {
		var wg sync.WaitGroup
		for i := 0; i < 100; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				unlock := r.LockPair(1, 2)
				defer unlock()
			}()
			go func() {
				defer wg.Done()
				unlock := r.LockPair(2, 1)
				defer unlock()
			}()
		}
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("deadlock: opposite-direction pair locks never finished")
	}
}

func TestLockPair_SameOwnerLocksOnce(t *testing.T) {
	r := NewLockRegistry()
	unlock := r.LockPair(3, 3)
	unlock()

	// Lock must be free again afterwards.
	unlock = r.Lock(3)
	unlock()
}
