package service

import (
	"sync"
	"testing"
	"time"
)

func TestDealLocksMutualExclusion(t *testing.T) {
	locks := NewDealLocks()
	const goroutines = 50
	const increments = 100

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < increments; j++ {
				unlock := locks.Lock("deal-1")
				counter++
				unlock()
			}
		}()
	}
	wg.Wait()

	if counter != goroutines*increments {
		t.Fatalf("lost updates under contention: got %d, want %d", counter, goroutines*increments)
	}
}

func TestDealLocksIndependentKeys(t *testing.T) {
	locks := NewDealLocks()
	unlockA := locks.Lock("deal-a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB := locks.Lock("deal-b")
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key blocked")
	}
}

func TestDealLocksTableShrinks(t *testing.T) {
	locks := NewDealLocks()
	for i := 0; i < 100; i++ {
		unlock := locks.Lock("deal-x")
		unlock()
	}
	locks.mu.Lock()
	n := len(locks.locks)
	locks.mu.Unlock()
	if n != 0 {
		t.Fatalf("expected lock table to be empty after release, got %d entries", n)
	}
}

func TestDealLocksSequentialWaiters(t *testing.T) {
	locks := NewDealLocks()
	unlock := locks.Lock("deal-y")

	order := make(chan int, 2)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		u := locks.Lock("deal-y")
		order <- 2
		u()
	}()

	// Give the waiter time to block, then release.
	time.Sleep(10 * time.Millisecond)
	order <- 1
	unlock()
	wg.Wait()
	close(order)

	first := <-order
	if first != 1 {
		t.Fatal("waiter ran before the holder released")
	}
}
