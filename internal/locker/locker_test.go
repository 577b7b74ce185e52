package locker

import (
	"context"
	"sync"
	"testing"
)

func TestShardedMutualExclusion(t *testing.T) {
	locks := NewSharded()
	const workers = 50
	const iterations = 20

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				unlock, err := locks.Lock(context.Background(), "variant-1|wh-1")
				if err != nil {
					t.Errorf("Lock returned error: %v", err)
					return
				}
				counter++
				unlock()
			}
		}()
	}
	wg.Wait()

	if counter != workers*iterations {
		t.Errorf("expected counter %d, got %d", workers*iterations, counter)
	}
}

func TestShardedUnlockAllowsReacquire(t *testing.T) {
	locks := NewSharded()

	unlock, err := locks.Lock(context.Background(), "variant-1|wh-1")
	if err != nil {
		t.Fatalf("Lock returned error: %v", err)
	}
	unlock()

	again, err := locks.Lock(context.Background(), "variant-1|wh-1")
	if err != nil {
		t.Fatalf("re-Lock returned error: %v", err)
	}
	again()
}
