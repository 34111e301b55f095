package settlement

import (
	"sync"
	"testing"
)

func TestUserLocksSerializeSameUser(t *testing.T) {
	locks := NewUserLocks()

	var (
		wg      sync.WaitGroup
		active  int
		maxSeen int
		mu      sync.Mutex
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := locks.Lock(1)
			defer release()

			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Errorf("%d holders at once, want 1", maxSeen)
	}
	if n := locks.Len(); n != 0 {
		t.Errorf("Len() = %d after all releases, want 0", n)
	}
}

func TestUserLocksIndependentUsers(t *testing.T) {
	locks := NewUserLocks()

	releaseA := locks.Lock(1)
	done := make(chan struct{})
	go func() {
		release := locks.Lock(2)
		release()
		close(done)
	}()
	<-done
	releaseA()
}
