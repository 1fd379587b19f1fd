package lease

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeLock struct {
	mu      sync.Mutex
	owner   bool
	refresh int32
}

func (l *fakeLock) ShouldRefreshLease() bool { return true }

func (l *fakeLock) RefreshLease() error {
	atomic.AddInt32(&l.refresh, 1)
	return nil
}

func (l *fakeLock) ConfiguredLeaseDuration() time.Duration { return time.Second }

func (l *fakeLock) CurrentLeaseOwner() (OwnerInfo, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.owner {
		return OwnerInfo{}, false
	}
	return OwnerInfo{AcquirerID: "node-a"}, true
}

func (l *fakeLock) IsCurrentLeaseOwner() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.owner
}

func (l *fakeLock) setOwner(v bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.owner = v
}

func TestManagerAcceptableReflectsOwnership(t *testing.T) {
	lock := &fakeLock{owner: false}
	m := NewManager(lock, 5*time.Millisecond, nil, nil)
	if m.Acceptable() {
		t.Fatal("expected not acceptable before acquiring lease")
	}
	lock.setOwner(true)
	if !m.Acceptable() {
		t.Fatal("expected acceptable once lease is held")
	}
}

func TestManagerReportsAcquiredThenLostTransitions(t *testing.T) {
	lock := &fakeLock{owner: false}
	var mu sync.Mutex
	var seen []TransitionType
	cb := func(tt TransitionType, _ *OwnerInfo) {
		mu.Lock()
		seen = append(seen, tt)
		mu.Unlock()
	}

	m := NewManager(lock, 2*time.Millisecond, cb, nil)
	m.Run()
	defer m.Stop()

	lock.setOwner(true)
	waitForLen(t, &mu, &seen, 1)

	lock.setOwner(false)
	waitForLen(t, &mu, &seen, 2)

	mu.Lock()
	defer mu.Unlock()
	if len(seen) < 2 || seen[0] != TransitionAcquired || seen[1] != TransitionLost {
		t.Fatalf("expected [acquired, lost], got %v", seen)
	}
}

func waitForLen(t *testing.T, mu *sync.Mutex, seen *[]TransitionType, n int) {
	t.Helper()
	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		mu.Lock()
		l := len(*seen)
		mu.Unlock()
		if l >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d transitions", n)
}

func TestManagerStopIsIdempotent(t *testing.T) {
	lock := &fakeLock{}
	m := NewManager(lock, 5*time.Millisecond, nil, nil)
	m.Run()
	m.Stop()
	m.Stop()
}
