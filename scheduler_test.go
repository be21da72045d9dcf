package natmapper

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSchedulerLeaseShortening(t *testing.T) {
	var (
		mu          sync.Mutex
		gotLifetime time.Duration
		calls       int32
	)

	done := make(chan struct{})
	s := newScheduler(false, time.Hour, func(ctx context.Context, key registryKey, intPort, extPort uint16, lifetime time.Duration) {
		mu.Lock()
		gotLifetime = lifetime
		mu.Unlock()
		if atomic.AddInt32(&calls, 1) == 1 {
			close(done)
		}
	}, func(ctx context.Context) {})

	key := registryKey{externalIP: "203.0.113.1", externalPort: 55555}
	s.arm(context.Background(), key, 55555, 55555, 10*time.Millisecond, 3600*time.Second)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("renewal timer never fired")
	}

	mu.Lock()
	defer mu.Unlock()
	want := 3600*time.Second - 10*time.Millisecond
	if gotLifetime != want {
		t.Errorf("renewal requested lifetime = %v, want %v", gotLifetime, want)
	}
}

func TestSchedulerArmReplacesExistingTimer(t *testing.T) {
	var calls int32
	s := newScheduler(false, time.Hour, func(ctx context.Context, key registryKey, intPort, extPort uint16, lifetime time.Duration) {
		atomic.AddInt32(&calls, 1)
	}, func(ctx context.Context) {})

	key := registryKey{externalIP: "203.0.113.1", externalPort: 55555}

	s.arm(context.Background(), key, 1, 1, time.Hour, time.Hour)
	s.arm(context.Background(), key, 1, 1, 20*time.Millisecond, time.Hour)

	time.Sleep(200 * time.Millisecond)

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("renewal fired %d times, want exactly 1 (re-arming must replace, not duplicate, the timer)", got)
	}
}

func TestSchedulerIndefiniteRegimeRequestsZeroLifetime(t *testing.T) {
	var gotLifetime time.Duration
	var mu sync.Mutex
	done := make(chan struct{})

	// arm with requestedLifetime 0 selects the indefinite regime, whose timer
	// waits indefiniteRenewInterval. Reset the armed timer so it fires almost
	// at once, then check the lifetime the renewal re-requests.
	s := newScheduler(false, time.Hour, func(ctx context.Context, key registryKey, intPort, extPort uint16, lifetime time.Duration) {
		mu.Lock()
		gotLifetime = lifetime
		mu.Unlock()
		close(done)
	}, func(ctx context.Context) {})

	key := registryKey{externalIP: "203.0.113.1", externalPort: 55555}
	s.arm(context.Background(), key, 1, 1, wildcardLifetime, 0)
	s.mu.Lock()
	s.timers[key].Reset(10 * time.Millisecond)
	s.mu.Unlock()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("renewal never fired")
	}

	mu.Lock()
	defer mu.Unlock()
	if gotLifetime != 0 {
		t.Errorf("indefinite regime renewal lifetime = %v, want 0", gotLifetime)
	}
}

func TestSchedulerSweepInvokesRoamCheck(t *testing.T) {
	var calls int32
	done := make(chan struct{})

	s := newScheduler(true, 20*time.Millisecond, func(ctx context.Context, key registryKey, intPort, extPort uint16, lifetime time.Duration) {
	}, func(ctx context.Context) {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(done)
		}
	})

	s.startSweep(context.Background())
	defer s.close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweep never invoked roam check")
	}
}

func TestSchedulerCloseStopsTimersAndSweep(t *testing.T) {
	var renewed int32
	s := newScheduler(true, 10*time.Millisecond, func(ctx context.Context, key registryKey, intPort, extPort uint16, lifetime time.Duration) {
		atomic.AddInt32(&renewed, 1)
	}, func(ctx context.Context) {})

	key := registryKey{externalIP: "203.0.113.1", externalPort: 55555}
	s.arm(context.Background(), key, 1, 1, time.Hour, time.Hour)
	s.startSweep(context.Background())

	s.close()

	s.mu.Lock()
	n := len(s.timers)
	s.mu.Unlock()
	if n != 0 {
		t.Errorf("close() left %d timers armed, want 0", n)
	}
}
