package natmapper

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// renewFunc re-establishes one mapping. It is invoked from a timer goroutine,
// never while any registry lock is held.
type renewFunc func(ctx context.Context, key registryKey, intPort, extPort uint16, lifetime time.Duration)

// roamCheckFunc runs the periodic public-IP sweep.
type roamCheckFunc func(ctx context.Context)

// scheduler arms one renewal timer per active mapping and runs the periodic
// roam-detection sweep (spec §4.7). Grounded on the teacher's
// renewalmanager.go: a ticker/done-channel pair per background loop, guarded
// by a mutex, logged with log/slog.
type scheduler struct {
	mu     sync.Mutex
	timers map[registryKey]*time.Timer

	onRenew     renewFunc
	onRoamCheck roamCheckFunc

	autoRenew     bool
	sweepInterval time.Duration

	sweepDone chan struct{}
	wg        sync.WaitGroup
	started   bool
}

func newScheduler(autoRenew bool, sweepInterval time.Duration, onRenew renewFunc, onRoamCheck roamCheckFunc) *scheduler {
	return &scheduler{
		timers:        make(map[registryKey]*time.Timer),
		onRenew:       onRenew,
		onRoamCheck:   onRoamCheck,
		autoRenew:     autoRenew,
		sweepInterval: sweepInterval,
	}
}

// arm schedules the next renewal for key, replacing any timer already armed
// for it (Testable Property 5: at most one concurrent timer per key).
//
// requestedLifetime == 0 selects the indefinite regime: the timer fires every
// indefiniteRenewInterval and re-requests lifetime 0 forever. Otherwise the
// timer fires after grantedLifetime and re-requests whatever remains of
// requestedLifetime, compensating for gateways that cap leases below what
// was asked for.
func (s *scheduler) arm(ctx context.Context, key registryKey, intPort, extPort uint16, grantedLifetime, requestedLifetime time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[key]; ok {
		t.Stop()
		delete(s.timers, key)
	}

	var delay, nextRequested time.Duration
	if requestedLifetime == 0 {
		delay = indefiniteRenewInterval
		nextRequested = 0
	} else {
		delay = grantedLifetime
		if delay <= 0 {
			delay = requestedLifetime
		}
		if grantedLifetime < requestedLifetime {
			nextRequested = requestedLifetime - grantedLifetime
		} else {
			nextRequested = requestedLifetime
		}
	}

	s.timers[key] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, key)
		s.mu.Unlock()

		slog.Debug("renewal timer fired", "externalIP", key.externalIP, "externalPort", key.externalPort)
		s.onRenew(ctx, key, intPort, extPort, nextRequested)
	})
}

// cancel stops and forgets the timer for key, if any. Called on explicit
// deletion or when a key is superseded by a re-keyed renewal.
func (s *scheduler) cancel(key registryKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[key]; ok {
		t.Stop()
		delete(s.timers, key)
	}
}

// startSweep launches the periodic roam-detection sweep in the background.
// A no-op if autoRenew is false or the sweep is already running.
func (s *scheduler) startSweep(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.autoRenew || s.started {
		return
	}
	s.started = true
	s.sweepDone = make(chan struct{})

	done := s.sweepDone
	interval := s.sweepInterval
	s.wg.Add(1)
	go s.sweepLoop(ctx, interval, done)
}

func (s *scheduler) sweepLoop(ctx context.Context, interval time.Duration, done <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.onRoamCheck(ctx)
		case <-done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// close stops every armed timer and the sweep loop, and waits for the sweep
// goroutine to exit.
func (s *scheduler) close() {
	s.mu.Lock()
	for key, t := range s.timers {
		t.Stop()
		delete(s.timers, key)
	}
	started := s.started
	done := s.sweepDone
	s.started = false
	s.mu.Unlock()

	if started {
		close(done)
	}
	s.wg.Wait()
}
