package natmapper

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// routerCache is the set of gateway addresses that have previously
// responded, promoted to the front of each subsequent probe wave (spec §3).
type routerCache struct {
	mu   sync.Mutex
	seen map[string]net.IP
}

func newRouterCache() *routerCache {
	return &routerCache{seen: make(map[string]net.IP)}
}

func (c *routerCache) Add(ip net.IP) {
	if ip == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen[ip.String()] = ip
}

func (c *routerCache) Snapshot() []net.IP {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]net.IP, 0, len(c.seen))
	for _, ip := range c.seen {
		out = append(out, ip)
	}
	return out
}

// dedupIPs returns ips with duplicates (by string form) removed, preserving
// first-seen order.
func dedupIPs(ips []net.IP) []net.IP {
	seen := make(map[string]bool, len(ips))
	out := make([]net.IP, 0, len(ips))
	for _, ip := range ips {
		if ip == nil {
			continue
		}
		key := ip.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, ip)
	}
	return out
}

// matchedWave computes the union of the router-IP cache with the
// longest-prefix matches derived from each private IP (spec §4.3).
func matchedWave(cache *routerCache, known []net.IP, privateIPs []net.IP) []net.IP {
	matched := cache.Snapshot()
	for _, pip := range privateIPs {
		if cand, ok := chooseByPrefix(known, pip); ok {
			matched = append(matched, cand)
		}
	}
	return dedupIPs(matched)
}

// fallbackWave computes known minus matched (spec §4.3).
func fallbackWave(known []net.IP, matched []net.IP) []net.IP {
	exclude := make(map[string]bool, len(matched))
	for _, ip := range matched {
		exclude[ip.String()] = true
	}
	out := make([]net.IP, 0, len(known))
	for _, ip := range known {
		if !exclude[ip.String()] {
			out = append(out, ip)
		}
	}
	return out
}

// raceWave attempts candidates concurrently; the first success resolves the
// wave and cancels the rest (spec §4.3, §5). All per-candidate errors are
// collected for the caller to report if the wave as a whole fails.
func raceWave(ctx context.Context, candidates []net.IP, attempt func(context.Context, net.IP) (*Mapping, error)) (*Mapping, []error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	waveCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu     sync.Mutex
		errs   []error
		result *Mapping
	)

	g, gctx := errgroup.WithContext(waveCtx)
	for _, candidate := range candidates {
		candidate := candidate
		g.Go(func() error {
			m, err := attempt(gctx, candidate)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return nil
			}
			if result == nil {
				result = m
				cancel()
			}
			return nil
		})
	}
	_ = g.Wait()

	return result, errs
}

// dispatchCreateMapping runs the matched-then-fallback two-wave cascade for
// a single adapter against the known candidate gateways (spec §4.3, §5).
// The matched wave completes (success or exhaustion) strictly before the
// fallback wave begins. On success the candidate's IP is cached.
func dispatchCreateMapping(ctx context.Context, a Adapter, cache *routerCache, known []net.IP, privateIPs []net.IP, transport Transport, intPort, extPort uint16, lifetime time.Duration) (*Mapping, error) {
	attempt := func(ctx context.Context, routerIP net.IP) (*Mapping, error) {
		m, err := a.CreateMapping(ctx, routerIP, privateIPs, transport, intPort, extPort, lifetime)
		if err != nil {
			return nil, err
		}
		cache.Add(routerIP)
		return m, nil
	}

	matched := matchedWave(cache, known, privateIPs)
	m, matchedErrs := raceWave(ctx, matched, attempt)
	if m != nil {
		return m, nil
	}

	fallback := fallbackWave(known, matched)
	m, fallbackErrs := raceWave(ctx, fallback, attempt)
	if m != nil {
		return m, nil
	}

	errs := append(matchedErrs, fallbackErrs...)
	if len(errs) == 0 {
		return nil, errors.New("no gateway candidates available")
	}
	err := errors.Join(errs...)
	slog.Warn("gateway candidates exhausted", "protocol", a.Protocol(), "candidates", len(matched)+len(fallback), "error", err)
	return nil, err
}
