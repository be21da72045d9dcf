package natmapper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

// EventHandler receives a Mapping each time one is created or renewed.
type EventHandler func(m *Mapping)

// Config holds Manager construction options (spec §6). newConfig starts
// from the documented defaults and then applies each Option.
type Config struct {
	autoRenew     bool
	renewInterval time.Duration
	adapters      []Adapter
	probe         NetworkProbe
}

// Option configures a Manager at construction time.
type Option func(*Config)

// WithAutoRenew toggles the periodic roam-detection sweep. Default true.
func WithAutoRenew(enabled bool) Option {
	return func(c *Config) { c.autoRenew = enabled }
}

// WithRenewInterval sets the sweep period. Default 10 minutes.
func WithRenewInterval(d time.Duration) Option {
	return func(c *Config) { c.renewInterval = d }
}

// WithAdapters overrides adapter priority order. Default [PMP, UPnP].
func WithAdapters(adapters ...Adapter) Option {
	return func(c *Config) { c.adapters = adapters }
}

// WithNetworkProbe overrides the NetworkProbe collaborator. Default is the
// built-in HTTPS/OS-routing-table probe.
func WithNetworkProbe(p NetworkProbe) Option {
	return func(c *Config) { c.probe = p }
}

func newConfig(opts ...Option) *Config {
	c := &Config{
		autoRenew:     true,
		renewInterval: defaultSweepInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.adapters == nil {
		c.adapters = []Adapter{newPMPAdapter(), newUPnPAdapter()}
	}
	if c.probe == nil {
		c.probe = newDefaultProbe()
	}
	return c
}

// Manager is the façade over the adapter registry, gateway dispatcher,
// mapping table and renewal scheduler (spec §4.8). Grounded on the teacher's
// portmapper.go for the adapter-priority-fallback shape, generalized from a
// single fixed protocol choice to an ordered list of Adapters.
type Manager struct {
	adapters []Adapter
	probe    NetworkProbe

	registry  *registry
	cache     *routerCache
	scheduler *scheduler

	handlersMu sync.Mutex
	handlers   []EventHandler

	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager builds a Manager and, unless WithAutoRenew(false) is supplied,
// starts the periodic roam-detection sweep.
func NewManager(opts ...Option) *Manager {
	return NewManagerContext(context.Background(), opts...)
}

// NewManagerContext is NewManager with a caller-supplied background context.
// Cancelling it stops the periodic sweep; it does not stop renewal timers or
// delete any mapping, which only Close does.
func NewManagerContext(ctx context.Context, opts ...Option) *Manager {
	cfg := newConfig(opts...)
	ctx, cancel := context.WithCancel(ctx)

	m := &Manager{
		adapters: cfg.adapters,
		probe:    cfg.probe,
		registry: newRegistry(),
		cache:    newRouterCache(),
		ctx:      ctx,
		cancel:   cancel,
	}
	m.scheduler = newScheduler(cfg.autoRenew, cfg.renewInterval, m.handleRenew, m.handleRoamCheck)
	m.scheduler.startSweep(ctx)
	return m
}

// OnMapping registers a handler invoked on each mapping creation or renewal.
func (m *Manager) OnMapping(h EventHandler) {
	m.handlersMu.Lock()
	defer m.handlersMu.Unlock()
	m.handlers = append(m.handlers, h)
}

func (m *Manager) emit(mapping *Mapping) {
	m.handlersMu.Lock()
	handlers := append([]EventHandler(nil), m.handlers...)
	m.handlersMu.Unlock()
	for _, h := range handlers {
		h(mapping.Clone())
	}
}

// AddMapping tries each configured adapter in order; the first whose
// dispatch across the gateway candidates succeeds wins (spec §4.8, S1).
func (m *Manager) AddMapping(ctx context.Context, transport Transport, intPort, extPort uint16, lifetime time.Duration) (*Mapping, error) {
	privateIPs, err := m.probe.PrivateIPs()
	if err != nil {
		return nil, fmt.Errorf("enumerate private IPs: %w", err)
	}

	known := m.candidateGateways()

	var lastErr error
	for _, adapter := range m.adapters {
		mapping, err := dispatchCreateMapping(ctx, adapter, m.cache, known, privateIPs, transport, intPort, extPort, lifetime)
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", adapter.Protocol(), err)
			continue
		}

		m.finishMapping(ctx, adapter, mapping, lifetime)
		return mapping, nil
	}

	if lastErr == nil {
		lastErr = errors.New("no adapters configured")
	}
	return nil, fmt.Errorf("addMapping: every adapter failed: %w", lastErr)
}

// finishMapping resolves the external IP when the adapter didn't supply one,
// inserts the mapping into the registry, arms its renewal timer, and emits
// the mapping event.
func (m *Manager) finishMapping(ctx context.Context, adapter Adapter, mapping *Mapping, requestedLifetime time.Duration) {
	if mapping.ExternalIP == nil {
		if q, ok := adapter.(ExternalIPQuerier); ok {
			if ip, err := q.QueryExternalIP(ctx, mapping.RouterIP); err == nil {
				mapping.ExternalIP = ip
			} else {
				slog.Warn("external IP query failed", "protocol", adapter.Protocol(), "router", mapping.RouterIP, "error", err)
			}
		}
	}

	key := m.registry.Insert(mapping, adapter)

	// UPnP has no lease concept of its own: AddPortMapping's lease duration
	// of 0 means the mapping is static until explicitly removed, so a
	// requested lifetime of 0 against a UPnP gateway gets no renewal timer
	// at all, unlike PMP/PCP's indefinite regime which still re-requests
	// periodically to survive a gateway restart.
	if !(adapter.Protocol() == UPNP && requestedLifetime == 0) {
		m.scheduler.arm(m.ctx, key, mapping.InternalPort, mapping.ExternalPort, mapping.Lifetime, requestedLifetime)
	}

	slog.Debug("mapping established", "protocol", adapter.Protocol(), "externalIP", mapping.ExternalIP, "externalPort", mapping.ExternalPort)
	m.emit(mapping)
}

// candidateGateways merges the OS-reported default gateway with the bundled
// seed list, so a dispatch has something to race even before the router-IP
// cache has seen anything (spec §6).
func (m *Manager) candidateGateways() []net.IP {
	var out []net.IP
	if gw, err := m.probe.GatewayIP(); err == nil {
		out = append(out, gw)
	}
	for _, s := range routerSeedList {
		if ip := net.ParseIP(s); ip != nil {
			out = append(out, ip)
		}
	}
	return dedupIPs(out)
}

// DeleteMapping removes the mapping identified by (externalIP, extPort). A
// nil externalIP resolves to the probe's current public IP (spec §4.8).
func (m *Manager) DeleteMapping(ctx context.Context, extPort uint16, externalIP net.IP) error {
	if externalIP == nil {
		if ip, err := m.probe.PublicIP(ctx); err == nil {
			externalIP = ip
		}
	}

	key, entry, ok := m.evict(externalIP, extPort)
	if !ok {
		return fmt.Errorf("no active mapping for %s:%d", externalIP, extPort)
	}
	m.scheduler.cancel(key)

	if err := entry.adapter.DeleteMapping(ctx, entry.mapping); err != nil {
		return fmt.Errorf("deleteMapping: gateway unmap failed (entry removed locally): %w", err)
	}
	return nil
}

func (m *Manager) evict(externalIP net.IP, extPort uint16) (registryKey, *registryEntry, bool) {
	entry, ok := m.registry.Evict(externalIP, extPort)
	if !ok {
		return registryKey{}, nil, false
	}
	key := keyFor(entry.mapping)
	return key, entry, true
}

// GetActiveMappings returns a snapshot of every mapping currently in the
// registry.
func (m *Manager) GetActiveMappings() []*Mapping {
	return m.registry.Snapshot()
}

// RenewMappings runs one roam-detection sweep synchronously and returns once
// it completes (spec §6).
func (m *Manager) RenewMappings(ctx context.Context) error {
	m.handleRoamCheck(ctx)
	return nil
}

// handleRenew is the scheduler's per-timer callback: re-request the same
// internal/external ports against the mapping's existing gateway. Failure is
// logged and recorded on the mapping for GetActiveMappings callers to
// observe. After a failure no further renewal timer is armed and the entry
// stays in the registry: nothing evicts it when its lease elapses, and it is
// removed only by DeleteMapping, Close, or a sweep that finds the public IP
// changed.
func (m *Manager) handleRenew(ctx context.Context, key registryKey, intPort, extPort uint16, lifetime time.Duration) {
	entry, ok := m.registry.Lookup(parseOrNil(key.externalIP), key.externalPort)
	if !ok {
		return
	}

	// Re-derive the current private IPs rather than reusing whatever was
	// resolved at creation time: the adapter needs a real candidate to pick
	// an internal client IP from (UPnP) or to stamp on the wire request
	// (PCP), and a stale or nil list here made every finite-lease renewal
	// fail deterministically. Fall back to the mapping's own recorded
	// internal IP if the probe can't enumerate interfaces right now.
	privateIPs, err := m.probe.PrivateIPs()
	if err != nil || len(privateIPs) == 0 {
		privateIPs = []net.IP{entry.mapping.InternalIP}
	}

	mapping, err := entry.adapter.CreateMapping(ctx, entry.mapping.RouterIP, privateIPs, entry.mapping.Transport, intPort, extPort, lifetime)
	if err != nil {
		slog.Warn("mapping renewal failed", "protocol", entry.adapter.Protocol(), "externalPort", extPort, "error", err)
		m.registry.SetError(key, err)
		return
	}

	m.finishMapping(ctx, entry.adapter, mapping, lifetime)

	newKey := keyFor(mapping)
	if newKey != key {
		m.registry.EvictKey(key)
		m.scheduler.cancel(key)
	}

	slog.Info("mapping renewed", "protocol", entry.adapter.Protocol(), "externalPort", mapping.ExternalPort)
}

// handleRoamCheck implements the periodic sweep: if the current public IP no
// longer matches a mapping's stored externalIP, evict it without contacting
// the old gateway and re-establish it fresh (spec §4.7, S4).
func (m *Manager) handleRoamCheck(ctx context.Context) {
	currentIP, err := m.probe.PublicIP(ctx)
	if err != nil {
		slog.Warn("roam-check public IP query failed", "error", err)
		return
	}

	for _, key := range m.registry.Keys() {
		if key.externalIP == currentIP.String() {
			continue
		}

		entry, ok := m.registry.EvictKey(key)
		if !ok {
			continue
		}
		m.scheduler.cancel(key)

		slog.Info("roam detected, re-establishing mapping", "oldExternalIP", key.externalIP, "newPublicIP", currentIP)

		mapping, err := m.AddMapping(ctx, entry.mapping.Transport, entry.mapping.InternalPort, entry.mapping.ExternalPort, entry.mapping.RequestedLifetime)
		if err != nil {
			slog.Warn("roam re-establishment failed", "externalPort", entry.mapping.ExternalPort, "error", err)
			continue
		}
		slog.Info("mapping re-established after roam", "externalIP", mapping.ExternalIP, "externalPort", mapping.ExternalPort)
	}
}

// Close tears down the scheduler and attempts deletion of every active
// mapping in parallel, aggregating failures (spec §4.8).
func (m *Manager) Close() error {
	m.cancel()
	m.scheduler.close()

	mappings := m.registry.Snapshot()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, mapping := range mappings {
		entry, ok := m.registry.EvictKey(keyFor(mapping))
		if !ok {
			continue
		}
		wg.Add(1)
		go func(entry *registryEntry) {
			defer wg.Done()
			if err := entry.adapter.DeleteMapping(context.Background(), entry.mapping); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s %s:%d: %w", entry.adapter.Protocol(), entry.mapping.ExternalIP, entry.mapping.ExternalPort, err))
				mu.Unlock()
			}
		}(entry)
	}
	wg.Wait()

	return errors.Join(errs...)
}

func parseOrNil(s string) net.IP {
	if s == "" {
		return nil
	}
	return net.ParseIP(s)
}
