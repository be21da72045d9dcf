package natmapper

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

// stubAdapter succeeds for a fixed set of router IPs and fails for
// everything else, recording which IPs it was asked to try.
type stubAdapter struct {
	succeedFor map[string]bool
	proto      Protocol
}

func (s *stubAdapter) Protocol() Protocol { return s.proto }

func (s *stubAdapter) Probe(ctx context.Context, routerIP net.IP, privateIPs []net.IP) bool {
	return s.succeedFor[routerIP.String()]
}

func (s *stubAdapter) CreateMapping(ctx context.Context, routerIP net.IP, privateIPs []net.IP, transport Transport, intPort, extPort uint16, lifetime time.Duration) (*Mapping, error) {
	if !s.succeedFor[routerIP.String()] {
		return nil, errors.New("stub: no response from " + routerIP.String())
	}
	return &Mapping{
		Protocol:     s.proto,
		Transport:    transport,
		InternalPort: intPort,
		ExternalPort: extPort,
		RouterIP:     routerIP,
		ExternalIP:   net.ParseIP("203.0.113.1"),
		Lifetime:     lifetime,
	}, nil
}

func (s *stubAdapter) DeleteMapping(ctx context.Context, m *Mapping) error { return nil }

func TestDispatchWaveCascade(t *testing.T) {
	// S2 — matched wave [10.0.0.1] fails, fallback [192.168.1.1] succeeds.
	adapter := &stubAdapter{succeedFor: map[string]bool{"192.168.1.1": true}}
	cache := newRouterCache()
	known := mustIPs("10.0.0.1", "192.168.1.1")
	privateIPs := mustIPs("10.0.0.5")

	m, err := dispatchCreateMapping(context.Background(), adapter, cache, known, privateIPs, UDP, 8080, 8080, time.Hour)
	if err != nil {
		t.Fatalf("dispatchCreateMapping() error = %v", err)
	}
	if !m.RouterIP.Equal(net.ParseIP("192.168.1.1")) {
		t.Errorf("got routerIP %v, want 192.168.1.1", m.RouterIP)
	}

	cached := cache.Snapshot()
	found := false
	for _, ip := range cached {
		if ip.Equal(net.ParseIP("192.168.1.1")) {
			found = true
		}
	}
	if !found {
		t.Error("expected successful candidate to be added to the router cache")
	}
}

func TestDispatchAllFail(t *testing.T) {
	adapter := &stubAdapter{succeedFor: map[string]bool{}}
	cache := newRouterCache()
	known := mustIPs("10.0.0.1", "192.168.1.1")

	_, err := dispatchCreateMapping(context.Background(), adapter, cache, known, nil, UDP, 8080, 8080, time.Hour)
	if err == nil {
		t.Fatal("expected error when every candidate fails")
	}
}

func TestMatchedWaveBeforeFallback(t *testing.T) {
	// The matched candidate always succeeds; trying the fallback candidate
	// would set calledFallback, so the flag staying false proves the
	// fallback wave never starts once the matched wave succeeds.
	calledFallback := false
	adapter := &recordingAdapter{
		onCreate: func(routerIP net.IP) (*Mapping, error) {
			if routerIP.Equal(net.ParseIP("192.168.1.1")) {
				return &Mapping{RouterIP: routerIP, ExternalIP: net.ParseIP("203.0.113.1")}, nil
			}
			calledFallback = true
			return nil, errors.New("should not be reached")
		},
	}
	cache := newRouterCache()
	cache.Add(net.ParseIP("192.168.1.1"))
	known := mustIPs("192.168.1.1", "10.0.0.1")

	_, err := dispatchCreateMapping(context.Background(), adapter, cache, known, nil, UDP, 80, 80, time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calledFallback {
		t.Error("fallback wave should not run once the matched wave succeeds")
	}
}

type recordingAdapter struct {
	onCreate func(net.IP) (*Mapping, error)
}

func (r *recordingAdapter) Protocol() Protocol { return PMP }
func (r *recordingAdapter) Probe(ctx context.Context, routerIP net.IP, privateIPs []net.IP) bool {
	return true
}
func (r *recordingAdapter) CreateMapping(ctx context.Context, routerIP net.IP, privateIPs []net.IP, transport Transport, intPort, extPort uint16, lifetime time.Duration) (*Mapping, error) {
	return r.onCreate(routerIP)
}
func (r *recordingAdapter) DeleteMapping(ctx context.Context, m *Mapping) error { return nil }
