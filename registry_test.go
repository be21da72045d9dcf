package natmapper

import (
	"net"
	"testing"
)

func TestRegistryInsertLookupEvict(t *testing.T) {
	r := newRegistry()
	m := &Mapping{
		Protocol:     PMP,
		ExternalIP:   net.ParseIP("1.2.3.4"),
		ExternalPort: 5000,
	}

	r.Insert(m, nil)

	entry, ok := r.Lookup(net.ParseIP("1.2.3.4"), 5000)
	if !ok {
		t.Fatal("expected lookup to find inserted mapping")
	}
	if entry.mapping.ExternalPort != 5000 {
		t.Errorf("got external port %d, want 5000", entry.mapping.ExternalPort)
	}

	if _, ok := r.Evict(net.ParseIP("1.2.3.4"), 5000); !ok {
		t.Fatal("expected evict to find the entry")
	}

	if _, ok := r.Lookup(net.ParseIP("1.2.3.4"), 5000); ok {
		t.Error("expected entry to be gone after evict")
	}
}

func TestRegistryUniqueByExternalIdentity(t *testing.T) {
	r := newRegistry()

	m1 := &Mapping{ExternalIP: net.ParseIP("1.2.3.4"), ExternalPort: 5000}
	m2 := &Mapping{ExternalIP: net.ParseIP("5.6.7.8"), ExternalPort: 5000}

	r.Insert(m1, nil)
	r.Insert(m2, nil)

	if r.Len() != 2 {
		t.Fatalf("expected two distinct entries for the same port under different external IPs, got %d", r.Len())
	}
}

func TestRegistrySnapshotIsCopy(t *testing.T) {
	r := newRegistry()
	m := &Mapping{ExternalIP: net.ParseIP("1.2.3.4"), ExternalPort: 5000}
	r.Insert(m, nil)

	snap := r.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("expected 1 entry in snapshot, got %d", len(snap))
	}
	snap[0].ExternalPort = 9999

	entry, _ := r.Lookup(net.ParseIP("1.2.3.4"), 5000)
	if entry.mapping.ExternalPort != 5000 {
		t.Error("mutating a snapshot entry should not affect the registry")
	}
}
