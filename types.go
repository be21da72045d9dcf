// Package natmapper establishes and maintains inbound port mappings on
// consumer-grade NAT gateways, speaking NAT-PMP, PCP, and UPnP IGD through a
// pluggable adapter layer, and keeps them alive as leases expire or the host
// roams between networks.
package natmapper

import (
	"context"
	"net"
	"time"
)

// Protocol identifies which gateway-side protocol produced a Mapping.
type Protocol int

const (
	PMP Protocol = iota
	PCP
	UPNP
)

func (p Protocol) String() string {
	switch p {
	case PMP:
		return "PMP"
	case PCP:
		return "PCP"
	case UPNP:
		return "UPNP"
	default:
		return "UNKNOWN"
	}
}

// Transport is the IP transport a mapping forwards. NAT-PMP, PCP, and UPnP
// all carry an explicit transport field on the wire (spec §4.5's protocol
// byte, UPnP's NewProtocol argument), so the adapter needs to know which one
// the caller actually wants forwarded instead of assuming UDP for every
// listener the convenience layer opens.
type Transport string

const (
	TCP Transport = "tcp"
	UDP Transport = "udp"
)

// Mapping is the unit of state for one established (or attempted) port
// mapping. See spec §3.
type Mapping struct {
	Protocol  Protocol
	Transport Transport

	InternalPort uint16
	ExternalPort uint16 // 0 means "not established"

	InternalIP net.IP // chosen by longest-prefix match against RouterIP
	ExternalIP net.IP // present when the protocol reveals it
	RouterIP   net.IP // the gateway that granted the mapping

	Lifetime          time.Duration // actual lease granted by the gateway
	RequestedLifetime time.Duration // what the caller asked for

	Nonce []byte // 12-byte PCP mapping nonce; nil for PMP/UPnP

	ErrorInfo error // last failure reason, for diagnostics
}

// Clone returns a copy safe to hand to callers outside the registry's lock.
func (m *Mapping) Clone() *Mapping {
	if m == nil {
		return nil
	}
	c := *m
	if m.Nonce != nil {
		c.Nonce = append([]byte(nil), m.Nonce...)
	}
	return &c
}

// Adapter is the common shape every NAT-protocol implementation satisfies.
// See spec §4.1. A single Adapter instance is stateless across gateways: one
// call always targets exactly one candidate routerIP.
type Adapter interface {
	// Protocol identifies which wire protocol this adapter speaks.
	Protocol() Protocol

	// Probe attempts a throwaway mapping on the adapter's well-known probe
	// port to decide whether the protocol is usable against routerIP.
	Probe(ctx context.Context, routerIP net.IP, privateIPs []net.IP) bool

	// CreateMapping performs one attempt against one candidate gateway.
	// transport selects which protocol the mapping forwards (NAT-PMP's
	// protocol string, PCP's protocol byte, UPnP's NewProtocol argument).
	// extPort == 0 requests "any external port" (PMP/PCP only; UPnP does
	// not honor this and fails the attempt). lifetime == 0 means "treat as
	// 24h and refresh indefinitely" for PMP/PCP, normalized to 86400 seconds
	// on the wire; for UPnP it instead means a permanent static mapping that
	// the renewal scheduler never rearms.
	CreateMapping(ctx context.Context, routerIP net.IP, privateIPs []net.IP, transport Transport, intPort, extPort uint16, lifetime time.Duration) (*Mapping, error)

	// DeleteMapping removes one prior mapping.
	DeleteMapping(ctx context.Context, m *Mapping) error
}

// ExternalIPQuerier is implemented by adapters whose CreateMapping
// response does not itself reveal the external IP (PMP, UPnP — spec §3
// says it "is queried separately" for those two, always present for PCP).
// The manager calls this once after a successful CreateMapping to populate
// the registry key.
type ExternalIPQuerier interface {
	QueryExternalIP(ctx context.Context, routerIP net.IP) (net.IP, error)
}

// NetworkProbe is the external collaborator the core consumes for interface
// and public-IP facts. See spec §6.
type NetworkProbe interface {
	// PrivateIPs returns the set of private IPv4 addresses bound to local
	// interfaces.
	PrivateIPs() ([]net.IP, error)

	// GatewayIP returns the active default gateway.
	GatewayIP() (net.IP, error)

	// PublicIP returns the current public (external-facing) IPv4 address.
	PublicIP(ctx context.Context) (net.IP, error)
}
