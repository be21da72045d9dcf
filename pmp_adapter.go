package natmapper

import (
	"context"
	"fmt"
	"net"
	"time"

	natpmp "github.com/jackpal/go-nat-pmp"
)

// pmpAdapter implements Adapter using NAT-PMP (RFC 6886). Grounded on the
// teacher's natpmpmapper.go, adapted from a fixed-gateway PortMapper to the
// per-candidate Adapter contract. AddPortMapping's protocol argument takes
// the caller's requested transport directly ("udp" or "tcp").
type pmpAdapter struct{}

func newPMPAdapter() *pmpAdapter { return &pmpAdapter{} }

func (a *pmpAdapter) Protocol() Protocol { return PMP }

func (a *pmpAdapter) Probe(ctx context.Context, routerIP net.IP, privateIPs []net.IP) bool {
	client := natpmp.NewClientWithTimeout(routerIP, pmpTimeout)
	_, err := client.AddPortMapping("udp", probePortPMP, probePortPMP, 60)
	return err == nil
}

func (a *pmpAdapter) CreateMapping(ctx context.Context, routerIP net.IP, privateIPs []net.IP, transport Transport, intPort, extPort uint16, lifetime time.Duration) (*Mapping, error) {
	client := natpmp.NewClientWithTimeout(routerIP, pmpTimeout)

	wireLifetime := lifetime
	if wireLifetime == 0 {
		wireLifetime = wildcardLifetime
	}

	result, err := client.AddPortMapping(string(transport), int(intPort), int(extPort), int(wireLifetime.Seconds()))
	if err != nil {
		return nil, fmt.Errorf("NAT-PMP mapping to %s failed: %w", routerIP, err)
	}

	internalIP, _ := chooseByPrefix(privateIPs, routerIP)

	return &Mapping{
		Protocol:          PMP,
		Transport:         transport,
		InternalPort:      result.InternalPort,
		ExternalPort:      result.MappedExternalPort,
		InternalIP:        internalIP,
		RouterIP:          routerIP,
		Lifetime:          time.Duration(result.PortMappingLifetimeInSeconds) * time.Second,
		RequestedLifetime: lifetime,
	}, nil
}

func (a *pmpAdapter) DeleteMapping(ctx context.Context, m *Mapping) error {
	client := natpmp.NewClientWithTimeout(m.RouterIP, pmpTimeout)
	// A lifetime of 0 deletes the mapping (RFC 6886 §3.4).
	_, err := client.AddPortMapping(string(m.Transport), int(m.InternalPort), 0, 0)
	if err != nil {
		return fmt.Errorf("NAT-PMP unmap on %s failed: %w", m.RouterIP, err)
	}
	return nil
}

// QueryExternalIP implements ExternalIPQuerier using NAT-PMP's own
// external-address opcode directly (spec §9 Open Question: never layered
// through a UPnP client).
func (a *pmpAdapter) QueryExternalIP(ctx context.Context, routerIP net.IP) (net.IP, error) {
	client := natpmp.NewClientWithTimeout(routerIP, pmpTimeout)
	result, err := client.GetExternalAddress()
	if err != nil {
		return nil, fmt.Errorf("NAT-PMP external address query to %s failed: %w", routerIP, err)
	}
	ip := result.ExternalIPAddress
	return net.IPv4(ip[0], ip[1], ip[2], ip[3]), nil
}
