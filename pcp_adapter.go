package natmapper

import (
	"context"
	"fmt"
	"net"
	"time"
)

// pcpAdapter implements Adapter using PCP (RFC 6887), spec §4.5. Unlike PMP
// and UPnP there is no library anywhere in the retrieval pack that speaks
// PCP, so this adapter drives the hand-rolled codec in pcp_codec.go directly
// over a UDP socket.
type pcpAdapter struct{}

func newPCPAdapter() *pcpAdapter { return &pcpAdapter{} }

func (a *pcpAdapter) Protocol() Protocol { return PCP }

func (a *pcpAdapter) Probe(ctx context.Context, routerIP net.IP, privateIPs []net.IP) bool {
	resp, _, err := a.request(ctx, routerIP, privateIPs, UDP, probePortPCP, probePortPCP, 60*time.Second, nil)
	return err == nil && resp.resultCode == pcpSuccess
}

func (a *pcpAdapter) CreateMapping(ctx context.Context, routerIP net.IP, privateIPs []net.IP, transport Transport, intPort, extPort uint16, lifetime time.Duration) (*Mapping, error) {
	wireLifetime := lifetime
	if wireLifetime == 0 {
		wireLifetime = wildcardLifetime
	}

	resp, nonce, err := a.request(ctx, routerIP, privateIPs, transport, intPort, extPort, wireLifetime, nil)
	if err != nil {
		return nil, err
	}
	if resp.resultCode != pcpSuccess {
		return nil, fmt.Errorf("PCP mapping to %s failed: result code %d", routerIP, resp.resultCode)
	}

	internalIP, _ := chooseByPrefix(privateIPs, routerIP)

	return &Mapping{
		Protocol:          PCP,
		Transport:         transport,
		InternalPort:      intPort,
		ExternalPort:      resp.externalPort,
		InternalIP:        internalIP,
		ExternalIP:        resp.externalIP,
		RouterIP:          routerIP,
		Lifetime:          time.Duration(resp.lifetime) * time.Second,
		RequestedLifetime: lifetime,
		Nonce:             append([]byte(nil), nonce[:]...),
	}, nil
}

func (a *pcpAdapter) DeleteMapping(ctx context.Context, m *Mapping) error {
	var nonce [pcpNonceSize]byte
	copy(nonce[:], m.Nonce)

	// Deletion is a MAP request with lifetime 0, the original nonce, and the
	// original protocol byte (spec §4.5) — RFC 6887 keys a mapping on the
	// (protocol, internal port, client IP) triple as well as the nonce, so
	// a mismatched protocol byte here would not identify the same mapping.
	// A NO_RESOURCES result is treated as a successful deletion: the
	// gateway has already forgotten the mapping.
	resp, _, err := a.request(ctx, m.RouterIP, []net.IP{m.InternalIP}, m.Transport, m.InternalPort, m.ExternalPort, 0, &nonce)
	if err != nil {
		return fmt.Errorf("PCP unmap on %s failed: %w", m.RouterIP, err)
	}
	if resp.resultCode != pcpSuccess && resp.resultCode != pcpNoResources {
		return fmt.Errorf("PCP unmap on %s: result code %d", m.RouterIP, resp.resultCode)
	}
	return nil
}

// request performs one PCP MAP request/response exchange. A nil existingNonce
// generates a fresh nonce for a create/probe attempt; a non-nil one reuses a
// prior mapping's nonce for deletion.
func (a *pcpAdapter) request(ctx context.Context, routerIP net.IP, privateIPs []net.IP, transport Transport, intPort, extPort uint16, lifetime time.Duration, existingNonce *[pcpNonceSize]byte) (pcpMapResponse, [pcpNonceSize]byte, error) {
	var nonce [pcpNonceSize]byte
	if existingNonce != nil {
		nonce = *existingNonce
	} else {
		var err error
		nonce, err = newPCPNonce()
		if err != nil {
			return pcpMapResponse{}, nonce, err
		}
	}

	clientIP, _ := chooseByPrefix(privateIPs, routerIP)
	if clientIP == nil {
		clientIP = net.IPv4zero
	}

	protocol := byte(pcpProtoUDP)
	if transport == TCP {
		protocol = pcpProtoTCP
	}

	req := pcpMapRequest{
		lifetime:              uint32(lifetime.Seconds()),
		clientIP:              clientIP,
		nonce:                 nonce,
		protocol:              protocol,
		internalPort:          intPort,
		suggestedExternalPort: extPort,
		suggestedExternalIP:   net.IPv4zero,
	}

	deadline := time.Now().Add(pcpTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}

	conn, err := net.DialUDP("udp4", nil, &net.UDPAddr{IP: routerIP, Port: pmpPcpPort})
	if err != nil {
		return pcpMapResponse{}, nonce, fmt.Errorf("PCP dial %s failed: %w", routerIP, err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(deadline); err != nil {
		return pcpMapResponse{}, nonce, fmt.Errorf("PCP set deadline failed: %w", err)
	}

	if _, err := conn.Write(req.encode()); err != nil {
		return pcpMapResponse{}, nonce, fmt.Errorf("PCP write to %s failed: %w", routerIP, err)
	}

	buf := make([]byte, pcpResponseSize)
	n, err := conn.Read(buf)
	if err != nil {
		return pcpMapResponse{}, nonce, fmt.Errorf("PCP read from %s failed: %w", routerIP, err)
	}

	resp, err := decodePCPResponse(buf[:n])
	if err != nil {
		return pcpMapResponse{}, nonce, err
	}

	return resp, nonce, nil
}
