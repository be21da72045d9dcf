package natmapper

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/huin/goupnp/dcps/internetgateway2"
)

// upnpClient is the operation surface shared by the WANIPConnection1,
// WANIPConnection2, and WANPPPConnection1 service clients goupnp generates
// (spec §4.6). Grounded on the teacher's upnpmapper.go, which defines the
// same interface against a single fixed client instead of one resolved per
// candidate gateway.
type upnpClient interface {
	AddPortMapping(NewRemoteHost string, NewExternalPort uint16, NewProtocol string, NewInternalPort uint16, NewInternalClient string, NewEnabled bool, NewPortMappingDescription string, NewLeaseDuration uint32) error
	DeletePortMapping(NewRemoteHost string, NewExternalPort uint16, NewProtocol string) error
	GetExternalIPAddress() (string, error)
}

// upnpAdapter implements Adapter using UPnP IGD. Each call resolves a fresh
// client for the candidate routerIP: SSDP discovery and device-description
// retrieval happen inside the goupnp constructors, and step three (the SOAP
// AddPortMapping/DeletePortMapping call) happens here.
type upnpAdapter struct{}

func newUPnPAdapter() *upnpAdapter { return &upnpAdapter{} }

func (a *upnpAdapter) Protocol() Protocol { return UPNP }

func (a *upnpAdapter) Probe(ctx context.Context, routerIP net.IP, privateIPs []net.IP) bool {
	client, err := a.resolveClient(ctx, routerIP)
	if err != nil {
		return false
	}

	internalIP, _ := chooseByPrefix(privateIPs, routerIP)
	if internalIP == nil {
		return false
	}

	// The probe is a capability check, not a real forwarding request, so it
	// always asks for UDP regardless of what the caller will eventually map.
	err = client.AddPortMapping("", probePortUPnP, "UDP", probePortUPnP, internalIP.String(), true, "natmapper probe", 60)
	if err == nil {
		return true
	}
	// A conflicting-entry fault still proves the gateway speaks UPnP and
	// answers SOAP calls; spec §9 treats it as a usable protocol, not a
	// probe failure.
	return isConflictingMappingError(err)
}

func (a *upnpAdapter) CreateMapping(ctx context.Context, routerIP net.IP, privateIPs []net.IP, transport Transport, intPort, extPort uint16, lifetime time.Duration) (*Mapping, error) {
	if extPort == 0 {
		return nil, fmt.Errorf("UPnP requires an explicit external port")
	}

	client, err := a.resolveClient(ctx, routerIP)
	if err != nil {
		return nil, fmt.Errorf("UPnP discovery against %s failed: %w", routerIP, err)
	}

	internalIP, ok := chooseByPrefix(privateIPs, routerIP)
	if !ok {
		return nil, fmt.Errorf("no private address routable to %s", routerIP)
	}

	// A lifetime of 0 goes on the wire as a lease duration of 0, which the
	// IGD treats as a permanent static mapping.
	err = client.AddPortMapping("", extPort, upnpProtocolName(transport), intPort, internalIP.String(), true, "natmapper", uint32(lifetime.Seconds()))
	if err != nil {
		return nil, fmt.Errorf("UPnP mapping to %s failed: %w", routerIP, err)
	}

	return &Mapping{
		Protocol:          UPNP,
		Transport:         transport,
		InternalPort:      intPort,
		ExternalPort:      extPort,
		InternalIP:        internalIP,
		RouterIP:          routerIP,
		Lifetime:          lifetime,
		RequestedLifetime: lifetime,
	}, nil
}

func (a *upnpAdapter) DeleteMapping(ctx context.Context, m *Mapping) error {
	client, err := a.resolveClient(ctx, m.RouterIP)
	if err != nil {
		return fmt.Errorf("UPnP discovery against %s failed: %w", m.RouterIP, err)
	}

	if err := client.DeletePortMapping("", m.ExternalPort, upnpProtocolName(m.Transport)); err != nil {
		return fmt.Errorf("UPnP unmap on %s failed: %w", m.RouterIP, err)
	}
	return nil
}

// upnpProtocolName renders a Transport as the NewProtocol value UPnP IGD
// SOAP calls expect ("TCP" or "UDP"), defaulting to UDP for the zero value.
func upnpProtocolName(transport Transport) string {
	if transport == TCP {
		return "TCP"
	}
	return "UDP"
}

// QueryExternalIP implements ExternalIPQuerier (spec §3: UPnP does not
// reveal the external IP in its mapping response, it must be queried
// separately).
func (a *upnpAdapter) QueryExternalIP(ctx context.Context, routerIP net.IP) (net.IP, error) {
	client, err := a.resolveClient(ctx, routerIP)
	if err != nil {
		return nil, fmt.Errorf("UPnP discovery against %s failed: %w", routerIP, err)
	}

	raw, err := client.GetExternalIPAddress()
	if err != nil {
		return nil, fmt.Errorf("UPnP external IP query to %s failed: %w", routerIP, err)
	}

	ip := net.ParseIP(raw)
	if ip == nil {
		return nil, fmt.Errorf("UPnP external IP query to %s returned unparsable address %q", routerIP, raw)
	}
	return ip, nil
}

// resolveClient discovers the IGD WAN connection service hosted at routerIP,
// trying WANIPConnection2, WANIPConnection1, then WANPPPConnection1 in that
// order — the same preference order as the teacher's NewUPnPMapperContext.
// goupnp's discovery is a LAN-wide SSDP search; the candidate list is
// filtered down to the device whose location host matches routerIP.
func (a *upnpAdapter) resolveClient(ctx context.Context, routerIP net.IP) (upnpClient, error) {
	if ip2Clients, _, err := internetgateway2.NewWANIPConnection2ClientsCtx(ctx); err == nil {
		for _, c := range ip2Clients {
			if locationHost(c.Location) == routerIP.String() {
				return c, nil
			}
		}
	}

	if ip1Clients, _, err := internetgateway2.NewWANIPConnection1ClientsCtx(ctx); err == nil {
		for _, c := range ip1Clients {
			if locationHost(c.Location) == routerIP.String() {
				return c, nil
			}
		}
	}

	if pppClients, _, err := internetgateway2.NewWANPPPConnection1ClientsCtx(ctx); err == nil {
		for _, c := range pppClients {
			if locationHost(c.Location) == routerIP.String() {
				return c, nil
			}
		}
	}

	return nil, fmt.Errorf("no UPnP IGD service found at %s", routerIP)
}

func locationHost(loc *url.URL) string {
	if loc == nil {
		return ""
	}
	return loc.Hostname()
}

func isConflictingMappingError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "718") || strings.Contains(strings.ToLower(msg), "conflictinmappingentry")
}
