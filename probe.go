package natmapper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// publicIPServices are queried in order; the first one to return a parseable
// IPv4 address wins. Modeled on dep2p-go-dep2p's HTTP IP discoverer, the
// pack's precedent for "public IP without STUN" (STUN is an explicit
// Non-goal here).
var publicIPServices = []string{
	"https://api.ipify.org",
	"https://ifconfig.me/ip",
	"https://icanhazip.com",
	"https://checkip.amazonaws.com",
}

// defaultProbe is the concrete NetworkProbe: private IPv4 enumeration via
// net.InterfaceAddrs, gateway discovery via the platform routing-table
// readers (falling back to the .1 heuristic), and public IP via a short
// chain of HTTPS IP-echo services.
type defaultProbe struct {
	httpClient *http.Client
	services   []string
}

// newDefaultProbe returns the NetworkProbe used when the caller does not
// supply their own.
func newDefaultProbe() *defaultProbe {
	return &defaultProbe{
		httpClient: &http.Client{Timeout: 5 * time.Second},
		services:   publicIPServices,
	}
}

// PrivateIPs returns every private IPv4 address bound to a local interface.
func (p *defaultProbe) PrivateIPs() ([]net.IP, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, fmt.Errorf("enumerate interface addresses: %w", err)
	}

	var out []net.IP
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		ip4 := ipNet.IP.To4()
		if ip4 == nil || ip4.IsLoopback() || !ip4.IsPrivate() {
			continue
		}
		out = append(out, ip4)
	}
	return out, nil
}

// GatewayIP returns the active default gateway, preferring the OS routing
// table and falling back to the .1-in-subnet heuristic.
func (p *defaultProbe) GatewayIP() (net.IP, error) {
	return discoverGateway()
}

// PublicIP queries the configured HTTPS IP-echo services in order,
// returning the first valid IPv4 response.
func (p *defaultProbe) PublicIP(ctx context.Context) (net.IP, error) {
	var lastErr error
	for _, service := range p.services {
		ip, err := p.queryService(ctx, service)
		if err != nil {
			lastErr = err
			continue
		}
		return ip, nil
	}
	if lastErr == nil {
		lastErr = errors.New("no public IP services configured")
	}
	return nil, fmt.Errorf("public IP discovery failed: %w", lastErr)
}

func (p *defaultProbe) queryService(ctx context.Context, service string) (net.IP, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, service, nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: status %d", service, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return nil, err
	}

	ip := net.ParseIP(strings.TrimSpace(string(body)))
	if ip == nil || ip.To4() == nil {
		return nil, fmt.Errorf("%s: invalid IP response", service)
	}
	return ip.To4(), nil
}
