package natmapper

import (
	"context"
	"fmt"
	"net"
)

// Listen creates a TCP listener with NAT traversal on the specified port.
// This is a convenience wrapper around ListenContext using context.Background().
func Listen(port int) (*NATListener, error) {
	return ListenContext(context.Background(), port)
}

// ListenContext creates a TCP listener with NAT traversal on the specified
// port, backed by a Manager that keeps the mapping alive for the life of the
// listener.
func ListenContext(ctx context.Context, port int) (*NATListener, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled before starting: %w", err)
	}

	manager := NewManagerContext(context.Background())

	extPort := uint16(port)
	mapping, err := manager.AddMapping(ctx, TCP, extPort, extPort, 0)
	if err != nil {
		manager.Close()
		return nil, fmt.Errorf("failed to create port mapping: %w", err)
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		manager.Close()
		return nil, fmt.Errorf("failed to create listener: %w", err)
	}

	if err := ctx.Err(); err != nil {
		listener.Close()
		manager.Close()
		return nil, fmt.Errorf("context cancelled after listener creation: %w", err)
	}

	natListener := &NATListener{
		listener: listener,
		manager:  manager,
		addr: NewNATAddr("tcp", listener.Addr().String(),
			fmt.Sprintf("%s:%d", mapping.ExternalIP, mapping.ExternalPort)),
	}

	manager.OnMapping(func(m *Mapping) {
		if m.InternalPort == extPort {
			natListener.updateAddr(m)
		}
	})

	return natListener, nil
}
