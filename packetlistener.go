package natmapper

import (
	"context"
	"fmt"
	"net"
)

// ListenPacket creates a UDP packet listener with NAT traversal on the
// specified port. This is a convenience wrapper around ListenPacketContext
// using context.Background().
func ListenPacket(port int) (*NATPacketListener, error) {
	return ListenPacketContext(context.Background(), port)
}

// ListenPacketContext creates a UDP packet listener with NAT traversal on
// the specified port, backed by a Manager that keeps the mapping alive for
// the life of the listener.
func ListenPacketContext(ctx context.Context, port int) (*NATPacketListener, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled before starting: %w", err)
	}

	manager := NewManagerContext(context.Background())

	extPort := uint16(port)
	mapping, err := manager.AddMapping(ctx, UDP, extPort, extPort, 0)
	if err != nil {
		manager.Close()
		return nil, fmt.Errorf("failed to create port mapping: %w", err)
	}

	conn, err := net.ListenPacket("udp", fmt.Sprintf(":%d", port))
	if err != nil {
		manager.Close()
		return nil, fmt.Errorf("failed to create packet conn: %w", err)
	}

	if err := ctx.Err(); err != nil {
		conn.Close()
		manager.Close()
		return nil, fmt.Errorf("context cancelled after connection creation: %w", err)
	}

	packetListener := &NATPacketListener{
		conn:    conn,
		manager: manager,
		addr: NewNATAddr("udp", conn.LocalAddr().String(),
			fmt.Sprintf("%s:%d", mapping.ExternalIP, mapping.ExternalPort)),
	}

	manager.OnMapping(func(m *Mapping) {
		if m.InternalPort == extPort {
			packetListener.updateAddr(m)
		}
	})

	return packetListener, nil
}
