package natmapper

import (
	"fmt"
	"net"
	"sync"
)

// NATPacketListener implements a packet listener with NAT traversal, keeping
// its port mapping alive via a Manager for as long as the listener is open.
type NATPacketListener struct {
	conn    net.PacketConn
	manager *Manager
	addr    *NATAddr
	closed  bool
	mu      sync.Mutex
}

// Accept returns a packet connection (satisfies a hypothetical net.PacketListener interface).
func (l *NATPacketListener) Accept() (net.PacketConn, error) {
	l.mu.Lock()
	closed := l.closed
	addr := l.addr
	l.mu.Unlock()

	if closed {
		return nil, fmt.Errorf("packet listener closed")
	}

	return &NATPacketConn{
		PacketConn: l.conn,
		localAddr:  addr,
	}, nil
}

// Close closes the packet listener and tears down its port mapping.
func (l *NATPacketListener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	closeErr := l.conn.Close()
	if err := l.manager.Close(); err != nil {
		if closeErr == nil {
			return err
		}
	}
	return closeErr
}

// Addr returns the listener's network address.
func (l *NATPacketListener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.addr
}

// PacketConn returns the underlying packet connection.
func (l *NATPacketListener) PacketConn() net.PacketConn {
	l.mu.Lock()
	defer l.mu.Unlock()
	return &NATPacketConn{
		PacketConn: l.conn,
		localAddr:  l.addr,
	}
}

// updateAddr refreshes the reported external address when the manager
// renews the mapping onto a different external port or IP.
func (l *NATPacketListener) updateAddr(m *Mapping) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.addr = NewNATAddr("udp", l.addr.InternalAddr(), fmt.Sprintf("%s:%d", m.ExternalIP, m.ExternalPort))
}
