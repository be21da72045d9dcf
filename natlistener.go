package natmapper

import (
	"fmt"
	"net"
	"sync"
)

// NATListener implements net.Listener with automatic NAT traversal, keeping
// its port mapping alive via a Manager for as long as the listener is open.
type NATListener struct {
	listener net.Listener
	manager  *Manager
	addr     *NATAddr
	closed   bool
	mu       sync.Mutex
}

// Accept waits for and returns the next connection to the listener.
func (l *NATListener) Accept() (net.Conn, error) {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()

	if closed {
		return nil, fmt.Errorf("listener closed")
	}

	conn, err := l.listener.Accept()
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	addr := l.addr
	l.mu.Unlock()

	return &NATConn{
		Conn:       conn,
		localAddr:  addr,
		remoteAddr: conn.RemoteAddr(),
	}, nil
}

// Close closes the listener and tears down its port mapping.
func (l *NATListener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	closeErr := l.listener.Close()
	if err := l.manager.Close(); err != nil {
		if closeErr == nil {
			return err
		}
	}
	return closeErr
}

// Addr returns the listener's network address.
func (l *NATListener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.addr
}

// updateAddr refreshes the reported external address when the manager
// renews the mapping onto a different external port or IP.
func (l *NATListener) updateAddr(m *Mapping) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.addr = NewNATAddr("tcp", l.addr.InternalAddr(), fmt.Sprintf("%s:%d", m.ExternalIP, m.ExternalPort))
}
