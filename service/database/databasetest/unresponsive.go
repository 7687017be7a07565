package databasetest

import (
	"net"
	"sync"
)

// Unresponsive accepts TCP connections and never writes a byte back, like a database stuck before the handshake.
type Unresponsive struct {
	ln net.Listener

	mu    sync.Mutex
	conns []net.Conn
}

// NewUnresponsive starts listening on an ephemeral local port.
func NewUnresponsive() (*Unresponsive, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	u := &Unresponsive{ln: ln}
	go u.accept()
	return u, nil
}

func (u *Unresponsive) accept() {
	for {
		conn, err := u.ln.Accept()
		if err != nil {
			return
		}
		u.mu.Lock()
		u.conns = append(u.conns, conn)
		u.mu.Unlock()
	}
}

// URL returns the listener address in host:port form.
func (u *Unresponsive) URL() string {
	return u.ln.Addr().String()
}

// Close stops listening and drops every accepted connection.
func (u *Unresponsive) Close() {
	_ = u.ln.Close()
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, conn := range u.conns {
		_ = conn.Close()
	}
	u.conns = nil
}
