package listener

import (
	"net"
	"sync"
)

// Registry tracks the connections currently being served, keyed by
// remote address string, so the admin control plane (internal/admin)
// can report status and force-close a specific session without the
// listener and the admin server sharing anything but this type.
type Registry struct {
	mu    sync.Mutex
	conns map[string]net.Conn
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]net.Conn)}
}

func (r *Registry) add(conn net.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[conn.RemoteAddr().String()] = conn
}

func (r *Registry) remove(conn net.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, conn.RemoteAddr().String())
}

// Count returns the number of currently tracked connections.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// Peers returns the remote addresses of every tracked connection.
func (r *Registry) Peers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	peers := make([]string, 0, len(r.conns))
	for addr := range r.conns {
		peers = append(peers, addr)
	}
	return peers
}

// Kill force-closes the connection registered under peerAddr, if any,
// reporting whether a matching session was found.
func (r *Registry) Kill(peerAddr string) bool {
	r.mu.Lock()
	conn, ok := r.conns[peerAddr]
	r.mu.Unlock()
	if !ok {
		return false
	}
	conn.Close()
	return true
}
