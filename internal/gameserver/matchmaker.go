package gameserver

import (
	"net"
	"sync"
)

// Player is a connection waiting for an opponent. Ready is set when a
// session already read its init packet, Name then holds the name from it.
type Player struct {
	Conn  net.Conn
	Name  string
	Ready bool
}

// Matchmaker pairs players in arrival order. it holds at most one waiting
// player because every session consumes exactly two.
type Matchmaker struct {
	mu      sync.Mutex
	pending *Player

	start func(first, second *Player)
}

// NewMatchmaker returns a matchmaker that hands each pair to start. start is
// called outside of the matchmaker's lock and should not block for long.
func NewMatchmaker(start func(first, second *Player)) *Matchmaker {
	return &Matchmaker{start: start}
}

// OnConnect enqueues a freshly accepted connection. it reports whether a
// pair was started.
func (m *Matchmaker) OnConnect(conn net.Conn) bool {
	return m.Enqueue(&Player{Conn: conn})
}

// Enqueue either parks p in the pending slot or pairs it with the player
// already waiting there. it reports whether a pair was started.
func (m *Matchmaker) Enqueue(p *Player) bool {
	m.mu.Lock()
	first := m.pending
	if first == nil {
		m.pending = p
		m.mu.Unlock()
		return false
	}
	m.pending = nil
	m.mu.Unlock()

	m.start(first, p)
	return true
}

// Pending returns the waiting connection, if any.
func (m *Matchmaker) Pending() net.Conn {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil {
		return nil
	}
	return m.pending.Conn
}

// Forget clears the pending slot if it still holds conn. nothing was
// promised to a pending connection, so dropping it needs no notification.
func (m *Matchmaker) Forget(conn net.Conn) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil || m.pending.Conn != conn {
		return false
	}
	m.pending = nil
	return true
}
