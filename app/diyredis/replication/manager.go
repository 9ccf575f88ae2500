// Package replication implements both halves of this server's replication
// engine: the master-side replica registry and command fan-out, and the
// replica-side handshake FSM with backoff-reconnect. Neither half imports
// the command executor directly -- a master only ever re-serializes and
// forwards bytes it already produced for its own clients, and a replica
// applies incoming commands through the small Applier interface, so this
// package stays independent of command dispatch.
package replication

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"
)

// Manager is the master side: it tracks attached replica writers and keeps
// the replication offset in lock-step with what has actually been sent, so
// (keyspace state, offset) always advance together under the caller's lock.
type Manager struct {
	mu       sync.Mutex
	replID   string
	offset   int64
	replicas map[*Replica]struct{}
	log      zerolog.Logger
}

// Replica is one attached outbound-to-replica connection, from the master's
// point of view: just a place to write re-serialized commands.
type Replica struct {
	w    io.Writer
	addr string
}

func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		replID:   generateReplID(),
		replicas: make(map[*Replica]struct{}),
		log:      log,
	}
}

func generateReplID() string {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the platform RNG is broken; a
		// deterministic fallback id is preferable to crashing startup.
		return "0000000000000000000000000000000000000000"
	}
	return hex.EncodeToString(buf)
}

// ReplID returns the master's 40-hex replication id.
func (m *Manager) ReplID() string {
	return m.replID
}

// Offset returns the current replication offset.
func (m *Manager) Offset() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.offset
}

// Attach registers a new replica writer, returning a handle used later to
// Detach it. Call this once the outbound connection has sent its FULLRESYNC
// response and RDB bootstrap.
func (m *Manager) Attach(w io.Writer, addr string) *Replica {
	r := &Replica{w: w, addr: addr}
	m.mu.Lock()
	m.replicas[r] = struct{}{}
	m.mu.Unlock()
	m.log.Info().Str("addr", addr).Msg("replica attached")
	return r
}

// Detach removes a replica, e.g. after a write to it fails.
func (m *Manager) Detach(r *Replica) {
	m.mu.Lock()
	_, ok := m.replicas[r]
	delete(m.replicas, r)
	m.mu.Unlock()
	if ok {
		m.log.Warn().Str("addr", r.addr).Msg("replica detached")
	}
}

// Propagate fans encoded (an already-RESP-encoded command) out to every
// attached replica and advances the offset by its byte length, all under
// the same lock so a concurrent Attach/Offset call never observes a
// half-advanced state. With no replica attached nothing is sent and the
// offset stays where it is. A replica whose write fails is detached; fan-out
// continues to the rest (best-effort, never reorders the survivors).
func (m *Manager) Propagate(encoded []byte) {
	m.mu.Lock()
	if len(m.replicas) == 0 {
		m.mu.Unlock()
		return
	}
	m.offset += int64(len(encoded))
	var dead []*Replica
	for r := range m.replicas {
		if _, err := r.w.Write(encoded); err != nil {
			dead = append(dead, r)
		}
	}
	for _, r := range dead {
		delete(m.replicas, r)
	}
	m.mu.Unlock()

	for _, r := range dead {
		m.log.Warn().Str("addr", r.addr).Msg("replica write failed, detached")
	}
}

// ReplicaCount reports how many replicas are currently attached.
func (m *Manager) ReplicaCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.replicas)
}

// InfoReplication renders the body of INFO's replication section.
func (m *Manager) InfoReplication(isReplica bool) string {
	role := "master"
	if isReplica {
		role = "slave"
	}
	return fmt.Sprintf(
		"role:%s\r\nmaster_replid:%s\r\nmaster_repl_offset:%d\r\n",
		role, m.replID, m.Offset(),
	)
}
