package connpool

import (
	"bufio"
	stderrors "errors"
	"net"
	"os"
	"time"

	"github.com/google/uuid"
)

// Handle is a pooled connection. It is owned by the pool while idle and by a
// single caller while leased.
type Handle struct {
	id      uuid.UUID
	key     RouteKey
	conn    net.Conn
	reader  *bufio.Reader
	created time.Time

	// guarded by the owning bucket's mutex
	leased   bool
	lastUsed time.Time
}

func newHandle(key RouteKey, conn net.Conn, now time.Time) *Handle {
	return &Handle{
		id:       uuid.New(),
		key:      key,
		conn:     conn,
		reader:   bufio.NewReader(conn),
		created:  now,
		lastUsed: now,
		leased:   true,
	}
}

// ID returns the handle's unique id
func (h *Handle) ID() uuid.UUID {
	return h.id
}

// Key returns the route key the handle was created for
func (h *Handle) Key() RouteKey {
	return h.key
}

// Conn returns the underlying connection
func (h *Handle) Conn() net.Conn {
	return h.conn
}

// Reader returns the buffered reader bound to the connection. Callers must read
// responses through it so buffered bytes survive reuse.
func (h *Handle) Reader() *bufio.Reader {
	return h.reader
}

// CreatedAt returns when the connection was registered
func (h *Handle) CreatedAt() time.Time {
	return h.created
}

func (h *Handle) expired(now time.Time, idleTimeout, maxLifetime time.Duration) bool {
	if idleTimeout > 0 && now.Sub(h.lastUsed) > idleTimeout {
		return true
	}
	return maxLifetime > 0 && now.Sub(h.created) > maxLifetime
}

// stale reports whether the peer closed the connection or left unread bytes on
// it. It blocks for at most probe.
func (h *Handle) stale(probe time.Duration) bool {
	if h.reader.Buffered() > 0 {
		return true
	}
	if err := h.conn.SetReadDeadline(time.Now().Add(probe)); err != nil {
		return true
	}
	defer h.conn.SetReadDeadline(time.Time{})

	_, err := h.reader.Peek(1)
	if err == nil {
		return true
	}
	return !stderrors.Is(err, os.ErrDeadlineExceeded)
}

func (h *Handle) close() {
	_ = h.conn.Close()
}
