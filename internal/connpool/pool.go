// Package connpool routes outbound calls to pooled connections keyed by RouteKey.
//
// Every key owns a bucket holding idle handles and a leased count. A bucket has
// its own mutex, so work on one route never waits on another; the index of
// buckets is guarded by a read-write mutex that is only taken to find or create
// a bucket. For every key, leased + idle never exceeds Config.MaxPerRoute, and
// an idle handle is handed to exactly one caller.
//
// Acquire either returns a reusable handle or a provisional lease telling the
// caller to dial. The caller must then report the outcome with Connected or
// Abort, otherwise the lease counts against the cap forever:
//
//	lease, err := pool.Acquire(key)
//	if err != nil {
//		return err // retryable when the route is exhausted
//	}
//	h := lease.Handle
//	if lease.MustConnect {
//		conn, err := dial(key)
//		if err != nil {
//			pool.Abort(key)
//			return err
//		}
//		h, _ = pool.Connected(key, conn)
//	}
//	defer pool.Release(key, h, reusable)
//
// Connector wraps this sequence with a per-route circuit breaker.
package connpool

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"mediation-router/internal/common/errors"
	"mediation-router/internal/common/logging"
)

// Config bounds the pool
type Config struct {
	// MaxPerRoute caps leased plus idle connections per route key
	MaxPerRoute int
	// IdleTimeout is how long an idle connection stays reusable
	IdleTimeout time.Duration
	// MaxLifetime caps a connection's age; zero disables the check
	MaxLifetime time.Duration
	// StaleProbe is how long Acquire waits when probing an idle connection for a
	// peer close; zero disables probing
	StaleProbe time.Duration
}

// DefaultConfig returns the pool defaults
func DefaultConfig() Config {
	return Config{
		MaxPerRoute: 32,
		IdleTimeout: 60 * time.Second,
		MaxLifetime: 10 * time.Minute,
		StaleProbe:  time.Millisecond,
	}
}

// Lease is the result of Acquire: either a reusable handle or a provisional
// lease with MustConnect set
type Lease struct {
	Handle      *Handle
	MustConnect bool
}

// Stats describes one route key's bucket
type Stats struct {
	Key    string `json:"key"`
	Leased int    `json:"leased"`
	Idle   int    `json:"idle"`
	Max    int    `json:"max"`
}

// Observer is notified about acquisitions, with result one of "reused",
// "connect" or "exhausted"
type Observer interface {
	ObserveAcquire(result string)
}

type bucket struct {
	mu          sync.Mutex
	idle        []*Handle
	leased      int
	provisional int
	removed     bool
}

// Pool is the connection router
type Pool struct {
	config   Config
	logger   logging.Logger
	observer Observer
	now      func() time.Time

	mu      sync.RWMutex
	buckets map[RouteKey]*bucket
	closed  atomic.Bool
}

// Option configures a Pool
type Option func(*Pool)

// WithObserver registers an acquisition observer
func WithObserver(observer Observer) Option {
	return func(p *Pool) {
		p.observer = observer
	}
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(p *Pool) {
		p.now = now
	}
}

// New creates a pool. A non-positive MaxPerRoute falls back to the default.
func New(config Config, logger logging.Logger, opts ...Option) *Pool {
	if config.MaxPerRoute <= 0 {
		config.MaxPerRoute = DefaultConfig().MaxPerRoute
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	p := &Pool{
		config:  config,
		logger:  logger.WithFields(logging.Field{Key: "component", Value: "connpool"}),
		now:     time.Now,
		buckets: make(map[RouteKey]*bucket),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// MaxPerRoute returns the per-key cap
func (p *Pool) MaxPerRoute() int {
	return p.config.MaxPerRoute
}

// Acquire returns the most recently released valid idle handle for key, or a
// provisional lease with MustConnect set when the key is below its cap. At the
// cap it returns a retryable exhausted error wrapping ErrPoolExhausted. Invalid
// idle handles found on the way are closed and dropped.
func (p *Pool) Acquire(key RouteKey) (Lease, error) {
	for {
		if p.closed.Load() {
			return Lease{}, ErrPoolClosed
		}
		b := p.bucketFor(key)

		b.mu.Lock()
		if b.removed {
			b.mu.Unlock()
			continue
		}

		if n := len(b.idle); n > 0 {
			h := b.idle[n-1]
			b.idle[n-1] = nil
			b.idle = b.idle[:n-1]
			h.leased = true
			b.leased++
			b.mu.Unlock()

			if p.usable(h) {
				b.mu.Lock()
				h.lastUsed = p.now()
				b.mu.Unlock()
				p.observe("reused")
				return Lease{Handle: h}, nil
			}

			p.logger.Debug("Dropping invalid idle connection",
				logging.String("route", key.String()),
				logging.String("handle", h.id.String()),
			)
			h.close()
			b.mu.Lock()
			h.leased = false
			b.leased--
			b.mu.Unlock()
			continue
		}

		if b.leased+len(b.idle) < p.config.MaxPerRoute {
			b.leased++
			b.provisional++
			b.mu.Unlock()
			p.observe("connect")
			return Lease{MustConnect: true}, nil
		}

		leased := b.leased
		b.mu.Unlock()
		p.observe("exhausted")
		return Lease{}, errors.ExhaustedError("connection pool").
			WithCause(ErrPoolExhausted).
			WithContext("route", key.String()).
			WithContext("leased", leased)
	}
}

// Connected registers a freshly dialled connection under a provisional lease
// obtained from Acquire. The returned handle is leased to the caller.
func (p *Pool) Connected(key RouteKey, conn net.Conn) (*Handle, error) {
	b := p.existingBucket(key)
	if b == nil {
		return nil, ErrNoProvisionalLease
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.provisional == 0 {
		return nil, ErrNoProvisionalLease
	}
	b.provisional--
	return newHandle(key, conn, p.now()), nil
}

// Abort gives back a provisional lease after a failed or timed out connect
func (p *Pool) Abort(key RouteKey) error {
	b := p.existingBucket(key)
	if b == nil {
		return ErrNoProvisionalLease
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.provisional == 0 {
		return ErrNoProvisionalLease
	}
	b.provisional--
	b.leased--
	return nil
}

// Release returns a leased handle. It goes back to the idle set only when
// reusable is true, the pool is open and the connection is within its
// lifetime; otherwise it is closed. The leased count is always decremented.
func (p *Pool) Release(key RouteKey, h *Handle, reusable bool) error {
	if h == nil {
		return ErrHandleNotLeased
	}
	if h.key != key {
		return fmt.Errorf("%w: handle %s belongs to %s, released under %s",
			ErrForeignHandle, h.id, h.key, key)
	}

	b := p.existingBucket(key)
	if b == nil {
		return ErrHandleNotLeased
	}

	now := p.now()
	b.mu.Lock()
	if !h.leased {
		b.mu.Unlock()
		return ErrHandleNotLeased
	}
	h.leased = false
	h.lastUsed = now
	b.leased--

	keep := reusable && !p.closed.Load() &&
		!h.expired(now, p.config.IdleTimeout, p.config.MaxLifetime)
	if keep {
		b.idle = append(b.idle, h)
	}
	b.mu.Unlock()

	if !keep {
		h.close()
	}
	return nil
}

// Stats returns the counts for key
func (p *Pool) Stats(key RouteKey) Stats {
	stats := Stats{Key: key.String(), Max: p.config.MaxPerRoute}
	if b := p.existingBucket(key); b != nil {
		b.mu.Lock()
		stats.Leased = b.leased
		stats.Idle = len(b.idle)
		b.mu.Unlock()
	}
	return stats
}

// AllStats returns the counts for every key with a bucket
func (p *Pool) AllStats() []Stats {
	p.mu.RLock()
	keys := make([]RouteKey, 0, len(p.buckets))
	for key := range p.buckets {
		keys = append(keys, key)
	}
	p.mu.RUnlock()

	stats := make([]Stats, 0, len(keys))
	for _, key := range keys {
		stats = append(stats, p.Stats(key))
	}
	return stats
}

// Totals returns leased and idle counts summed over every key
func (p *Pool) Totals() (leased, idle int) {
	for _, s := range p.AllStats() {
		leased += s.Leased
		idle += s.Idle
	}
	return leased, idle
}

// EvictIdle closes idle connections past their idle timeout or lifetime and
// forgets buckets left empty. It returns the number of connections closed.
func (p *Pool) EvictIdle() int {
	now := p.now()

	p.mu.Lock()
	defer p.mu.Unlock()

	var evicted []*Handle
	for key, b := range p.buckets {
		b.mu.Lock()
		kept := b.idle[:0]
		for _, h := range b.idle {
			if h.expired(now, p.config.IdleTimeout, p.config.MaxLifetime) {
				evicted = append(evicted, h)
				continue
			}
			kept = append(kept, h)
		}
		for i := len(kept); i < len(b.idle); i++ {
			b.idle[i] = nil
		}
		b.idle = kept

		if b.leased == 0 && len(b.idle) == 0 {
			b.removed = true
			delete(p.buckets, key)
		}
		b.mu.Unlock()
	}

	for _, h := range evicted {
		h.close()
	}
	if len(evicted) > 0 {
		p.logger.Debug("Evicted idle connections", logging.Int("count", len(evicted)))
	}
	return len(evicted)
}

// Close closes every idle connection and makes later acquisitions fail.
// Leased handles are closed when released.
func (p *Pool) Close() error {
	if p.closed.Swap(true) {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	closed := 0
	for _, b := range p.buckets {
		b.mu.Lock()
		for _, h := range b.idle {
			h.close()
			closed++
		}
		b.idle = nil
		b.mu.Unlock()
	}
	p.logger.Info("Connection pool closed", logging.Int("idle_closed", closed))
	return nil
}

func (p *Pool) bucketFor(key RouteKey) *bucket {
	if b := p.existingBucket(key); b != nil {
		return b
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if b, ok := p.buckets[key]; ok {
		return b
	}
	b := &bucket{}
	p.buckets[key] = b
	return b
}

func (p *Pool) existingBucket(key RouteKey) *bucket {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.buckets[key]
}

func (p *Pool) usable(h *Handle) bool {
	if h.expired(p.now(), p.config.IdleTimeout, p.config.MaxLifetime) {
		return false
	}
	if p.config.StaleProbe > 0 && h.stale(p.config.StaleProbe) {
		return false
	}
	return true
}

func (p *Pool) observe(result string) {
	if p.observer != nil {
		p.observer.ObserveAcquire(result)
	}
}
