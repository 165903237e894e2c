package session

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmcleod/sessiongate/internal/logging"
)

const defaultSweepInterval = time.Minute

// maxTokenAttempts bounds the retry loop on the (practically impossible)
// event of a token collision.
const maxTokenAttempts = 3

// MemoryStore is a thread-safe in-memory Store. Sessions are lost on
// server restart.
type MemoryStore[T any] struct {
	mu   sync.RWMutex
	data map[string]*entry[T]

	idleTimeout   time.Duration
	sweepInterval time.Duration
	now           func() time.Time
	newToken      func() (string, error)
	logger        *slog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

var _ Store[struct{}] = (*MemoryStore[struct{}])(nil)

type entry[T any] struct {
	payload    T
	createdAt  time.Time
	lastAccess atomic.Int64 // unix nanoseconds
}

func (e *entry[T]) lastAccessed() time.Time {
	return time.Unix(0, e.lastAccess.Load())
}

// Option configures a MemoryStore.
type Option func(*options)

type options struct {
	idleTimeout   time.Duration
	sweepInterval time.Duration
	logger        *slog.Logger
}

// WithIdleTimeout expires sessions that have not been read for d.
// Zero (the default) disables inactivity expiry.
func WithIdleTimeout(d time.Duration) Option {
	return func(o *options) { o.idleTimeout = d }
}

// WithSweepInterval sets how often the background sweep looks for idle
// sessions. It only has an effect together with WithIdleTimeout.
func WithSweepInterval(d time.Duration) Option {
	return func(o *options) { o.sweepInterval = d }
}

// WithLogger sets the logger used by the background sweep.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New creates an in-memory session store. When an idle timeout is
// configured a background sweep is started; call Close to stop it.
func New[T any](opts ...Option) *MemoryStore[T] {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.sweepInterval <= 0 {
		o.sweepInterval = defaultSweepInterval
	}
	if o.logger == nil {
		o.logger = logging.Discard()
	}

	s := &MemoryStore[T]{
		data:          make(map[string]*entry[T]),
		idleTimeout:   o.idleTimeout,
		sweepInterval: o.sweepInterval,
		now:           time.Now,
		newToken:      NewToken,
		logger:        o.logger.With("component", "session"),
		stopCh:        make(chan struct{}),
	}
	if s.idleTimeout > 0 {
		s.wg.Add(1)
		go s.cleanupLoop()
	}
	return s
}

// Close stops the background sweep. It is safe to call more than once.
// Sessions remain readable after Close.
func (s *MemoryStore[T]) Close() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	s.wg.Wait()
}

func (s *MemoryStore[T]) Create(payload T) (string, error) {
	now := s.now()
	e := &entry[T]{payload: payload, createdAt: now}
	e.lastAccess.Store(now.UnixNano())

	for range maxTokenAttempts {
		token, err := s.newToken()
		if err != nil {
			return "", fmt.Errorf("generating session token: %w", err)
		}
		s.mu.Lock()
		if _, exists := s.data[token]; exists {
			s.mu.Unlock()
			continue
		}
		s.data[token] = e
		s.mu.Unlock()
		return token, nil
	}
	return "", fmt.Errorf("generating session token: %d consecutive collisions", maxTokenAttempts)
}

func (s *MemoryStore[T]) Get(token string) (T, bool) {
	e, ok := s.touch(token)
	if !ok {
		var zero T
		return zero, false
	}
	return e.payload, true
}

func (s *MemoryStore[T]) Lookup(token string) (Session[T], bool) {
	e, ok := s.touch(token)
	if !ok {
		return Session[T]{}, false
	}
	return Session[T]{
		Token:          token,
		Payload:        e.payload,
		CreatedAt:      e.createdAt,
		LastAccessedAt: e.lastAccessed(),
	}, true
}

// touch resolves token and refreshes its last-access time.
func (s *MemoryStore[T]) touch(token string) (*entry[T], bool) {
	if token == "" {
		return nil, false
	}
	s.mu.RLock()
	e, ok := s.data[token]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	now := s.now()
	if s.isIdle(e, now) {
		s.expireIdle(token, e, now)
		return nil, false
	}
	e.lastAccess.Store(now.UnixNano())
	return e, true
}

func (s *MemoryStore[T]) Invalidate(token string) {
	s.mu.Lock()
	delete(s.data, token)
	s.mu.Unlock()
}

func (s *MemoryStore[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

func (s *MemoryStore[T]) isIdle(e *entry[T], now time.Time) bool {
	return s.idleTimeout > 0 && now.Sub(e.lastAccessed()) > s.idleTimeout
}

// expireIdle removes token only if it still maps to e and e is still idle,
// so a concurrent read that refreshed the session wins.
func (s *MemoryStore[T]) expireIdle(token string, e *entry[T], now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.data[token]; !ok || cur != e || !s.isIdle(e, now) {
		return false
	}
	delete(s.data, token)
	return true
}

// cleanupLoop periodically removes idle sessions.
func (s *MemoryStore[T]) cleanupLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweepIdle()
		}
	}
}

func (s *MemoryStore[T]) sweepIdle() int {
	now := s.now()
	type candidate struct {
		token string
		e     *entry[T]
	}
	var idle []candidate
	s.mu.RLock()
	for token, e := range s.data {
		if s.isIdle(e, now) {
			idle = append(idle, candidate{token, e})
		}
	}
	s.mu.RUnlock()

	removed := 0
	for _, c := range idle {
		if s.expireIdle(c.token, c.e, now) {
			removed++
		}
	}
	if removed > 0 {
		s.logger.Debug("swept idle sessions", "count", removed)
	}
	return removed
}
