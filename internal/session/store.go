package session

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"glass-voice/internal/metrics"
)

// ErrNotFound is returned for operations on a key the store does not hold.
var ErrNotFound = errors.New("session: not found")

const (
	DefaultMaxTurns    = 20
	DefaultRetainTurns = 10
)

// Snapshotter persists sessions outside the process. Load returns nil, nil
// for an unknown key.
type Snapshotter interface {
	Load(ctx context.Context, key string) (*Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
	Delete(ctx context.Context, key string) error
}

// Store owns every live session, keyed by connection key.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session

	maxTurns    int
	retainTurns int
	snapshots   Snapshotter
	logger      *slog.Logger
	now         func() time.Time
}

type Option func(*Store)

// WithLimits sets the history cap and how many turns survive a trim.
// retain must be smaller than max; otherwise half of max is retained.
func WithLimits(max, retain int) Option {
	return func(s *Store) {
		if max > 0 {
			s.maxTurns = max
		}
		if retain > 0 {
			s.retainTurns = retain
		}
	}
}

func WithSnapshotter(sn Snapshotter) Option {
	return func(s *Store) { s.snapshots = sn }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		sessions:    make(map[string]*Session),
		maxTurns:    DefaultMaxTurns,
		retainTurns: DefaultRetainTurns,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.retainTurns >= s.maxTurns {
		s.retainTurns = s.maxTurns / 2
	}
	return s
}

// Now is the store's clock.
func (s *Store) Now() time.Time { return s.now() }

// GetOrCreate returns the session for key, restoring it from the
// snapshotter or creating a fresh one when the key is unseen.
func (s *Store) GetOrCreate(ctx context.Context, key string) *Session {
	if sess, ok := s.Get(key); ok {
		return sess
	}

	fresh := newSession(key, s.now(), s.maxTurns, s.retainTurns)
	if s.snapshots != nil {
		snap, err := s.snapshots.Load(ctx, key)
		switch {
		case err != nil:
			s.logger.Warn("session snapshot load failed", "session", key, "err", err)
		case snap != nil:
			fresh.restore(*snap)
			s.logger.Debug("session restored", "session", key, "turns", len(fresh.Turns))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[key]; ok {
		return sess
	}
	s.sessions[key] = fresh
	metrics.ActiveSessions.Set(float64(len(s.sessions)))
	s.logger.Info("session created", "session", key)
	return fresh
}

// Get returns the live session for key.
func (s *Store) Get(key string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[key]
	return sess, ok
}

// Delete removes the session and its snapshot and marks the session closed.
// It reports whether a live session was held. Callers ending a conversation
// hold the session lock so no turn can snapshot it back.
func (s *Store) Delete(ctx context.Context, key string) bool {
	s.mu.Lock()
	sess, ok := s.sessions[key]
	if ok {
		sess.closed.Store(true)
	}
	delete(s.sessions, key)
	metrics.ActiveSessions.Set(float64(len(s.sessions)))
	s.mu.Unlock()

	if s.snapshots != nil {
		if err := s.snapshots.Delete(ctx, key); err != nil {
			s.logger.Warn("session snapshot delete failed", "session", key, "err", err)
		}
	}
	if ok {
		s.logger.Info("session deleted", "session", key)
	}
	return ok
}

// Save writes a snapshot of sess. The caller holds the session lock. Closed
// sessions and sessions the store no longer holds are skipped.
func (s *Store) Save(ctx context.Context, sess *Session) {
	if s.snapshots == nil || sess.Closed() {
		return
	}
	s.mu.Lock()
	live := s.sessions[sess.Key] == sess
	s.mu.Unlock()
	if !live {
		return
	}
	if err := s.snapshots.Save(ctx, sess.Snapshot()); err != nil {
		s.logger.Warn("session snapshot save failed", "session", sess.Key, "err", err)
	}
}

// Keys lists live session keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.Lock()
	keys := make([]string, 0, len(s.sessions))
	for k := range s.sessions {
		keys = append(keys, k)
	}
	s.mu.Unlock()
	sort.Strings(keys)
	return keys
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// EvictIdle drops sessions idle for longer than ttl and returns their keys.
// Sessions busy with a turn are skipped. Snapshots are left to expire on
// their own so an evicted user can resume.
func (s *Store) EvictIdle(ttl time.Duration) []string {
	if ttl <= 0 {
		return nil
	}
	cutoff := s.now().Add(-ttl)

	s.mu.Lock()
	defer s.mu.Unlock()
	var evicted []string
	for key, sess := range s.sessions {
		if !sess.mu.TryLock() {
			continue
		}
		idle := sess.LastActivity.Before(cutoff)
		sess.mu.Unlock()
		if idle {
			delete(s.sessions, key)
			evicted = append(evicted, key)
		}
	}
	metrics.ActiveSessions.Set(float64(len(s.sessions)))
	if len(evicted) > 0 {
		sort.Strings(evicted)
		s.logger.Info("idle sessions evicted", "count", len(evicted))
	}
	return evicted
}
