package session

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper evicts idle sessions on a fixed schedule.
type Sweeper struct {
	cron   *cron.Cron
	store  *Store
	ttl    time.Duration
	logger *slog.Logger
}

// NewSweeper schedules EvictIdle(ttl) every interval.
func NewSweeper(store *Store, ttl, interval time.Duration, logger *slog.Logger) (*Sweeper, error) {
	if store == nil {
		return nil, fmt.Errorf("session: sweeper store is nil")
	}
	if ttl <= 0 || interval <= 0 {
		return nil, fmt.Errorf("session: sweeper needs positive ttl and interval, got %s and %s", ttl, interval)
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sweeper{cron: cron.New(), store: store, ttl: ttl, logger: logger}
	if _, err := s.cron.AddFunc("@every "+interval.String(), func() { s.Sweep() }); err != nil {
		return nil, fmt.Errorf("session: schedule sweeper: %w", err)
	}
	return s, nil
}

func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Sweep runs one eviction pass.
func (s *Sweeper) Sweep() []string {
	evicted := s.store.EvictIdle(s.ttl)
	if len(evicted) > 0 {
		s.logger.Debug("sweeper evicted sessions", "keys", evicted)
	}
	return evicted
}
