package token

import (
	"context"
	"log/slog"
	"time"
)

// ExpiredDeleter is the subset of the store the sweeper needs.
type ExpiredDeleter interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// Sweeper periodically deletes expired refresh-token rows.
type Sweeper struct {
	store    ExpiredDeleter
	interval time.Duration
	onSweep  func(deleted int64)
	done     chan struct{}
}

// NewSweeper creates a Sweeper that runs every interval. onSweep, if non-nil,
// is called with the number of rows deleted on each successful pass.
func NewSweeper(store ExpiredDeleter, interval time.Duration, onSweep func(deleted int64)) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{
		store:    store,
		interval: interval,
		onSweep:  onSweep,
		done:     make(chan struct{}),
	}
}

// Start runs the sweep loop until ctx is cancelled or Stop is called.
// It is intended to run in its own goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// Stop terminates the sweep loop.
func (s *Sweeper) Stop() {
	close(s.done)
}

func (s *Sweeper) sweep(ctx context.Context) {
	deleted, err := s.store.DeleteExpired(ctx)
	if err != nil {
		slog.Error("refresh token sweep failed", "error", err)
		return
	}
	if deleted > 0 {
		slog.Info("swept expired refresh tokens", "deleted", deleted)
	}
	if s.onSweep != nil {
		s.onSweep(deleted)
	}
}
