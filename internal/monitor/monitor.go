// Package monitor polls a watched folder and runs a sync whenever it changes,
// stopping once the folder has been quiet for a configured period.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bull/docsync/internal/indexer"
)

// ErrInvalidSchedule is returned for a non-positive interval or negative quiet period.
var ErrInvalidSchedule = errors.New("invalid monitor schedule")

// Syncer runs one sync cycle over a folder.
type Syncer interface {
	Run(ctx context.Context) (*indexer.SyncResult, error)
	Dir() string
	Accept(name string) bool
}

// Notifier wakes the monitor before the next poll is due.
type Notifier interface {
	Events() <-chan struct{}
}

// Monitor is a single-threaded polling loop around a Syncer.
type Monitor struct {
	syncer       Syncer
	interval     time.Duration
	maxUnchanged time.Duration
	clock        Clock
	notifier     Notifier
	onCycle      func(*indexer.SyncResult)
	logger       *slog.Logger
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock replaces the system clock.
func WithClock(c Clock) Option {
	return func(m *Monitor) { m.clock = c }
}

// WithNotifier lets filesystem events trigger an early poll.
func WithNotifier(n Notifier) Option {
	return func(m *Monitor) { m.notifier = n }
}

// WithCycleHook calls fn after every completed sync.
func WithCycleHook(fn func(*indexer.SyncResult)) Option {
	return func(m *Monitor) { m.onCycle = fn }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

// New creates a monitor that polls every interval and returns after
// maxUnchanged without changes. A maxUnchanged of 0 polls until cancelled.
func New(syncer Syncer, interval, maxUnchanged time.Duration, opts ...Option) (*Monitor, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("%w: interval must be positive, got %s", ErrInvalidSchedule, interval)
	}
	if maxUnchanged < 0 {
		return nil, fmt.Errorf("%w: max unchanged time must not be negative, got %s", ErrInvalidSchedule, maxUnchanged)
	}

	m := &Monitor{
		syncer:       syncer,
		interval:     interval,
		maxUnchanged: maxUnchanged,
		clock:        RealClock{},
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "monitor")
	return m, nil
}

// Run polls until the folder has been unchanged for the quiet period or ctx
// is cancelled. The first poll always syncs. Later polls sync only when the
// folder's signal moved or the previous sync left a retryable failure.
// Returns nil on quiet-period exit and ctx.Err() on cancellation.
func (m *Monitor) Run(ctx context.Context) error {
	var (
		lastSignal uint64
		observed   bool
		retry      bool
		lastChange = m.clock.Now()
	)

	m.logger.Info("Watching folder",
		"dir", m.syncer.Dir(),
		"interval", m.interval,
		"max_unchanged", m.maxUnchanged,
	)

	var events <-chan struct{}
	if m.notifier != nil {
		events = m.notifier.Events()
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		files, err := indexer.List(m.syncer.Dir(), m.syncer.Accept)
		if err != nil {
			m.logger.Warn("Failed to list folder", "error", err)
		} else {
			signal := Signal(files)
			moved := observed && signal != lastSignal
			if moved {
				lastChange = m.clock.Now()
			}

			if !observed || moved || retry {
				result, err := m.syncer.Run(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					m.logger.Warn("Sync cycle failed", "error", err)
					retry = true
				} else {
					if result.Changed() {
						lastChange = m.clock.Now()
					}
					retry = result.NeedsRetry()
					if m.onCycle != nil {
						m.onCycle(result)
					}
				}
			}

			lastSignal = signal
			observed = true
		}

		if m.maxUnchanged > 0 {
			if quiet := m.clock.Now().Sub(lastChange); quiet >= m.maxUnchanged {
				m.logger.Info("No changes detected, stopping", "quiet_for", quiet)
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.clock.After(m.interval):
		case <-events:
			m.logger.Debug("Woken by filesystem event")
		}
	}
}
