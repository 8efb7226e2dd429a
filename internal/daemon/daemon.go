// Package daemon decides when sync cycles run.
//
// In one-shot mode the daemon runs a single cycle. In daemon mode it loops:
// run a cycle, wait, repeat. The wait is a fixed interval or, when a cron
// schedule is configured, the time until the schedule's next activation.
// With a watch path set, a write to the database cuts the wait short.
//
// A cycle that fails outright (the database is unreachable) stops the loop.
// Cancelling the context stops it cleanly between cycles.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	birdsync "github.com/edgebird/birdsync/internal/sync"
)

// Cycler runs one sync cycle. Implemented by *sync.Engine.
type Cycler interface {
	RunCycle(ctx context.Context) (*birdsync.CycleResult, error)
}

// Config holds configuration for the daemon.
type Config struct {
	// Interval is the pause between cycles.
	Interval time.Duration

	// Schedule is a standard five-field cron spec. When set it replaces
	// Interval.
	Schedule string

	// WatchPath is the database file to watch for writes. Empty disables
	// early wake-ups.
	WatchPath string

	// DebounceInterval is how long the database must be quiet after a
	// write before the loop wakes up.
	DebounceInterval time.Duration

	Logger *zap.Logger
}

// DefaultConfig returns the settings used when none are given.
func DefaultConfig() *Config {
	return &Config{
		Interval:         2 * time.Minute,
		DebounceInterval: 2 * time.Second,
		Logger:           zap.NewNop(),
	}
}

// Daemon runs a Cycler once or on a loop.
type Daemon struct {
	cycler   Cycler
	config   *Config
	schedule cron.Schedule
	logger   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// now is swapped out by tests.
	now func() time.Time
}

// New creates a Daemon. A nil cfg means DefaultConfig.
func New(cycler Cycler, cfg *Config) (*Daemon, error) {
	if cycler == nil {
		return nil, fmt.Errorf("cycler cannot be nil")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}

	c := *cfg
	defaults := DefaultConfig()
	if c.Interval <= 0 {
		c.Interval = defaults.Interval
	}
	if c.DebounceInterval <= 0 {
		c.DebounceInterval = defaults.DebounceInterval
	}
	if c.Logger == nil {
		c.Logger = defaults.Logger
	}

	d := &Daemon{
		cycler: cycler,
		config: &c,
		logger: c.Logger,
		now:    time.Now,
	}

	if c.Schedule != "" {
		sched, err := cron.ParseStandard(c.Schedule)
		if err != nil {
			return nil, fmt.Errorf("invalid schedule %q: %w", c.Schedule, err)
		}
		d.schedule = sched
	}

	return d, nil
}

// RunOnce runs exactly one cycle. Cancellation is not an error.
func (d *Daemon) RunOnce(ctx context.Context) error {
	_, err := d.cycler.RunCycle(ctx)
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		d.logger.Info("sync interrupted")
		return nil
	}
	return err
}

// Start runs cycles until ctx is cancelled, Stop is called, or a cycle
// fails. It returns nil on cancellation.
func (d *Daemon) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	d.mu.Lock()
	d.cancel = cancel
	d.mu.Unlock()

	var wake <-chan struct{}
	if d.config.WatchPath != "" {
		fw, err := NewDBWatcher()
		if err != nil {
			return err
		}
		if err := fw.Start(d.config.WatchPath); err != nil {
			_ = fw.Stop()
			return err
		}
		defer func() {
			cancel()
			if err := fw.Stop(); err != nil {
				d.logger.Warn("failed to stop database watcher", zap.Error(err))
			}
			d.wg.Wait()
		}()

		w := make(chan struct{}, 1)
		d.wg.Add(1)
		go d.debounce(ctx, fw, w)
		wake = w
		d.logger.Info("watching database for new detections", zap.String("path", d.config.WatchPath))
	}

	d.logger.Info("daemon started",
		zap.Duration("interval", d.config.Interval),
		zap.String("schedule", d.config.Schedule))

	for {
		if _, err := d.cycler.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				d.logger.Info("daemon stopped")
				return nil
			}
			return fmt.Errorf("sync cycle failed: %w", err)
		}

		wait := d.nextWait()
		d.logger.Debug("waiting for next cycle", zap.Duration("wait", wait))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			d.logger.Info("daemon stopped")
			return nil
		case <-timer.C:
		case <-wake:
			timer.Stop()
			d.logger.Info("database changed, starting cycle early")
		}
	}
}

// Stop cancels a running Start.
func (d *Daemon) Stop() {
	d.mu.Lock()
	cancel := d.cancel
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// nextWait returns how long to sleep before the next cycle.
func (d *Daemon) nextWait() time.Duration {
	if d.schedule == nil {
		return d.config.Interval
	}
	now := d.now()
	wait := d.schedule.Next(now).Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}

// debounce turns a burst of database events into a single wake-up once the
// database has been quiet for DebounceInterval.
func (d *Daemon) debounce(ctx context.Context, fw *DBWatcher, wake chan<- struct{}) {
	defer d.wg.Done()

	timer := time.NewTimer(d.config.DebounceInterval)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-fw.Events():
			if !ok {
				return
			}
			d.logger.Debug("database event", zap.String("path", ev.Path), zap.Stringer("op", ev.Op))
			timer.Reset(d.config.DebounceInterval)

		case err, ok := <-fw.Errors():
			if !ok {
				return
			}
			d.logger.Warn("database watcher error", zap.Error(err))

		case <-timer.C:
			select {
			case wake <- struct{}{}:
			default:
			}
		}
	}
}
