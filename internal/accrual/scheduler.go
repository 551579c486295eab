package accrual

import (
	"log/slog"
	"time"
)

// Scheduler drives the accrual engine on a fixed interval, the
// cron-equivalent collaborator. Page-triggered catch-up calls may race
// with it freely; CatchUp recomputes turns from persisted state.
type Scheduler struct {
	Engine   *Engine
	Interval time.Duration

	stop chan struct{}
}

// NewScheduler creates a scheduler sweeping at the given interval.
func NewScheduler(engine *Engine, interval time.Duration) *Scheduler {
	return &Scheduler{Engine: engine, Interval: interval, stop: make(chan struct{})}
}

// Run sweeps until Stop is called. Blocks; run it in a goroutine.
func (s *Scheduler) Run() {
	slog.Info("accrual scheduler started", "interval", s.Interval)
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Engine.RunAll()
		case <-s.stop:
			slog.Info("accrual scheduler stopped")
			return
		}
	}
}

// Stop halts the sweep loop.
func (s *Scheduler) Stop() {
	close(s.stop)
}
