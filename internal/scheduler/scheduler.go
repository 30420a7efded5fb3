// Package scheduler periodically refreshes the stored forecast for a fixed
// set of locations so the page has data before anyone searches for them.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/neexbeast/skycast/internal/forecast"
)

const (
	runTimeout     = 2 * time.Minute
	maxConcurrency = 4
)

// Ingester fetches and stores the forecast for one location.
type Ingester interface {
	FetchAndStore(ctx context.Context, city, state, country string) (*forecast.Result, error)
}

// Stats counts the outcome of one refresh run.
type Stats struct {
	Stored     int
	Duplicates int
	Failed     int
}

// Scheduler refreshes the configured locations every interval.
type Scheduler struct {
	scheduler *gocron.Scheduler
	ingester  Ingester
	locations []forecast.Location
	interval  time.Duration
	log       *slog.Logger
}

// New creates a Scheduler. Nothing runs until Start is called.
func New(locations []forecast.Location, interval time.Duration, ingester Ingester, log *slog.Logger) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		ingester:  ingester,
		locations: locations,
		interval:  interval,
		log:       log,
	}
}

// Start schedules the refresh job, which also runs once immediately.
func (s *Scheduler) Start() error {
	if len(s.locations) == 0 {
		s.log.Info("scheduler: no refresh locations configured")
		return nil
	}

	_, err := s.scheduler.Every(s.interval).Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()
		s.RunOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("scheduling refresh job: %w", err)
	}

	s.scheduler.StartAsync()
	s.log.Info("scheduler started", "locations", len(s.locations), "interval", s.interval.String())
	return nil
}

// Stop stops the scheduler and cancels any future runs.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

// RunOnce refreshes every location. Individual failures are logged and
// counted; they never abort the run.
func (s *Scheduler) RunOnce(ctx context.Context) Stats {
	log := s.log.With("run_id", uuid.NewString())
	log.Info("scheduler: refresh started", "locations", len(s.locations))

	var (
		mu    sync.Mutex
		stats Stats
	)

	var g errgroup.Group
	g.SetLimit(maxConcurrency)

	for _, loc := range s.locations {
		g.Go(func() error {
			res, err := s.ingester.FetchAndStore(ctx, loc.City, loc.State, loc.Country)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Warn("scheduler: refresh failed", "location", loc.String(), "err", err)
				stats.Failed++
				return nil
			}
			stats.Stored += res.Stored
			stats.Duplicates += res.Duplicates
			return nil
		})
	}
	_ = g.Wait()

	log.Info("scheduler: refresh finished",
		"stored", stats.Stored, "duplicates", stats.Duplicates, "failed", stats.Failed)
	return stats
}
