// Package sweeper drives the end-of-day force-close for every restaurant once
// per business day.
package sweeper

import (
	"context"
	"log"
	"time"

	"dinedesk/backend/internal/domain"
	"dinedesk/backend/internal/service"
)

const defaultWindow = 15 * time.Minute

type Runner interface {
	ProcessEndOfDay(ctx context.Context, restaurantID string) (domain.EndOfDayResult, error)
}

type RestaurantLister interface {
	ListRestaurants(ctx context.Context) ([]domain.Restaurant, error)
}

type Options struct {
	Location *time.Location
	Hour     int
	Minute   int
	// Interval is how often the schedule is checked.
	Interval time.Duration
	// Window bounds how long after HH:MM a sweep may still start. A process
	// started later in the day waits for the next day's window.
	Window time.Duration
	Now    func() time.Time
}

type Sweeper struct {
	runner   Runner
	lister   RestaurantLister
	location *time.Location
	hour     int
	minute   int
	interval time.Duration
	window   time.Duration
	now      func() time.Time
	lastDay  string
}

func New(runner Runner, lister RestaurantLister, opts Options) *Sweeper {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.Window <= 0 {
		opts.Window = defaultWindow
	}
	if opts.Window < 2*opts.Interval {
		opts.Window = 2 * opts.Interval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Sweeper{
		runner:   runner,
		lister:   lister,
		location: opts.Location,
		hour:     opts.Hour,
		minute:   opts.Minute,
		interval: opts.Interval,
		window:   opts.Window,
		now:      opts.Now,
	}
}

// Run blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	log.Printf("[sweeper] scheduled daily at %02d:%02d %s", s.hour, s.minute, s.location)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Println("[sweeper] stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick sweeps every active restaurant when the clock is inside today's
// window and today's run has not completed yet. It returns the number of
// restaurants swept.
func (s *Sweeper) Tick(ctx context.Context) int {
	local := s.now().In(s.location)
	today := local.Format(time.DateOnly)
	if today == s.lastDay {
		return 0
	}
	due := time.Date(local.Year(), local.Month(), local.Day(), s.hour, s.minute, 0, 0, s.location)
	if local.Before(due) || !local.Before(due.Add(s.window)) {
		return 0
	}

	restaurants, err := s.lister.ListRestaurants(ctx)
	if err != nil {
		log.Printf("[sweeper] WARN: failed to list restaurants: %v", err)
		return 0
	}

	swept := 0
	failed := false
	sysCtx := service.SystemContext(ctx)
	for _, r := range restaurants {
		if !r.Active {
			continue
		}
		result, err := s.runner.ProcessEndOfDay(sysCtx, r.ID)
		if err != nil {
			failed = true
			log.Printf("[sweeper] WARN: end-of-day failed restaurant=%s: %v", r.ID, err)
			continue
		}
		swept++
		log.Printf("[sweeper] restaurant=%s closed_check_ins=%d closed_registers=%d", r.ID, result.ClosedCheckIns, result.ClosedRegisters)
	}
	if !failed {
		s.lastDay = today
	}
	return swept
}
