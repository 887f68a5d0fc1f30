package sweeper

import (
	"context"
	"errors"
	"testing"
	"time"

	"dinedesk/backend/internal/domain"
	"dinedesk/backend/internal/service"
)

type fakeRunner struct {
	calls  []string
	failOn string
}

func (f *fakeRunner) ProcessEndOfDay(ctx context.Context, restaurantID string) (domain.EndOfDayResult, error) {
	actor, ok := service.ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleSystem {
		return domain.EndOfDayResult{}, errors.New("expected system actor")
	}
	f.calls = append(f.calls, restaurantID)
	if restaurantID == f.failOn {
		return domain.EndOfDayResult{}, errors.New("boom")
	}
	return domain.EndOfDayResult{RestaurantID: restaurantID}, nil
}

type fakeLister []domain.Restaurant

func (f fakeLister) ListRestaurants(context.Context) ([]domain.Restaurant, error) {
	return f, nil
}

func TestTickRunsOncePerBusinessDay(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	now := time.Date(2026, 3, 10, 2, 59, 0, 0, loc)
	runner := &fakeRunner{}
	s := New(runner, fakeLister{
		{ID: "r1", Active: true},
		{ID: "r2", Active: false},
		{ID: "r3", Active: true},
	}, Options{Location: loc, Hour: 3, Now: func() time.Time { return now }})

	if got := s.Tick(context.Background()); got != 0 {
		t.Fatalf("expected no sweep before schedule, got %d", got)
	}

	now = now.Add(2 * time.Minute)
	if got := s.Tick(context.Background()); got != 2 {
		t.Fatalf("expected 2 active restaurants swept, got %d", got)
	}
	if len(runner.calls) != 2 || runner.calls[0] != "r1" || runner.calls[1] != "r3" {
		t.Fatalf("unexpected calls: %v", runner.calls)
	}

	now = now.Add(10 * time.Hour)
	if got := s.Tick(context.Background()); got != 0 {
		t.Fatalf("expected no second sweep on the same day, got %d", got)
	}

	now = now.Add(14 * time.Hour)
	if got := s.Tick(context.Background()); got != 2 {
		t.Fatalf("expected sweep on the next day, got %d", got)
	}
}

func TestTickRetriesAfterFailure(t *testing.T) {
	now := time.Date(2026, 3, 10, 3, 2, 0, 0, time.UTC)
	runner := &fakeRunner{failOn: "r2"}
	s := New(runner, fakeLister{{ID: "r1", Active: true}, {ID: "r2", Active: true}}, Options{Hour: 3, Now: func() time.Time { return now }})

	if got := s.Tick(context.Background()); got != 1 {
		t.Fatalf("expected one successful sweep, got %d", got)
	}
	runner.failOn = ""
	now = now.Add(time.Minute)
	if got := s.Tick(context.Background()); got != 2 {
		t.Fatalf("expected retry to sweep both restaurants, got %d", got)
	}
	if got := s.Tick(context.Background()); got != 0 {
		t.Fatalf("expected day to be marked done, got %d", got)
	}
}

func TestTickOutsideWindowSweepsNothing(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	runner := &fakeRunner{}
	s := New(runner, fakeLister{{ID: "r1", Active: true}}, Options{Hour: 3, Now: func() time.Time { return now }})

	if got := s.Tick(context.Background()); got != 0 {
		t.Fatalf("expected no sweep when started at noon, got %d", got)
	}
	if len(runner.calls) != 0 {
		t.Fatalf("expected no end-of-day calls, got %v", runner.calls)
	}

	now = time.Date(2026, 3, 11, 3, 5, 0, 0, time.UTC)
	if got := s.Tick(context.Background()); got != 1 {
		t.Fatalf("expected sweep inside next day's window, got %d", got)
	}
}

func TestTickWindowCoversSlowInterval(t *testing.T) {
	now := time.Date(2026, 3, 10, 3, 50, 0, 0, time.UTC)
	runner := &fakeRunner{}
	s := New(runner, fakeLister{{ID: "r1", Active: true}}, Options{
		Hour:     3,
		Interval: 30 * time.Minute,
		Window:   time.Minute,
		Now:      func() time.Time { return now },
	})

	if got := s.Tick(context.Background()); got != 1 {
		t.Fatalf("expected window widened to two intervals, got %d", got)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	runner := &fakeRunner{}
	s := New(runner, fakeLister{}, Options{Interval: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("sweeper did not stop after cancel")
	}
}
