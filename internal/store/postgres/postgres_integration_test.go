package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"dinedesk/backend/internal/domain"
	"dinedesk/backend/internal/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv("DINEDESK_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set DINEDESK_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func seedRestaurant(t *testing.T, s *Store) string {
	t.Helper()
	ctx := context.Background()
	id := fmt.Sprintf("rest-it-%d", time.Now().UnixNano())
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO restaurants (id, name, active, created_at)
		VALUES ($1, 'Integration Diner', true, now())
	`, id); err != nil {
		t.Fatalf("insert restaurant: %v", err)
	}
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM check_ins WHERE restaurant_id = $1`, id)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM cash_transactions WHERE register_id IN (SELECT id FROM registers WHERE restaurant_id = $1)`, id)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM register_denominations WHERE register_id IN (SELECT id FROM registers WHERE restaurant_id = $1)`, id)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM registers WHERE restaurant_id = $1`, id)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM restaurants WHERE id = $1`, id)
	})
	return id
}

func TestOpenRegisterIndexRejectsSecondOpen(t *testing.T) {
	s := openTestStore(t)
	restaurantID := seedRestaurant(t, s)
	ctx := context.Background()

	open := func() error {
		return s.WithinTx(ctx, func(tx store.Tx) error {
			_, err := tx.CreateRegister(ctx, domain.Register{
				RestaurantID:       restaurantID,
				OpenedBy:           "staff-it",
				OpeningBalance:     decimal.NewFromInt(500),
				OpeningCashBalance: decimal.NewFromInt(500),
			})
			return err
		})
	}
	if err := open(); err != nil {
		t.Fatalf("first open: %v", err)
	}
	if err := open(); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict on second open, got %v", err)
	}
}

func TestRegisterLifecycleRoundTrip(t *testing.T) {
	s := openTestStore(t)
	restaurantID := seedRestaurant(t, s)
	ctx := context.Background()

	var registerID string
	err := s.WithinTx(ctx, func(tx store.Tx) error {
		reg, err := tx.CreateRegister(ctx, domain.Register{
			RestaurantID:       restaurantID,
			OpenedBy:           "staff-it",
			OpeningBalance:     decimal.NewFromInt(500),
			OpeningCashBalance: decimal.NewFromInt(500),
		})
		if err != nil {
			return err
		}
		registerID = reg.ID
		if err := tx.SaveDenominations(ctx, domain.Denominations{
			RegisterID: reg.ID,
			Kind:       domain.DenominationsOpening,
			Counts:     []domain.DenominationCount{{Value: decimal.NewFromInt(100), Count: 5}},
			Total:      decimal.NewFromInt(500),
		}); err != nil {
			return err
		}
		return tx.AppendMovement(ctx, domain.Movement{
			RegisterID:    reg.ID,
			Type:          domain.MovementCashIn,
			Amount:        decimal.RequireFromString("12.50"),
			PaymentMethod: domain.PaymentUPI,
			Source:        domain.SourceOrder,
			PerformedBy:   "staff-it",
		})
	})
	if err != nil {
		t.Fatalf("open register: %v", err)
	}

	err = s.WithinTx(ctx, func(tx store.Tx) error {
		reg, err := tx.LockRegister(ctx, registerID)
		if err != nil {
			return err
		}
		if reg.OpeningDenominations == nil || !reg.OpeningDenominations.Total.Equal(decimal.NewFromInt(500)) {
			t.Fatalf("expected opening denominations to round-trip, got %+v", reg.OpeningDenominations)
		}
		movements, err := tx.ListMovements(ctx, registerID)
		if err != nil {
			return err
		}
		if len(movements) != 1 || !movements[0].Amount.Equal(decimal.RequireFromString("12.50")) {
			t.Fatalf("unexpected movements: %+v", movements)
		}
		expected := domain.Balances{
			Cash:  decimal.NewFromInt(500),
			UPI:   decimal.RequireFromString("12.50"),
			Card:  decimal.Zero,
			Total: decimal.RequireFromString("512.50"),
		}
		if err := reg.ForceClose(expected, time.Now().UTC(), domain.NoteEndOfDayAutoClose); err != nil {
			return err
		}
		return tx.UpdateRegisterClosing(ctx, *reg)
	})
	if err != nil {
		t.Fatalf("close register: %v", err)
	}

	err = s.WithinTx(ctx, func(tx store.Tx) error {
		reg, err := tx.GetRegister(ctx, registerID)
		if err != nil {
			return err
		}
		if reg.Status != domain.RegisterStatusForceClosed || reg.ClosingBalance == nil {
			t.Fatalf("expected force-closed register with closing balance, got %+v", reg)
		}
		if !reg.ClosingBalance.Equal(decimal.RequireFromString("512.50")) {
			t.Fatalf("expected closing balance 512.50, got %s", reg.ClosingBalance)
		}
		return tx.UpdateRegisterClosing(ctx, *reg)
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected second closing update to report not found, got %v", err)
	}
}

func TestActiveCheckInIndexAndStaleReuse(t *testing.T) {
	s := openTestStore(t)
	restaurantID := seedRestaurant(t, s)
	moved := seedRestaurant(t, s)
	ctx := context.Background()
	staffID := fmt.Sprintf("staff-it-%d", time.Now().UnixNano())

	err := s.WithinTx(ctx, func(tx store.Tx) error {
		_, err := tx.CreateCheckIn(ctx, domain.CheckInRecord{
			StaffID:      staffID,
			RestaurantID: restaurantID,
			Date:         "2026-03-01",
			Status:       domain.CheckInStatusStale,
		})
		return err
	})
	if err != nil {
		t.Fatalf("plan stale: %v", err)
	}

	err = s.WithinTx(ctx, func(tx store.Tx) error {
		record, err := tx.FindCheckIn(ctx, staffID, domain.CheckInStatusStale, "2026-03-01")
		if err != nil {
			return err
		}
		if err := record.Activate("", "2026-03-01", time.Now().UTC(), ""); err != nil {
			return err
		}
		record.RestaurantID = moved
		return tx.UpdateCheckIn(ctx, *record, domain.CheckInStatusStale)
	})
	if err != nil {
		t.Fatalf("activate stale: %v", err)
	}

	err = s.ReadTx(ctx, func(tx store.Tx) error {
		active, err := tx.FindActiveCheckIn(ctx, staffID)
		if err != nil {
			return err
		}
		if active.RestaurantID != moved {
			t.Fatalf("expected activated slot to move to %s, got %s", moved, active.RestaurantID)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("find active: %v", err)
	}

	err = s.WithinTx(ctx, func(tx store.Tx) error {
		_, err := tx.CreateCheckIn(ctx, domain.CheckInRecord{
			StaffID:      staffID,
			RestaurantID: restaurantID,
			Date:         "2026-03-01",
			Status:       domain.CheckInStatusActive,
		})
		return err
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict on second active check-in, got %v", err)
	}

	err = s.ReadTx(ctx, func(tx store.Tx) error {
		active, err := tx.ListActiveCheckIns(ctx, moved)
		if err != nil {
			return err
		}
		if len(active) != 1 || active[0].StaffID != staffID {
			t.Fatalf("expected one active check-in for %s, got %+v", staffID, active)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
}
