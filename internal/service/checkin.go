package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"dinedesk/backend/internal/domain"
	"dinedesk/backend/internal/ledger"
	"dinedesk/backend/internal/store"
	"dinedesk/backend/internal/xid"
)

var (
	errAlreadyCheckedIn = fmt.Errorf("%w: already checked in", store.ErrConflict)
	errNoActiveCheckIn  = fmt.Errorf("%w: no active check-in", store.ErrNotFound)
)

// CheckIn opens a register for the calling staff member and binds today's
// attendance record to it. An ACTIVE record left from an earlier day is
// force-closed together with its register first.
func (s *Service) CheckIn(ctx context.Context, req domain.CheckInRequest) (domain.CheckInResponse, error) {
	if req.OpeningBalance.IsNegative() {
		return domain.CheckInResponse{}, fmt.Errorf("%w: opening_balance must be >= 0", store.ErrInvalidInput)
	}
	if err := validateDenominations(req.Denominations); err != nil {
		return domain.CheckInResponse{}, err
	}
	actor, restaurantID, err := s.authorize(ctx, req.RestaurantID)
	if err != nil {
		return domain.CheckInResponse{}, err
	}

	staffID := actor.UserID
	now := s.clock()
	today := s.today()

	var resp domain.CheckInResponse
	var recovered *domain.CheckInRecord
	var recoveredRestaurant string
	err = s.repo.WithinTx(ctx, func(tx store.Tx) error {
		recovered = nil
		recoveredRestaurant = ""

		_, err := tx.FindCheckIn(ctx, staffID, domain.CheckInStatusActive, today)
		if err == nil {
			return errAlreadyCheckedIn
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		prior, err := tx.FindActiveCheckInBefore(ctx, staffID, today)
		switch {
		case err == nil:
			affected, err := s.forceCloseCheckIn(ctx, tx, prior, domain.NoteNextCheckInRecovery, now)
			if err != nil {
				return err
			}
			recovered = prior
			recoveredRestaurant = affected
		case !errors.Is(err, store.ErrNotFound):
			return err
		}

		if _, err := tx.FindOpenRegisterByOperator(ctx, staffID); err == nil {
			return errRegisterActive
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		reg, err := s.openRegister(ctx, tx, staffID, restaurantID, req.OpeningBalance, req.Notes, req.Denominations, now)
		if err != nil {
			return err
		}

		record, err := s.activateCheckIn(ctx, tx, staffID, restaurantID, reg.ID, today, req.Notes, now)
		if err != nil {
			return err
		}
		resp = domain.CheckInResponse{CheckIn: *record, Register: *reg}
		return nil
	})
	if err != nil {
		return domain.CheckInResponse{}, err
	}

	s.invalidateStatus(ctx, restaurantID, staffID)
	if recoveredRestaurant != "" && recoveredRestaurant != restaurantID {
		s.invalidateStatus(ctx, recoveredRestaurant, staffID)
	}
	if recovered != nil {
		log.Printf("[service] recovered abandoned check-in id=%s staff=%s date=%s", recovered.ID, staffID, recovered.Date)
		s.logAudit(ctx, restaurantID, "check_in_recover", "check_in", recovered.ID, "register="+recovered.RegisterID)
	}
	s.logAudit(ctx, restaurantID, "check_in", "check_in", resp.CheckIn.ID, "register="+resp.Register.ID)
	return resp, nil
}

// activateCheckIn reuses today's STALE slot when one exists, otherwise it
// inserts a fresh ACTIVE record.
func (s *Service) activateCheckIn(ctx context.Context, tx store.Tx, staffID string, restaurantID string, registerID string, today string, notes string, now time.Time) (*domain.CheckInRecord, error) {
	stale, err := tx.FindCheckIn(ctx, staffID, domain.CheckInStatusStale, today)
	if err == nil {
		if err := stale.Activate(registerID, today, now, notes); err != nil {
			return nil, err
		}
		stale.RestaurantID = restaurantID
		if err := tx.UpdateCheckIn(ctx, *stale, domain.CheckInStatusStale); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return nil, errAlreadyCheckedIn
			}
			return nil, err
		}
		return stale, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	record, err := tx.CreateCheckIn(ctx, domain.CheckInRecord{
		ID:           xid.New("chk"),
		StaffID:      staffID,
		RestaurantID: restaurantID,
		Date:         today,
		Status:       domain.CheckInStatusActive,
		CheckInTime:  &now,
		RegisterID:   registerID,
		Notes:        notes,
		CreatedAt:    now,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, errAlreadyCheckedIn
		}
		return nil, err
	}
	return record, nil
}

// forceCloseCheckIn terminates an abandoned ACTIVE record and its register
// without reconciliation. Entities already closed elsewhere are skipped. It
// returns the restaurant whose register status may have changed.
func (s *Service) forceCloseCheckIn(ctx context.Context, tx store.Tx, record *domain.CheckInRecord, note string, now time.Time) (string, error) {
	affected := record.RestaurantID
	if record.Status != domain.CheckInStatusActive {
		return affected, nil
	}
	if err := record.ForceClose(now, note); err != nil {
		return affected, err
	}
	if err := tx.UpdateCheckIn(ctx, *record, domain.CheckInStatusActive); err != nil && !errors.Is(err, store.ErrNotFound) {
		return affected, err
	}
	if record.RegisterID == "" {
		return affected, nil
	}

	reg, err := tx.LockRegister(ctx, record.RegisterID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return affected, nil
		}
		return affected, err
	}
	affected = reg.RestaurantID
	if err := s.forceCloseRegister(ctx, tx, reg, note, now); err != nil && !errors.Is(err, store.ErrNotFound) {
		return affected, err
	}
	return affected, nil
}

func (s *Service) CheckOut(ctx context.Context, req domain.CheckOutRequest) (domain.CheckOutResponse, error) {
	if req.CountedCashBalance.IsNegative() {
		return domain.CheckOutResponse{}, fmt.Errorf("%w: counted_cash_balance must be >= 0", store.ErrInvalidInput)
	}
	if err := validateDenominations(req.Denominations); err != nil {
		return domain.CheckOutResponse{}, err
	}
	actor, restaurantID, err := s.authorize(ctx, "")
	if err != nil {
		return domain.CheckOutResponse{}, err
	}

	staffID := actor.UserID
	now := s.clock()
	var resp domain.CheckOutResponse
	err = s.repo.WithinTx(ctx, func(tx store.Tx) error {
		record, err := tx.FindActiveCheckIn(ctx, staffID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return errNoActiveCheckIn
			}
			return err
		}
		if record.RegisterID == "" {
			return fmt.Errorf("%w: check-in has no register", store.ErrNotFound)
		}
		current, err := tx.LockRegister(ctx, record.RegisterID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return errRegisterNotFound
			}
			return err
		}

		var reg *domain.Register
		var summary domain.CloseSummary
		if current.IsTerminal() {
			reg, summary, err = settledSummary(ctx, tx, current)
		} else {
			reg, summary, err = s.closeRegister(ctx, tx, current, staffID, req.CountedCashBalance, req.Notes, req.Denominations, now)
		}
		if err != nil {
			return err
		}
		if err := record.Complete(now, req.Notes); err != nil {
			return errNoActiveCheckIn
		}
		if err := tx.UpdateCheckIn(ctx, *record, domain.CheckInStatusActive); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return errNoActiveCheckIn
			}
			return err
		}
		resp = domain.CheckOutResponse{CheckIn: *record, Register: *reg, Summary: summary}
		return nil
	})
	if err != nil {
		return domain.CheckOutResponse{}, err
	}

	s.invalidateStatus(ctx, restaurantID, staffID)
	s.logAudit(ctx, restaurantID, "check_out", "check_in", resp.CheckIn.ID,
		fmt.Sprintf("register=%s,discrepancy=%s", resp.Register.ID, resp.Summary.Discrepancy.StringFixed(2)))
	return resp, nil
}

// settledSummary describes a register that was closed before checkout. The
// counted cash of the checkout request is not applied to it.
func settledSummary(ctx context.Context, tx store.Tx, reg *domain.Register) (*domain.Register, domain.CloseSummary, error) {
	movements, err := tx.ListMovements(ctx, reg.ID)
	if err != nil {
		return nil, domain.CloseSummary{}, err
	}
	reg.Movements = movements
	expected := ledger.Replay(*reg, movements)
	actual := expected.Total
	if reg.ActualBalance != nil {
		actual = *reg.ActualBalance
	}
	return reg, domain.CloseSummary{
		Opening:       reg.Opening(),
		Expected:      expected,
		ActualBalance: actual,
		Discrepancy:   actual.Sub(expected.Total),
	}, nil
}

func (s *Service) GetActiveCheckIn(ctx context.Context) (domain.CheckInRecord, error) {
	actor, _, err := s.authorize(ctx, "")
	if err != nil {
		return domain.CheckInRecord{}, err
	}

	var record domain.CheckInRecord
	err = s.repo.ReadTx(ctx, func(tx store.Tx) error {
		found, err := tx.FindActiveCheckIn(ctx, actor.UserID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return errNoActiveCheckIn
			}
			return err
		}
		record = *found
		return nil
	})
	if err != nil {
		return domain.CheckInRecord{}, err
	}
	return record, nil
}

// PlanCheckIn reserves a STALE attendance slot for a staff member. Planning
// the same (staff, date) twice returns the existing slot.
func (s *Service) PlanCheckIn(ctx context.Context, req domain.CheckInPlanRequest) (domain.CheckInRecord, error) {
	_, restaurantID, err := s.authorizeAdmin(ctx, req.RestaurantID)
	if err != nil {
		return domain.CheckInRecord{}, err
	}
	staffID := strings.TrimSpace(req.StaffID)
	if staffID == "" {
		return domain.CheckInRecord{}, fmt.Errorf("%w: staff_id is required", store.ErrInvalidInput)
	}
	date := strings.TrimSpace(req.Date)
	if date == "" {
		date = s.today()
	}
	if _, err := time.Parse(time.DateOnly, date); err != nil {
		return domain.CheckInRecord{}, fmt.Errorf("%w: date must be YYYY-MM-DD", store.ErrInvalidInput)
	}
	staff, err := s.repo.GetUser(ctx, staffID)
	if err != nil || staff.RestaurantID != restaurantID {
		if err == nil || errors.Is(err, store.ErrNotFound) {
			return domain.CheckInRecord{}, fmt.Errorf("%w: staff member not found", store.ErrNotFound)
		}
		return domain.CheckInRecord{}, err
	}

	now := s.clock()
	var record domain.CheckInRecord
	created := false
	err = s.repo.WithinTx(ctx, func(tx store.Tx) error {
		existing, err := tx.FindCheckIn(ctx, staffID, domain.CheckInStatusStale, date)
		if err == nil {
			record = *existing
			created = false
			return nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		saved, err := tx.CreateCheckIn(ctx, domain.CheckInRecord{
			ID:           xid.New("chk"),
			StaffID:      staffID,
			RestaurantID: restaurantID,
			Date:         date,
			Status:       domain.CheckInStatusStale,
			CreatedAt:    now,
		})
		if err != nil {
			return err
		}
		record = *saved
		created = true
		return nil
	})
	if err != nil {
		return domain.CheckInRecord{}, err
	}

	if created {
		s.logAudit(ctx, restaurantID, "check_in_plan", "check_in", record.ID, "staff="+staffID+",date="+date)
	}
	return record, nil
}
