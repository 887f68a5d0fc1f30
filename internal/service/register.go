package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"dinedesk/backend/internal/domain"
	"dinedesk/backend/internal/ledger"
	"dinedesk/backend/internal/store"
	"dinedesk/backend/internal/xid"
)

var (
	errRegisterNotFound = fmt.Errorf("%w: register not found", store.ErrNotFound)
	errRegisterNotOpen  = fmt.Errorf("%w: register is not open", store.ErrNotFound)
	errRegisterActive   = fmt.Errorf("%w: operator already has an active register", store.ErrConflict)
)

func (s *Service) OpenRegister(ctx context.Context, req domain.RegisterOpenRequest) (domain.RegisterResponse, error) {
	if req.OpeningBalance.IsNegative() {
		return domain.RegisterResponse{}, fmt.Errorf("%w: opening_balance must be >= 0", store.ErrInvalidInput)
	}
	if err := validateDenominations(req.Denominations); err != nil {
		return domain.RegisterResponse{}, err
	}
	actor, restaurantID, err := s.authorize(ctx, req.RestaurantID)
	if err != nil {
		return domain.RegisterResponse{}, err
	}

	now := s.clock()
	var reg *domain.Register
	err = s.repo.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		reg, err = s.openRegister(ctx, tx, actor.UserID, restaurantID, req.OpeningBalance, req.Notes, req.Denominations, now)
		return err
	})
	if err != nil {
		return domain.RegisterResponse{}, err
	}

	s.invalidateStatus(ctx, restaurantID, actor.UserID)
	s.logAudit(ctx, restaurantID, "register_open", "register", reg.ID, "opening_balance="+reg.OpeningBalance.StringFixed(2))
	return domain.RegisterResponse{Register: *reg}, nil
}

// openRegister creates the OPEN register, its opening denominations and the
// seed movement. A zero opening balance gets no seed.
func (s *Service) openRegister(ctx context.Context, tx store.Tx, operatorID string, restaurantID string, opening decimal.Decimal, notes string, counts []domain.DenominationCount, now time.Time) (*domain.Register, error) {
	_, err := tx.FindOpenRegister(ctx, restaurantID, operatorID)
	if err == nil {
		return nil, errRegisterActive
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	seedID := ""
	if opening.IsPositive() {
		seedID = xid.New("ctx")
	}
	reg, err := tx.CreateRegister(ctx, domain.Register{
		ID:                 xid.New("reg"),
		RestaurantID:       restaurantID,
		OpenedBy:           operatorID,
		OpeningBalance:     opening,
		OpeningCashBalance: opening,
		OpeningUPIBalance:  decimal.Zero,
		OpeningCardBalance: decimal.Zero,
		OpeningNotes:       notes,
		OpeningMovementID:  seedID,
		OpenedAt:           now,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, errRegisterActive
		}
		return nil, err
	}

	if d := denominationsFor(reg.ID, domain.DenominationsOpening, counts, now); d != nil {
		if err := tx.SaveDenominations(ctx, *d); err != nil {
			return nil, err
		}
		reg.OpeningDenominations = d
	}

	reg.Movements = []domain.Movement{}
	if seedID != "" {
		seed := domain.Movement{
			ID:            seedID,
			RegisterID:    reg.ID,
			Type:          domain.MovementCashIn,
			Amount:        opening,
			PaymentMethod: domain.PaymentCash,
			Source:        domain.SourceManual,
			Description:   domain.NoteOpeningBalance,
			PerformedBy:   operatorID,
			CreatedAt:     now,
		}
		if err := tx.AppendMovement(ctx, seed); err != nil {
			return nil, err
		}
		reg.Movements = append(reg.Movements, seed)
	}
	return reg, nil
}

func (s *Service) CloseRegister(ctx context.Context, req domain.RegisterCloseRequest) (domain.RegisterCloseResponse, error) {
	if req.RegisterID == "" {
		return domain.RegisterCloseResponse{}, fmt.Errorf("%w: register_id is required", store.ErrInvalidInput)
	}
	if req.CountedCashBalance.IsNegative() {
		return domain.RegisterCloseResponse{}, fmt.Errorf("%w: counted_cash_balance must be >= 0", store.ErrInvalidInput)
	}
	if err := validateDenominations(req.Denominations); err != nil {
		return domain.RegisterCloseResponse{}, err
	}
	actor, restaurantID, err := s.authorize(ctx, "")
	if err != nil {
		return domain.RegisterCloseResponse{}, err
	}

	now := s.clock()
	var reg *domain.Register
	var summary domain.CloseSummary
	var completed *domain.CheckInRecord
	err = s.repo.WithinTx(ctx, func(tx store.Tx) error {
		completed = nil

		current, err := tx.LockRegister(ctx, req.RegisterID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return errRegisterNotFound
			}
			return err
		}
		if current.OpenedBy != actor.UserID || current.RestaurantID != restaurantID {
			return errRegisterNotFound
		}
		reg, summary, err = s.closeRegister(ctx, tx, current, actor.UserID, req.CountedCashBalance, req.Notes, req.Denominations, now)
		if err != nil {
			return err
		}
		completed, err = completeBoundCheckIn(ctx, tx, current.OpenedBy, current.ID, req.Notes, now)
		return err
	})
	if err != nil {
		return domain.RegisterCloseResponse{}, err
	}

	s.invalidateStatus(ctx, restaurantID, actor.UserID)
	s.logAudit(ctx, restaurantID, "register_close", "register", reg.ID,
		fmt.Sprintf("actual=%s,discrepancy=%s", summary.ActualBalance.StringFixed(2), summary.Discrepancy.StringFixed(2)))
	if completed != nil {
		s.logAudit(ctx, restaurantID, "check_out", "check_in", completed.ID, "register="+reg.ID)
	}
	return domain.RegisterCloseResponse{Register: *reg, Summary: summary}, nil
}

// completeBoundCheckIn checks the operator out when their ACTIVE record is
// bound to the register being closed. It returns nil when there is none.
func completeBoundCheckIn(ctx context.Context, tx store.Tx, operatorID string, registerID string, notes string, now time.Time) (*domain.CheckInRecord, error) {
	record, err := tx.FindActiveCheckIn(ctx, operatorID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if record.RegisterID != registerID {
		return nil, nil
	}
	if err := record.Complete(now, notes); err != nil {
		return nil, nil
	}
	if err := tx.UpdateCheckIn(ctx, *record, domain.CheckInStatusActive); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

// closeRegister reconciles counted cash against the replayed ledger and, on a
// discrepancy, appends the corrective movement that makes replay reproduce
// the recorded closing balance.
func (s *Service) closeRegister(ctx context.Context, tx store.Tx, reg *domain.Register, operatorID string, countedCash decimal.Decimal, notes string, counts []domain.DenominationCount, now time.Time) (*domain.Register, domain.CloseSummary, error) {
	if reg.Status != domain.RegisterStatusOpen {
		return nil, domain.CloseSummary{}, errRegisterNotOpen
	}
	movements, err := tx.ListMovements(ctx, reg.ID)
	if err != nil {
		return nil, domain.CloseSummary{}, err
	}

	expected := ledger.Replay(*reg, movements)
	if err := reg.Close(expected, countedCash, now, notes); err != nil {
		return nil, domain.CloseSummary{}, errRegisterNotOpen
	}
	actual := *reg.ActualBalance
	discrepancy := actual.Sub(expected.Total)

	if err := tx.UpdateRegisterClosing(ctx, *reg); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domain.CloseSummary{}, errRegisterNotOpen
		}
		return nil, domain.CloseSummary{}, err
	}
	if d := denominationsFor(reg.ID, domain.DenominationsClosing, counts, now); d != nil {
		if err := tx.SaveDenominations(ctx, *d); err != nil {
			return nil, domain.CloseSummary{}, err
		}
		reg.ClosingDenominations = d
	}

	summary := domain.CloseSummary{
		Opening:       reg.Opening(),
		Expected:      expected,
		ActualBalance: actual,
		Discrepancy:   discrepancy,
	}
	if kind, amount, ok := ledger.Correction(discrepancy); ok {
		correction := domain.Movement{
			ID:            xid.New("ctx"),
			RegisterID:    reg.ID,
			Type:          kind,
			Amount:        amount,
			PaymentMethod: domain.PaymentCash,
			Source:        domain.SourceManual,
			Description:   domain.NoteClosingDiscrepancy,
			PerformedBy:   operatorID,
			CreatedAt:     now,
		}
		if err := tx.AppendMovement(ctx, correction); err != nil {
			return nil, domain.CloseSummary{}, err
		}
		movements = append(movements, correction)
		summary.Correction = &correction
	}
	reg.Movements = movements
	return reg, summary, nil
}

// forceCloseRegister closes at the replayed balances. store.ErrNotFound means
// somebody else already closed it.
func (s *Service) forceCloseRegister(ctx context.Context, tx store.Tx, reg *domain.Register, note string, now time.Time) error {
	if reg.Status != domain.RegisterStatusOpen {
		return store.ErrNotFound
	}
	movements, err := tx.ListMovements(ctx, reg.ID)
	if err != nil {
		return err
	}
	if err := reg.ForceClose(ledger.Replay(*reg, movements), now, note); err != nil {
		return store.ErrNotFound
	}
	return tx.UpdateRegisterClosing(ctx, *reg)
}

func (s *Service) GetRegister(ctx context.Context, registerID string) (domain.RegisterDetailResponse, error) {
	actor, restaurantID, err := s.authorize(ctx, "")
	if err != nil {
		return domain.RegisterDetailResponse{}, err
	}

	var resp domain.RegisterDetailResponse
	err = s.repo.ReadTx(ctx, func(tx store.Tx) error {
		reg, err := tx.GetRegister(ctx, registerID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return errRegisterNotFound
			}
			return err
		}
		if reg.RestaurantID != restaurantID {
			return errRegisterNotFound
		}
		if actor.Role != domain.RoleAdmin && reg.OpenedBy != actor.UserID {
			return errRegisterNotFound
		}
		movements, err := tx.ListMovements(ctx, reg.ID)
		if err != nil {
			return err
		}
		reg.Movements = movements
		resp = domain.RegisterDetailResponse{Register: *reg, Balances: ledger.Replay(*reg, movements)}
		return nil
	})
	if err != nil {
		return domain.RegisterDetailResponse{}, err
	}
	return resp, nil
}

func (s *Service) ListRegisters(ctx context.Context, restaurantID string, date string, status string, limit int) (domain.RegisterListResponse, error) {
	_, restaurantID, err := s.authorizeAdmin(ctx, restaurantID)
	if err != nil {
		return domain.RegisterListResponse{}, err
	}
	switch status {
	case "", domain.RegisterStatusOpen, domain.RegisterStatusClosed, domain.RegisterStatusForceClosed:
	default:
		return domain.RegisterListResponse{}, fmt.Errorf("%w: unknown register status %q", store.ErrInvalidInput, status)
	}
	from, to, err := s.dayRange(date)
	if err != nil {
		return domain.RegisterListResponse{}, err
	}

	registers, err := s.repo.ListRegisters(ctx, domain.RegisterFilter{
		RestaurantID: restaurantID,
		Status:       status,
		From:         from,
		To:           to,
		Limit:        limit,
	})
	if err != nil {
		return domain.RegisterListResponse{}, err
	}
	return domain.RegisterListResponse{Registers: registers}, nil
}
