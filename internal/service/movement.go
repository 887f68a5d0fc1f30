package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"dinedesk/backend/internal/domain"
	"dinedesk/backend/internal/ledger"
	"dinedesk/backend/internal/store"
	"dinedesk/backend/internal/xid"
)

// RecordMovement appends a cash in/out to the caller's OPEN register. Order
// settlement and expense writers go through here with their own source tag.
func (s *Service) RecordMovement(ctx context.Context, req domain.MovementRecordRequest) (domain.MovementRecordResponse, error) {
	req.Type = strings.ToUpper(strings.TrimSpace(req.Type))
	req.PaymentMethod = strings.ToUpper(strings.TrimSpace(req.PaymentMethod))
	req.Source = strings.ToUpper(strings.TrimSpace(req.Source))
	if req.Source == "" {
		req.Source = domain.SourceManual
	}
	if !req.Amount.IsPositive() {
		return domain.MovementRecordResponse{}, fmt.Errorf("%w: amount must be > 0", store.ErrInvalidInput)
	}
	if !domain.IsValidMovementType(req.Type) {
		return domain.MovementRecordResponse{}, fmt.Errorf("%w: unknown movement type %q", store.ErrInvalidInput, req.Type)
	}
	if !domain.IsValidPaymentMethod(req.PaymentMethod) {
		return domain.MovementRecordResponse{}, fmt.Errorf("%w: unknown payment method %q", store.ErrInvalidInput, req.PaymentMethod)
	}
	if !domain.IsValidSource(req.Source) {
		return domain.MovementRecordResponse{}, fmt.Errorf("%w: unknown source %q", store.ErrInvalidInput, req.Source)
	}
	actor, restaurantID, err := s.authorize(ctx, req.RestaurantID)
	if err != nil {
		return domain.MovementRecordResponse{}, err
	}

	now := s.clock()
	var resp domain.MovementRecordResponse
	err = s.repo.WithinTx(ctx, func(tx store.Tx) error {
		open, err := tx.FindOpenRegister(ctx, restaurantID, actor.UserID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%w: no active register", store.ErrNotFound)
			}
			return err
		}
		reg, err := tx.LockRegister(ctx, open.ID)
		if err != nil {
			return err
		}
		if reg.Status != domain.RegisterStatusOpen {
			return errRegisterNotOpen
		}

		movement := domain.Movement{
			ID:            xid.New("ctx"),
			RegisterID:    reg.ID,
			Type:          req.Type,
			Amount:        req.Amount,
			PaymentMethod: req.PaymentMethod,
			Source:        req.Source,
			Description:   strings.TrimSpace(req.Description),
			PerformedBy:   actor.UserID,
			CreatedAt:     now,
		}
		if err := tx.AppendMovement(ctx, movement); err != nil {
			return err
		}
		movements, err := tx.ListMovements(ctx, reg.ID)
		if err != nil {
			return err
		}
		resp = domain.MovementRecordResponse{Movement: movement, Balances: ledger.Replay(*reg, movements)}
		return nil
	})
	if err != nil {
		return domain.MovementRecordResponse{}, err
	}

	s.invalidateStatus(ctx, restaurantID, actor.UserID)
	s.logAudit(ctx, restaurantID, "movement_record", "register", resp.Movement.RegisterID,
		fmt.Sprintf("%s %s %s via %s", resp.Movement.Type, resp.Movement.Amount.StringFixed(2), resp.Movement.PaymentMethod, resp.Movement.Source))
	return resp, nil
}
