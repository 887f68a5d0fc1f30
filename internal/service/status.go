package service

import (
	"context"
	"errors"
	"log"

	"dinedesk/backend/internal/cache"
	"dinedesk/backend/internal/domain"
	"dinedesk/backend/internal/ledger"
	"dinedesk/backend/internal/store"
)

// GetStatus reports the live balances of the caller's OPEN register. Without
// one it returns zeroed balances, whatever the caller's history.
func (s *Service) GetStatus(ctx context.Context, restaurantID string) (domain.RegisterStatus, error) {
	actor, restaurantID, err := s.authorize(ctx, restaurantID)
	if err != nil {
		return domain.RegisterStatus{}, err
	}

	key := cache.StatusKey(restaurantID, actor.UserID)
	if cached, ok, err := s.cache.Get(ctx, key); err != nil {
		log.Printf("[service] WARN: status cache read failed key=%s: %v", key, err)
	} else if ok && cached != nil {
		return *cached, nil
	}

	status := domain.RegisterStatus{LastTransactions: []domain.Movement{}}
	err = s.repo.ReadTx(ctx, func(tx store.Tx) error {
		reg, err := tx.FindOpenRegister(ctx, restaurantID, actor.UserID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil
			}
			return err
		}
		movements, err := tx.ListMovements(ctx, reg.ID)
		if err != nil {
			return err
		}
		recent, err := tx.ListRecentMovements(ctx, reg.ID, s.recentLimit)
		if err != nil {
			return err
		}

		openedAt := reg.OpenedAt
		status.HasActiveRegister = true
		status.RegisterID = reg.ID
		status.OpenedAt = &openedAt
		status.CurrentBalance = ledger.Replay(*reg, movements)
		status.LastTransactions = recent
		status.Denominations = reg.OpeningDenominations
		return nil
	})
	if err != nil {
		return domain.RegisterStatus{}, err
	}

	if err := s.cache.Set(ctx, key, &status, s.statusTTL); err != nil {
		log.Printf("[service] WARN: status cache write failed key=%s: %v", key, err)
	}
	return status, nil
}
