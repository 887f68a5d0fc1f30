package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"dinedesk/backend/internal/domain"
	"dinedesk/backend/internal/store"
)

// ProcessEndOfDay force-closes every ACTIVE check-in and OPEN register of a
// restaurant in one transaction. Rows closed concurrently are skipped, so a
// second run reports zero.
func (s *Service) ProcessEndOfDay(ctx context.Context, restaurantID string) (domain.EndOfDayResult, error) {
	_, restaurantID, err := s.authorizeAdmin(ctx, restaurantID)
	if err != nil {
		return domain.EndOfDayResult{}, err
	}

	now := s.clock()
	result := domain.EndOfDayResult{RestaurantID: restaurantID}
	var operators []string
	err = s.repo.WithinTx(ctx, func(tx store.Tx) error {
		result.CheckInIDs = nil
		result.RegisterIDs = nil
		operators = operators[:0]

		checkIns, err := tx.ListActiveCheckIns(ctx, restaurantID)
		if err != nil {
			return err
		}
		for i := range checkIns {
			record := &checkIns[i]
			if err := record.ForceClose(now, domain.NoteEndOfDayAutoClose); err != nil {
				continue
			}
			if err := tx.UpdateCheckIn(ctx, *record, domain.CheckInStatusActive); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					continue
				}
				return err
			}
			result.CheckInIDs = append(result.CheckInIDs, record.ID)
			operators = append(operators, record.StaffID)
		}

		registers, err := tx.ListOpenRegisters(ctx, restaurantID)
		if err != nil {
			return err
		}
		for i := range registers {
			reg := &registers[i]
			if err := s.forceCloseRegister(ctx, tx, reg, domain.NoteEndOfDayAutoClose, now); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					continue
				}
				return err
			}
			result.RegisterIDs = append(result.RegisterIDs, reg.ID)
			operators = append(operators, reg.OpenedBy)
		}
		return nil
	})
	if err != nil {
		return domain.EndOfDayResult{}, err
	}

	result.ClosedCheckIns = len(result.CheckInIDs)
	result.ClosedRegisters = len(result.RegisterIDs)
	result.ProcessedAt = now.Format(time.RFC3339)
	log.Printf("[service] end-of-day restaurant=%s closed_check_ins=%d closed_registers=%d",
		restaurantID, result.ClosedCheckIns, result.ClosedRegisters)

	if result.ClosedCheckIns+result.ClosedRegisters > 0 {
		s.invalidateStatus(ctx, restaurantID, operators...)
		s.logAudit(ctx, restaurantID, "eod_process", "restaurant", restaurantID,
			fmt.Sprintf("check_ins=%d,registers=%d", result.ClosedCheckIns, result.ClosedRegisters))
	}
	return result, nil
}
