// Package ledger replays register movements into balances. Everything here is
// pure: no I/O, no clock, and the result never depends on movement order.
package ledger

import (
	"github.com/shopspring/decimal"

	"dinedesk/backend/internal/domain"
)

// Fold returns opening + Σ CASH_IN − Σ CASH_OUT over the given movements.
func Fold(opening decimal.Decimal, movements []domain.Movement) decimal.Decimal {
	balance := opening
	for _, m := range movements {
		switch m.Type {
		case domain.MovementCashIn:
			balance = balance.Add(m.Amount)
		case domain.MovementCashOut:
			balance = balance.Sub(m.Amount)
		}
	}
	return balance
}

// FoldMethods folds only the movements whose payment method is in methods.
func FoldMethods(opening decimal.Decimal, movements []domain.Movement, methods ...string) decimal.Decimal {
	return Fold(opening, Filter(movements, methods...))
}

func Filter(movements []domain.Movement, methods ...string) []domain.Movement {
	out := make([]domain.Movement, 0, len(movements))
	for _, m := range movements {
		for _, method := range methods {
			if m.PaymentMethod == method {
				out = append(out, m)
				break
			}
		}
	}
	return out
}

// Replay computes per-method and aggregate balances of a register. The opening
// seed movement is skipped because the opening sub-balances already carry it.
func Replay(reg domain.Register, movements []domain.Movement) domain.Balances {
	replayed := withoutSeed(reg.OpeningMovementID, movements)
	opening := reg.Opening()
	return domain.Balances{
		Cash:  FoldMethods(opening.Cash, replayed, domain.PaymentCash),
		UPI:   FoldMethods(opening.UPI, replayed, domain.PaymentUPI),
		Card:  FoldMethods(opening.Card, replayed, domain.PaymentDebit, domain.PaymentCredit),
		Total: Fold(opening.Total, replayed),
	}
}

func withoutSeed(seedID string, movements []domain.Movement) []domain.Movement {
	if seedID == "" {
		return movements
	}
	out := make([]domain.Movement, 0, len(movements))
	for _, m := range movements {
		if m.ID == seedID {
			continue
		}
		out = append(out, m)
	}
	return out
}

// Correction builds the movement that brings the ledger in line with a counted
// discrepancy. It returns false when the discrepancy is zero.
func Correction(discrepancy decimal.Decimal) (kind string, amount decimal.Decimal, ok bool) {
	switch discrepancy.Sign() {
	case 1:
		return domain.MovementCashIn, discrepancy, true
	case -1:
		return domain.MovementCashOut, discrepancy.Abs(), true
	default:
		return "", decimal.Zero, false
	}
}
