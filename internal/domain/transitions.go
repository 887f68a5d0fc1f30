package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var ErrInvalidTransition = errors.New("invalid state transition")

// IsTerminal reports whether the register can no longer change state.
func (r *Register) IsTerminal() bool {
	return r.Status == RegisterStatusClosed || r.Status == RegisterStatusForceClosed
}

// Close records an operator-confirmed closing snapshot.
func (r *Register) Close(expected Balances, countedCash decimal.Decimal, at time.Time, notes string) error {
	if r.Status != RegisterStatusOpen {
		return fmt.Errorf("%w: register %s is %s", ErrInvalidTransition, r.ID, r.Status)
	}
	total := countedCash.Add(expected.UPI).Add(expected.Card)
	r.Status = RegisterStatusClosed
	r.setClosing(total, countedCash, expected.UPI, expected.Card, at, notes)
	return nil
}

// ForceClose closes the register at its replayed balances; nobody counted the drawer.
func (r *Register) ForceClose(expected Balances, at time.Time, notes string) error {
	if r.Status != RegisterStatusOpen {
		return fmt.Errorf("%w: register %s is %s", ErrInvalidTransition, r.ID, r.Status)
	}
	r.Status = RegisterStatusForceClosed
	r.setClosing(expected.Total, expected.Cash, expected.UPI, expected.Card, at, notes)
	return nil
}

func (r *Register) setClosing(total, cash, upi, card decimal.Decimal, at time.Time, notes string) {
	actual := total
	r.ClosingBalance = &total
	r.ClosingCashBalance = &cash
	r.ClosingUPIBalance = &upi
	r.ClosingCardBalance = &card
	r.ActualBalance = &actual
	r.ClosedAt = &at
	r.ClosingNotes = notes
}

// Opening returns the opening sub-balances used to seed ledger replay.
func (r *Register) Opening() OpeningBalances {
	return OpeningBalances{
		Total: r.OpeningBalance,
		Cash:  r.OpeningCashBalance,
		UPI:   r.OpeningUPIBalance,
		Card:  r.OpeningCardBalance,
	}
}

// Activate binds a STALE slot to a freshly opened register.
func (c *CheckInRecord) Activate(registerID string, date string, at time.Time, notes string) error {
	if c.Status != CheckInStatusStale {
		return fmt.Errorf("%w: check-in %s is %s", ErrInvalidTransition, c.ID, c.Status)
	}
	c.Status = CheckInStatusActive
	c.CheckInTime = &at
	c.CheckOutTime = nil
	c.RegisterID = registerID
	c.Date = date
	c.Notes = notes
	return nil
}

// Complete ends an ACTIVE shift at checkout. Any other status is an
// ErrInvalidTransition.
func (c *CheckInRecord) Complete(at time.Time, notes string) error {
	if c.Status != CheckInStatusActive {
		return fmt.Errorf("%w: check-in %s is %s", ErrInvalidTransition, c.ID, c.Status)
	}
	c.Status = CheckInStatusCompleted
	c.CheckOutTime = &at
	c.Notes = notes
	return nil
}

// ForceClose ends an ACTIVE shift nobody checked out of, stamping the
// recovery note. Any other status is an ErrInvalidTransition.
func (c *CheckInRecord) ForceClose(at time.Time, notes string) error {
	if c.Status != CheckInStatusActive {
		return fmt.Errorf("%w: check-in %s is %s", ErrInvalidTransition, c.ID, c.Status)
	}
	c.Status = CheckInStatusForceClosed
	c.CheckOutTime = &at
	c.Notes = notes
	return nil
}

// SumDenominations returns Σ(value × count) over the counted denominations.
func SumDenominations(counts []DenominationCount) decimal.Decimal {
	total := decimal.Zero
	for _, c := range counts {
		total = total.Add(c.Value.Mul(decimal.NewFromInt(int64(c.Count))))
	}
	return total
}

func IsValidPaymentMethod(method string) bool {
	switch method {
	case PaymentCash, PaymentUPI, PaymentDebit, PaymentCredit:
		return true
	default:
		return false
	}
}

func IsValidMovementType(kind string) bool {
	return kind == MovementCashIn || kind == MovementCashOut
}

func IsValidSource(source string) bool {
	switch source {
	case SourceManual, SourceOrder, SourceExpense, SourceRefund:
		return true
	default:
		return false
	}
}
