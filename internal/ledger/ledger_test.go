package ledger

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"

	"dinedesk/backend/internal/domain"
)

func mv(id, kind, method string, amount string) domain.Movement {
	return domain.Movement{
		ID:            id,
		Type:          kind,
		PaymentMethod: method,
		Amount:        decimal.RequireFromString(amount),
	}
}

func TestFoldEmptyReturnsOpening(t *testing.T) {
	opening := decimal.RequireFromString("1250.50")
	if got := Fold(opening, nil); !got.Equal(opening) {
		t.Fatalf("expected %s, got %s", opening, got)
	}
	if got := Fold(opening, []domain.Movement{}); !got.Equal(opening) {
		t.Fatalf("expected %s for empty slice, got %s", opening, got)
	}
}

func TestFoldIsOrderIndependent(t *testing.T) {
	movements := []domain.Movement{
		mv("m1", domain.MovementCashIn, domain.PaymentCash, "120.25"),
		mv("m2", domain.MovementCashOut, domain.PaymentCash, "40"),
		mv("m3", domain.MovementCashIn, domain.PaymentUPI, "999.99"),
		mv("m4", domain.MovementCashOut, domain.PaymentDebit, "15.10"),
		mv("m5", domain.MovementCashIn, domain.PaymentCredit, "300"),
		mv("m6", domain.MovementCashOut, domain.PaymentUPI, "0.01"),
	}
	opening := decimal.NewFromInt(500)
	want := Fold(opening, movements)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 50; i++ {
		shuffled := append([]domain.Movement(nil), movements...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		if got := Fold(opening, shuffled); !got.Equal(want) {
			t.Fatalf("permutation %d: expected %s, got %s", i, want, got)
		}
	}
	if !want.Equal(decimal.RequireFromString("1865.13")) {
		t.Fatalf("unexpected aggregate %s", want)
	}
}

func TestReplaySplitsByPaymentMethod(t *testing.T) {
	reg := domain.Register{
		OpeningBalance:     decimal.NewFromInt(1000),
		OpeningCashBalance: decimal.NewFromInt(1000),
		OpeningUPIBalance:  decimal.Zero,
		OpeningCardBalance: decimal.Zero,
		OpeningMovementID:  "seed",
	}
	movements := []domain.Movement{
		mv("seed", domain.MovementCashIn, domain.PaymentCash, "1000"),
		mv("m1", domain.MovementCashIn, domain.PaymentUPI, "500"),
		mv("m2", domain.MovementCashOut, domain.PaymentCash, "200"),
		mv("m3", domain.MovementCashIn, domain.PaymentDebit, "70"),
		mv("m4", domain.MovementCashIn, domain.PaymentCredit, "30"),
	}

	got := Replay(reg, movements)
	checks := map[string][2]decimal.Decimal{
		"cash":  {got.Cash, decimal.NewFromInt(800)},
		"upi":   {got.UPI, decimal.NewFromInt(500)},
		"card":  {got.Card, decimal.NewFromInt(100)},
		"total": {got.Total, decimal.NewFromInt(1400)},
	}
	for name, pair := range checks {
		if !pair[0].Equal(pair[1]) {
			t.Fatalf("%s: expected %s, got %s", name, pair[1], pair[0])
		}
	}
}

func TestCorrectionDirection(t *testing.T) {
	kind, amount, ok := Correction(decimal.NewFromInt(-10))
	if !ok || kind != domain.MovementCashOut || !amount.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected CASH_OUT 10, got %v %s %s", ok, kind, amount)
	}
	kind, amount, ok = Correction(decimal.RequireFromString("2.5"))
	if !ok || kind != domain.MovementCashIn || !amount.Equal(decimal.RequireFromString("2.5")) {
		t.Fatalf("expected CASH_IN 2.5, got %v %s %s", ok, kind, amount)
	}
	if _, _, ok := Correction(decimal.Zero); ok {
		t.Fatalf("expected no correction for zero discrepancy")
	}
}
