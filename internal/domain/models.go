package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	RegisterStatusOpen        = "OPEN"
	RegisterStatusClosed      = "CLOSED"
	RegisterStatusForceClosed = "FORCE_CLOSED"

	CheckInStatusActive      = "ACTIVE"
	CheckInStatusCompleted   = "COMPLETED"
	CheckInStatusForceClosed = "FORCE_CLOSED"
	CheckInStatusStale       = "STALE"

	MovementCashIn  = "CASH_IN"
	MovementCashOut = "CASH_OUT"

	PaymentCash   = "CASH"
	PaymentUPI    = "UPI"
	PaymentDebit  = "DEBIT"
	PaymentCredit = "CREDIT"

	SourceManual  = "MANUAL"
	SourceOrder   = "ORDER"
	SourceExpense = "EXPENSE"
	SourceRefund  = "REFUND"

	DenominationsOpening = "OPENING"
	DenominationsClosing = "CLOSING"

	RoleAdmin  = "admin"
	RoleStaff  = "staff"
	RoleSystem = "system"
)

const (
	NoteOpeningBalance      = "opening balance"
	NoteClosingDiscrepancy  = "balance discrepancy at closing"
	NoteEndOfDayAutoClose   = "auto-closed during EOD process"
	NoteNextCheckInRecovery = "auto-closed on next check-in"
)

type Restaurant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type Actor struct {
	UserID       string
	Username     string
	Role         string
	RestaurantID string
}

type UserAccount struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Password     string    `json:"-"`
	Role         string    `json:"role"`
	RestaurantID string    `json:"restaurant_id"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken  string `json:"access_token"`
	UserID       string `json:"user_id"`
	Role         string `json:"role"`
	RestaurantID string `json:"restaurant_id"`
	ExpiresAt    string `json:"expires_at"`
}

type StaffCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type StaffUser struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Role         string    `json:"role"`
	RestaurantID string    `json:"restaurant_id"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// DenominationCount is one note or coin face value and how many of it were counted.
type DenominationCount struct {
	Value decimal.Decimal `json:"value"`
	Count int             `json:"count"`
}

// Denominations is the immutable cash count attached to a register's opening or closing.
type Denominations struct {
	RegisterID string              `json:"register_id"`
	Kind       string              `json:"kind"`
	Counts     []DenominationCount `json:"counts"`
	Total      decimal.Decimal     `json:"total"`
	CreatedAt  time.Time           `json:"created_at"`
}

type Movement struct {
	ID            string          `json:"id"`
	RegisterID    string          `json:"register_id"`
	Type          string          `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method"`
	Source        string          `json:"source"`
	Description   string          `json:"description"`
	PerformedBy   string          `json:"performed_by"`
	CreatedAt     time.Time       `json:"created_at"`
}

type Register struct {
	ID                 string          `json:"id"`
	RestaurantID       string          `json:"restaurant_id"`
	OpenedBy           string          `json:"opened_by"`
	Status             string          `json:"status"`
	OpeningBalance     decimal.Decimal `json:"opening_balance"`
	OpeningCashBalance decimal.Decimal `json:"opening_cash_balance"`
	OpeningUPIBalance  decimal.Decimal `json:"opening_upi_balance"`
	OpeningCardBalance decimal.Decimal `json:"opening_card_balance"`
	OpeningNotes       string          `json:"opening_notes,omitempty"`
	OpeningMovementID  string          `json:"opening_movement_id"`
	OpenedAt           time.Time       `json:"opened_at"`

	ClosingBalance     *decimal.Decimal `json:"closing_balance,omitempty"`
	ClosingCashBalance *decimal.Decimal `json:"closing_cash_balance,omitempty"`
	ClosingUPIBalance  *decimal.Decimal `json:"closing_upi_balance,omitempty"`
	ClosingCardBalance *decimal.Decimal `json:"closing_card_balance,omitempty"`
	ActualBalance      *decimal.Decimal `json:"actual_balance,omitempty"`
	ClosedAt           *time.Time       `json:"closed_at,omitempty"`
	ClosingNotes       string           `json:"closing_notes,omitempty"`

	OpeningDenominations *Denominations `json:"opening_denominations,omitempty"`
	ClosingDenominations *Denominations `json:"closing_denominations,omitempty"`
	Movements            []Movement     `json:"movements,omitempty"`
}

type CheckInRecord struct {
	ID           string     `json:"id"`
	StaffID      string     `json:"staff_id"`
	RestaurantID string     `json:"restaurant_id"`
	Date         string     `json:"date"`
	Status       string     `json:"status"`
	CheckInTime  *time.Time `json:"check_in_time,omitempty"`
	CheckOutTime *time.Time `json:"check_out_time,omitempty"`
	RegisterID   string     `json:"register_id,omitempty"`
	Notes        string     `json:"notes,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Balances are ledger replay results. Card folds DEBIT and CREDIT together.
type Balances struct {
	Cash  decimal.Decimal `json:"cash"`
	UPI   decimal.Decimal `json:"upi"`
	Card  decimal.Decimal `json:"card"`
	Total decimal.Decimal `json:"total"`
}

type OpeningBalances struct {
	Total decimal.Decimal `json:"total"`
	Cash  decimal.Decimal `json:"cash"`
	UPI   decimal.Decimal `json:"upi"`
	Card  decimal.Decimal `json:"card"`
}

type CloseSummary struct {
	Opening       OpeningBalances `json:"opening"`
	Expected      Balances        `json:"expected"`
	ActualBalance decimal.Decimal `json:"actual_balance"`
	Discrepancy   decimal.Decimal `json:"discrepancy"`
	Correction    *Movement       `json:"correction,omitempty"`
}

type RegisterOpenRequest struct {
	RestaurantID   string              `json:"restaurant_id"`
	OpeningBalance decimal.Decimal     `json:"opening_balance"`
	Notes          string              `json:"notes,omitempty"`
	Denominations  []DenominationCount `json:"denominations,omitempty"`
}

type RegisterCloseRequest struct {
	RegisterID         string              `json:"register_id"`
	CountedCashBalance decimal.Decimal     `json:"counted_cash_balance"`
	Notes              string              `json:"notes,omitempty"`
	Denominations      []DenominationCount `json:"denominations,omitempty"`
}

type RegisterResponse struct {
	Register Register `json:"register"`
}

type RegisterCloseResponse struct {
	Register Register     `json:"register"`
	Summary  CloseSummary `json:"summary"`
}

type RegisterDetailResponse struct {
	Register Register `json:"register"`
	Balances Balances `json:"balances"`
}

type RegisterListResponse struct {
	Registers []Register `json:"registers"`
}

type RegisterFilter struct {
	RestaurantID string
	Status       string
	From         time.Time
	To           time.Time
	Limit        int
}

type MovementRecordRequest struct {
	RestaurantID  string          `json:"restaurant_id"`
	Type          string          `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method"`
	Source        string          `json:"source"`
	Description   string          `json:"description"`
}

type MovementRecordResponse struct {
	Movement Movement `json:"movement"`
	Balances Balances `json:"balances"`
}

type CheckInRequest struct {
	RestaurantID   string              `json:"restaurant_id"`
	OpeningBalance decimal.Decimal     `json:"opening_balance"`
	Notes          string              `json:"notes,omitempty"`
	Denominations  []DenominationCount `json:"denominations,omitempty"`
}

type CheckInResponse struct {
	CheckIn  CheckInRecord `json:"check_in"`
	Register Register      `json:"register"`
}

type CheckOutRequest struct {
	CountedCashBalance decimal.Decimal     `json:"counted_cash_balance"`
	Notes              string              `json:"notes,omitempty"`
	Denominations      []DenominationCount `json:"denominations,omitempty"`
}

type CheckOutResponse struct {
	CheckIn  CheckInRecord `json:"check_in"`
	Register Register      `json:"register"`
	Summary  CloseSummary  `json:"summary"`
}

type CheckInPlanRequest struct {
	StaffID      string `json:"staff_id"`
	RestaurantID string `json:"restaurant_id"`
	Date         string `json:"date"`
}

type EndOfDayRequest struct {
	RestaurantID string `json:"restaurant_id"`
}

type EndOfDayResult struct {
	RestaurantID    string   `json:"restaurant_id"`
	ClosedCheckIns  int      `json:"closed_check_ins"`
	ClosedRegisters int      `json:"closed_registers"`
	CheckInIDs      []string `json:"check_in_ids,omitempty"`
	RegisterIDs     []string `json:"register_ids,omitempty"`
	ProcessedAt     string   `json:"processed_at"`
}

type RegisterStatus struct {
	HasActiveRegister bool           `json:"has_active_register"`
	RegisterID        string         `json:"register_id,omitempty"`
	OpenedAt          *time.Time     `json:"opened_at,omitempty"`
	CurrentBalance    Balances       `json:"current_balance"`
	LastTransactions  []Movement     `json:"last_transactions"`
	Denominations     *Denominations `json:"denominations,omitempty"`
}

type AuditLog struct {
	ID           string    `json:"id"`
	RestaurantID string    `json:"restaurant_id"`
	ActorID      string    `json:"actor_id"`
	ActorRole    string    `json:"actor_role"`
	Action       string    `json:"action"`
	EntityType   string    `json:"entity_type"`
	EntityID     string    `json:"entity_id"`
	Detail       string    `json:"detail"`
	CreatedAt    time.Time `json:"created_at"`
}
