package store

import (
	"context"
	"errors"
	"time"

	"dinedesk/backend/internal/domain"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidInput = errors.New("invalid input")
	ErrForbidden    = errors.New("forbidden")
)

// Tx is the unit of work handed to WithinTx and ReadTx callbacks. Every method
// observes and mutates the same transactional snapshot.
type Tx interface {
	GetRegister(ctx context.Context, id string) (*domain.Register, error)
	// LockRegister is GetRegister plus a row lock held until the transaction ends.
	LockRegister(ctx context.Context, id string) (*domain.Register, error)
	FindOpenRegister(ctx context.Context, restaurantID string, operatorID string) (*domain.Register, error)
	FindOpenRegisterByOperator(ctx context.Context, operatorID string) (*domain.Register, error)
	ListOpenRegisters(ctx context.Context, restaurantID string) ([]domain.Register, error)
	CreateRegister(ctx context.Context, reg domain.Register) (*domain.Register, error)
	// UpdateRegisterClosing persists a terminal register. It returns ErrNotFound
	// when the stored row is no longer OPEN.
	UpdateRegisterClosing(ctx context.Context, reg domain.Register) error
	SaveDenominations(ctx context.Context, denominations domain.Denominations) error
	AppendMovement(ctx context.Context, movement domain.Movement) error
	ListMovements(ctx context.Context, registerID string) ([]domain.Movement, error)
	ListRecentMovements(ctx context.Context, registerID string, limit int) ([]domain.Movement, error)

	GetCheckIn(ctx context.Context, id string) (*domain.CheckInRecord, error)
	FindActiveCheckIn(ctx context.Context, staffID string) (*domain.CheckInRecord, error)
	FindCheckIn(ctx context.Context, staffID string, status string, date string) (*domain.CheckInRecord, error)
	FindActiveCheckInBefore(ctx context.Context, staffID string, date string) (*domain.CheckInRecord, error)
	ListActiveCheckIns(ctx context.Context, restaurantID string) ([]domain.CheckInRecord, error)
	CreateCheckIn(ctx context.Context, record domain.CheckInRecord) (*domain.CheckInRecord, error)
	// UpdateCheckIn persists a transition. fromStatus guards against a
	// concurrent transition; a mismatch returns ErrNotFound.
	UpdateCheckIn(ctx context.Context, record domain.CheckInRecord, fromStatus string) error
}

type Repository interface {
	// WithinTx runs fn in one atomic read-write transaction. Any error from fn
	// rolls back every write made through the Tx.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
	ReadTx(ctx context.Context, fn func(tx Tx) error) error

	ListRegisters(ctx context.Context, filter domain.RegisterFilter) ([]domain.Register, error)

	GetRestaurant(ctx context.Context, id string) (*domain.Restaurant, error)
	ListRestaurants(ctx context.Context) ([]domain.Restaurant, error)

	GetUser(ctx context.Context, id string) (*domain.UserAccount, error)
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, restaurantID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
}
