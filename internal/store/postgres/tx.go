package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"dinedesk/backend/internal/domain"
	"dinedesk/backend/internal/store"
	"dinedesk/backend/internal/xid"
)

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// queries implements store.Tx. locking is false for read-only transactions,
// where FOR UPDATE is rejected by the server.
type queries struct {
	db      dbtx
	locking bool
}

func (q *queries) forUpdate() string {
	if q.locking {
		return " FOR UPDATE"
	}
	return ""
}

const registerColumns = `id, restaurant_id, opened_by, status,
	opening_balance, opening_cash_balance, opening_upi_balance, opening_card_balance,
	opening_notes, opening_movement_id, opened_at,
	closing_balance, closing_cash_balance, closing_upi_balance, closing_card_balance,
	actual_balance, closed_at, closing_notes`

func scanRegister(row rowScanner) (domain.Register, error) {
	var reg domain.Register
	var closing, closingCash, closingUPI, closingCard, actual decimal.NullDecimal
	var closedAt sql.NullTime
	err := row.Scan(
		&reg.ID,
		&reg.RestaurantID,
		&reg.OpenedBy,
		&reg.Status,
		&reg.OpeningBalance,
		&reg.OpeningCashBalance,
		&reg.OpeningUPIBalance,
		&reg.OpeningCardBalance,
		&reg.OpeningNotes,
		&reg.OpeningMovementID,
		&reg.OpenedAt,
		&closing,
		&closingCash,
		&closingUPI,
		&closingCard,
		&actual,
		&closedAt,
		&reg.ClosingNotes,
	)
	if err != nil {
		return reg, err
	}
	reg.OpenedAt = reg.OpenedAt.UTC()
	reg.ClosingBalance = decimalPtr(closing)
	reg.ClosingCashBalance = decimalPtr(closingCash)
	reg.ClosingUPIBalance = decimalPtr(closingUPI)
	reg.ClosingCardBalance = decimalPtr(closingCard)
	reg.ActualBalance = decimalPtr(actual)
	if closedAt.Valid {
		at := closedAt.Time.UTC()
		reg.ClosedAt = &at
	}
	return reg, nil
}

func (q *queries) queryRegisters(ctx context.Context, query string, args ...any) ([]domain.Register, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	registers := make([]domain.Register, 0, 16)
	for rows.Next() {
		reg, err := scanRegister(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		registers = append(registers, reg)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if err := q.attachDenominations(ctx, registers); err != nil {
		return nil, err
	}
	return registers, nil
}

func (q *queries) getRegister(ctx context.Context, query string, args ...any) (*domain.Register, error) {
	reg, err := scanRegister(q.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	list := []domain.Register{reg}
	if err := q.attachDenominations(ctx, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

func (q *queries) attachDenominations(ctx context.Context, registers []domain.Register) error {
	if len(registers) == 0 {
		return nil
	}
	ids := make([]string, 0, len(registers))
	index := make(map[string]int, len(registers))
	for i, reg := range registers {
		ids = append(ids, reg.ID)
		index[reg.ID] = i
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT register_id, kind, counts, total, created_at
		FROM register_denominations
		WHERE register_id = ANY($1)
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var d domain.Denominations
		var raw []byte
		if err := rows.Scan(&d.RegisterID, &d.Kind, &raw, &d.Total, &d.CreatedAt); err != nil {
			return err
		}
		if err := json.Unmarshal(raw, &d.Counts); err != nil {
			return err
		}
		d.CreatedAt = d.CreatedAt.UTC()
		reg := &registers[index[d.RegisterID]]
		switch d.Kind {
		case domain.DenominationsOpening:
			reg.OpeningDenominations = &d
		case domain.DenominationsClosing:
			reg.ClosingDenominations = &d
		}
	}
	return rows.Err()
}

func (q *queries) GetRegister(ctx context.Context, id string) (*domain.Register, error) {
	return q.getRegister(ctx, `SELECT `+registerColumns+` FROM registers WHERE id = $1`, id)
}

func (q *queries) LockRegister(ctx context.Context, id string) (*domain.Register, error) {
	return q.getRegister(ctx, `SELECT `+registerColumns+` FROM registers WHERE id = $1`+q.forUpdate(), id)
}

func (q *queries) FindOpenRegister(ctx context.Context, restaurantID string, operatorID string) (*domain.Register, error) {
	return q.getRegister(ctx, `
		SELECT `+registerColumns+`
		FROM registers
		WHERE restaurant_id = $1 AND opened_by = $2 AND status = 'OPEN'`+q.forUpdate(),
		restaurantID, operatorID)
}

func (q *queries) FindOpenRegisterByOperator(ctx context.Context, operatorID string) (*domain.Register, error) {
	return q.getRegister(ctx, `
		SELECT `+registerColumns+`
		FROM registers
		WHERE opened_by = $1 AND status = 'OPEN'
		ORDER BY opened_at DESC
		LIMIT 1`+q.forUpdate(),
		operatorID)
}

func (q *queries) ListOpenRegisters(ctx context.Context, restaurantID string) ([]domain.Register, error) {
	return q.queryRegisters(ctx, `
		SELECT `+registerColumns+`
		FROM registers
		WHERE restaurant_id = $1 AND status = 'OPEN'
		ORDER BY opened_at, id`+q.forUpdate(),
		restaurantID)
}

func (q *queries) CreateRegister(ctx context.Context, reg domain.Register) (*domain.Register, error) {
	if strings.TrimSpace(reg.RestaurantID) == "" || strings.TrimSpace(reg.OpenedBy) == "" {
		return nil, store.ErrInvalidInput
	}
	if reg.ID == "" {
		reg.ID = xid.New("reg")
	}
	if reg.OpenedAt.IsZero() {
		reg.OpenedAt = time.Now().UTC()
	}
	reg.Status = domain.RegisterStatusOpen
	reg.OpeningDenominations = nil
	reg.ClosingDenominations = nil
	reg.Movements = nil

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO registers (
			id, restaurant_id, opened_by, status,
			opening_balance, opening_cash_balance, opening_upi_balance, opening_card_balance,
			opening_notes, opening_movement_id, opened_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, reg.ID, reg.RestaurantID, reg.OpenedBy, reg.Status,
		reg.OpeningBalance, reg.OpeningCashBalance, reg.OpeningUPIBalance, reg.OpeningCardBalance,
		reg.OpeningNotes, reg.OpeningMovementID, reg.OpenedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	saved := reg
	return &saved, nil
}

func (q *queries) UpdateRegisterClosing(ctx context.Context, reg domain.Register) error {
	if !reg.IsTerminal() {
		return store.ErrInvalidInput
	}

	res, err := q.db.ExecContext(ctx, `
		UPDATE registers
		SET status = $2,
			closing_balance = $3,
			closing_cash_balance = $4,
			closing_upi_balance = $5,
			closing_card_balance = $6,
			actual_balance = $7,
			closed_at = $8,
			closing_notes = $9
		WHERE id = $1 AND status = 'OPEN'
	`, reg.ID, reg.Status,
		nullDecimal(reg.ClosingBalance), nullDecimal(reg.ClosingCashBalance), nullDecimal(reg.ClosingUPIBalance),
		nullDecimal(reg.ClosingCardBalance), nullDecimal(reg.ActualBalance),
		nullTime(reg.ClosedAt), reg.ClosingNotes)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (q *queries) SaveDenominations(ctx context.Context, d domain.Denominations) error {
	if d.Kind != domain.DenominationsOpening && d.Kind != domain.DenominationsClosing {
		return store.ErrInvalidInput
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	counts := d.Counts
	if counts == nil {
		counts = []domain.DenominationCount{}
	}
	raw, err := json.Marshal(counts)
	if err != nil {
		return err
	}

	_, err = q.db.ExecContext(ctx, `
		INSERT INTO register_denominations (register_id, kind, counts, total, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, d.RegisterID, d.Kind, string(raw), d.Total, d.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		if isForeignKeyViolation(err) {
			return store.ErrNotFound
		}
		return err
	}
	return nil
}

func (q *queries) AppendMovement(ctx context.Context, m domain.Movement) error {
	if !m.Amount.IsPositive() || !domain.IsValidMovementType(m.Type) || !domain.IsValidPaymentMethod(m.PaymentMethod) {
		return store.ErrInvalidInput
	}
	if m.ID == "" {
		m.ID = xid.New("ctx")
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO cash_transactions (
			id, register_id, type, amount, payment_method, source, description, performed_by, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, m.ID, m.RegisterID, m.Type, m.Amount, m.PaymentMethod, m.Source, m.Description, m.PerformedBy, m.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return store.ErrNotFound
		}
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

const movementColumns = `id, register_id, type, amount, payment_method, source, description, performed_by, created_at`

func (q *queries) queryMovements(ctx context.Context, query string, args ...any) ([]domain.Movement, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movements := make([]domain.Movement, 0, 32)
	for rows.Next() {
		var m domain.Movement
		if err := rows.Scan(&m.ID, &m.RegisterID, &m.Type, &m.Amount, &m.PaymentMethod, &m.Source, &m.Description, &m.PerformedBy, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.CreatedAt = m.CreatedAt.UTC()
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return movements, nil
}

func (q *queries) ListMovements(ctx context.Context, registerID string) ([]domain.Movement, error) {
	return q.queryMovements(ctx, `
		SELECT `+movementColumns+`
		FROM cash_transactions
		WHERE register_id = $1
		ORDER BY seq
	`, registerID)
}

func (q *queries) ListRecentMovements(ctx context.Context, registerID string, limit int) ([]domain.Movement, error) {
	if limit < 1 {
		return q.queryMovements(ctx, `
			SELECT `+movementColumns+`
			FROM cash_transactions
			WHERE register_id = $1
			ORDER BY seq DESC
		`, registerID)
	}
	return q.queryMovements(ctx, `
		SELECT `+movementColumns+`
		FROM cash_transactions
		WHERE register_id = $1
		ORDER BY seq DESC
		LIMIT $2
	`, registerID, limit)
}

const checkInColumns = `c.id, c.staff_id, c.restaurant_id, c.date, c.status,
	c.check_in_time, c.check_out_time, c.register_id, c.notes, c.created_at`

func scanCheckIn(row rowScanner) (domain.CheckInRecord, error) {
	var record domain.CheckInRecord
	var date time.Time
	var checkIn, checkOut sql.NullTime
	var registerID sql.NullString
	err := row.Scan(
		&record.ID,
		&record.StaffID,
		&record.RestaurantID,
		&date,
		&record.Status,
		&checkIn,
		&checkOut,
		&registerID,
		&record.Notes,
		&record.CreatedAt,
	)
	if err != nil {
		return record, err
	}
	record.Date = date.Format(time.DateOnly)
	record.RegisterID = registerID.String
	record.CreatedAt = record.CreatedAt.UTC()
	if checkIn.Valid {
		at := checkIn.Time.UTC()
		record.CheckInTime = &at
	}
	if checkOut.Valid {
		at := checkOut.Time.UTC()
		record.CheckOutTime = &at
	}
	return record, nil
}

func (q *queries) getCheckIn(ctx context.Context, query string, args ...any) (*domain.CheckInRecord, error) {
	record, err := scanCheckIn(q.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (q *queries) GetCheckIn(ctx context.Context, id string) (*domain.CheckInRecord, error) {
	return q.getCheckIn(ctx, `SELECT `+checkInColumns+` FROM check_ins c WHERE c.id = $1`+q.forUpdate(), id)
}

func (q *queries) FindActiveCheckIn(ctx context.Context, staffID string) (*domain.CheckInRecord, error) {
	return q.getCheckIn(ctx, `
		SELECT `+checkInColumns+`
		FROM check_ins c
		WHERE c.staff_id = $1 AND c.status = 'ACTIVE'`+q.forUpdate(),
		staffID)
}

func (q *queries) FindCheckIn(ctx context.Context, staffID string, status string, date string) (*domain.CheckInRecord, error) {
	return q.getCheckIn(ctx, `
		SELECT `+checkInColumns+`
		FROM check_ins c
		WHERE c.staff_id = $1 AND c.status = $2 AND c.date = $3::date
		ORDER BY c.created_at DESC
		LIMIT 1`+q.forUpdate(),
		staffID, status, date)
}

func (q *queries) FindActiveCheckInBefore(ctx context.Context, staffID string, date string) (*domain.CheckInRecord, error) {
	return q.getCheckIn(ctx, `
		SELECT `+checkInColumns+`
		FROM check_ins c
		WHERE c.staff_id = $1 AND c.status = 'ACTIVE' AND c.date < $2::date`+q.forUpdate(),
		staffID, date)
}

func (q *queries) ListActiveCheckIns(ctx context.Context, restaurantID string) ([]domain.CheckInRecord, error) {
	lock := ""
	if q.locking {
		lock = " FOR UPDATE OF c"
	}
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+checkInColumns+`
		FROM check_ins c
		LEFT JOIN registers r ON r.id = c.register_id
		LEFT JOIN users u ON u.id = c.staff_id
		WHERE c.status = 'ACTIVE'
			AND (c.restaurant_id = $1 OR r.restaurant_id = $1 OR u.restaurant_id = $1)
		ORDER BY c.id`+lock,
		restaurantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.CheckInRecord, 0, 8)
	for rows.Next() {
		record, err := scanCheckIn(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (q *queries) CreateCheckIn(ctx context.Context, record domain.CheckInRecord) (*domain.CheckInRecord, error) {
	if strings.TrimSpace(record.StaffID) == "" || strings.TrimSpace(record.Date) == "" {
		return nil, store.ErrInvalidInput
	}
	if record.Status != domain.CheckInStatusActive && record.Status != domain.CheckInStatusStale {
		return nil, store.ErrInvalidInput
	}
	if record.ID == "" {
		record.ID = xid.New("chk")
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO check_ins (
			id, staff_id, restaurant_id, date, status, check_in_time, check_out_time, register_id, notes, created_at
		)
		VALUES ($1,$2,$3,$4::date,$5,$6,$7,$8,$9,$10)
	`, record.ID, record.StaffID, record.RestaurantID, record.Date, record.Status,
		nullTime(record.CheckInTime), nullTime(record.CheckOutTime), nullIfEmpty(record.RegisterID),
		record.Notes, record.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	saved := record
	return &saved, nil
}

func (q *queries) UpdateCheckIn(ctx context.Context, record domain.CheckInRecord, fromStatus string) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE check_ins
		SET status = $3,
			date = $4::date,
			check_in_time = $5,
			check_out_time = $6,
			register_id = $7,
			notes = $8,
			restaurant_id = $9
		WHERE id = $1 AND status = $2
	`, record.ID, fromStatus, record.Status, record.Date,
		nullTime(record.CheckInTime), nullTime(record.CheckOutTime), nullIfEmpty(record.RegisterID), record.Notes,
		record.RestaurantID)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func decimalPtr(val decimal.NullDecimal) *decimal.Decimal {
	if !val.Valid {
		return nil
	}
	d := val.Decimal
	return &d
}

func nullDecimal(val *decimal.Decimal) any {
	if val == nil {
		return nil
	}
	return *val
}
