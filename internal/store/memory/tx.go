package memory

import (
	"context"
	"slices"
	"strings"
	"time"

	"dinedesk/backend/internal/domain"
	"dinedesk/backend/internal/store"
	"dinedesk/backend/internal/xid"
)

// txView operates on the state while the owning Store's lock is held.
type txView struct {
	st       *state
	readOnly bool
}

func (t *txView) writable() error {
	if t.readOnly {
		return store.ErrInvalidInput
	}
	return nil
}

func (t *txView) withDenominations(reg domain.Register) domain.Register {
	if d, ok := t.st.denominations[denominationKey(reg.ID, domain.DenominationsOpening)]; ok {
		copyD := cloneDenominations(d)
		reg.OpeningDenominations = &copyD
	}
	if d, ok := t.st.denominations[denominationKey(reg.ID, domain.DenominationsClosing)]; ok {
		copyD := cloneDenominations(d)
		reg.ClosingDenominations = &copyD
	}
	reg.Movements = nil
	return reg
}

func (t *txView) GetRegister(_ context.Context, id string) (*domain.Register, error) {
	reg, exists := t.st.registersByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	out := t.withDenominations(reg)
	return &out, nil
}

func (t *txView) LockRegister(ctx context.Context, id string) (*domain.Register, error) {
	return t.GetRegister(ctx, id)
}

func (t *txView) FindOpenRegister(ctx context.Context, restaurantID string, operatorID string) (*domain.Register, error) {
	id, exists := t.st.openRegisterByKey[registerKey(restaurantID, operatorID)]
	if !exists {
		return nil, store.ErrNotFound
	}
	return t.GetRegister(ctx, id)
}

func (t *txView) FindOpenRegisterByOperator(ctx context.Context, operatorID string) (*domain.Register, error) {
	var found *domain.Register
	for _, id := range t.st.openRegisterByKey {
		reg := t.st.registersByID[id]
		if reg.OpenedBy != operatorID {
			continue
		}
		if found == nil || reg.OpenedAt.After(found.OpenedAt) {
			copyReg := reg
			found = &copyReg
		}
	}
	if found == nil {
		return nil, store.ErrNotFound
	}
	return t.GetRegister(ctx, found.ID)
}

func (t *txView) ListOpenRegisters(_ context.Context, restaurantID string) ([]domain.Register, error) {
	result := make([]domain.Register, 0, 8)
	for _, id := range t.st.openRegisterByKey {
		reg := t.st.registersByID[id]
		if reg.RestaurantID != restaurantID {
			continue
		}
		result = append(result, t.withDenominations(reg))
	}
	slices.SortFunc(result, func(a, b domain.Register) int {
		if a.OpenedAt.Equal(b.OpenedAt) {
			return strings.Compare(a.ID, b.ID)
		}
		return a.OpenedAt.Compare(b.OpenedAt)
	})
	return result, nil
}

func (t *txView) CreateRegister(_ context.Context, reg domain.Register) (*domain.Register, error) {
	if err := t.writable(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(reg.RestaurantID) == "" || strings.TrimSpace(reg.OpenedBy) == "" {
		return nil, store.ErrInvalidInput
	}

	key := registerKey(reg.RestaurantID, reg.OpenedBy)
	if _, exists := t.st.openRegisterByKey[key]; exists {
		return nil, store.ErrConflict
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

	t.st.registersByID[reg.ID] = reg
	t.st.openRegisterByKey[key] = reg.ID
	saved := reg
	return &saved, nil
}

func (t *txView) UpdateRegisterClosing(_ context.Context, reg domain.Register) error {
	if err := t.writable(); err != nil {
		return err
	}
	if !reg.IsTerminal() {
		return store.ErrInvalidInput
	}

	current, exists := t.st.registersByID[reg.ID]
	if !exists || current.Status != domain.RegisterStatusOpen {
		return store.ErrNotFound
	}
	reg.OpeningDenominations = nil
	reg.ClosingDenominations = nil
	reg.Movements = nil

	t.st.registersByID[reg.ID] = reg
	delete(t.st.openRegisterByKey, registerKey(current.RestaurantID, current.OpenedBy))
	return nil
}

func (t *txView) SaveDenominations(_ context.Context, d domain.Denominations) error {
	if err := t.writable(); err != nil {
		return err
	}
	if d.Kind != domain.DenominationsOpening && d.Kind != domain.DenominationsClosing {
		return store.ErrInvalidInput
	}
	if _, exists := t.st.registersByID[d.RegisterID]; !exists {
		return store.ErrNotFound
	}
	key := denominationKey(d.RegisterID, d.Kind)
	if _, exists := t.st.denominations[key]; exists {
		return store.ErrConflict
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	t.st.denominations[key] = cloneDenominations(d)
	return nil
}

func (t *txView) AppendMovement(_ context.Context, m domain.Movement) error {
	if err := t.writable(); err != nil {
		return err
	}
	if !m.Amount.IsPositive() || !domain.IsValidMovementType(m.Type) || !domain.IsValidPaymentMethod(m.PaymentMethod) {
		return store.ErrInvalidInput
	}
	if _, exists := t.st.registersByID[m.RegisterID]; !exists {
		return store.ErrNotFound
	}
	if m.ID == "" {
		m.ID = xid.New("ctx")
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	t.st.movementsByRegister[m.RegisterID] = append(t.st.movementsByRegister[m.RegisterID], m)
	return nil
}

func (t *txView) ListMovements(_ context.Context, registerID string) ([]domain.Movement, error) {
	return slices.Clone(t.st.movementsByRegister[registerID]), nil
}

func (t *txView) ListRecentMovements(_ context.Context, registerID string, limit int) ([]domain.Movement, error) {
	all := t.st.movementsByRegister[registerID]
	if limit < 1 || limit > len(all) {
		limit = len(all)
	}
	result := make([]domain.Movement, 0, limit)
	for i := len(all) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, all[i])
	}
	return result, nil
}

func (t *txView) GetCheckIn(_ context.Context, id string) (*domain.CheckInRecord, error) {
	record, exists := t.st.checkInsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &record, nil
}

func (t *txView) FindActiveCheckIn(ctx context.Context, staffID string) (*domain.CheckInRecord, error) {
	id, exists := t.st.activeCheckInByStaff[staffID]
	if !exists {
		return nil, store.ErrNotFound
	}
	return t.GetCheckIn(ctx, id)
}

func (t *txView) FindCheckIn(ctx context.Context, staffID string, status string, date string) (*domain.CheckInRecord, error) {
	switch status {
	case domain.CheckInStatusActive:
		record, err := t.FindActiveCheckIn(ctx, staffID)
		if err != nil {
			return nil, err
		}
		if record.Date != date {
			return nil, store.ErrNotFound
		}
		return record, nil
	case domain.CheckInStatusStale:
		id, exists := t.st.staleCheckInByKey[checkInDayKey(staffID, date)]
		if !exists {
			return nil, store.ErrNotFound
		}
		return t.GetCheckIn(ctx, id)
	}

	var found *domain.CheckInRecord
	for _, record := range t.st.checkInsByID {
		if record.StaffID != staffID || record.Status != status || record.Date != date {
			continue
		}
		if found == nil || record.CreatedAt.After(found.CreatedAt) {
			copyRecord := record
			found = &copyRecord
		}
	}
	if found == nil {
		return nil, store.ErrNotFound
	}
	return found, nil
}

func (t *txView) FindActiveCheckInBefore(ctx context.Context, staffID string, date string) (*domain.CheckInRecord, error) {
	record, err := t.FindActiveCheckIn(ctx, staffID)
	if err != nil {
		return nil, err
	}
	if record.Date >= date {
		return nil, store.ErrNotFound
	}
	return record, nil
}

func (t *txView) ListActiveCheckIns(_ context.Context, restaurantID string) ([]domain.CheckInRecord, error) {
	result := make([]domain.CheckInRecord, 0, 8)
	for _, id := range t.st.activeCheckInByStaff {
		record := t.st.checkInsByID[id]
		if !t.checkInBelongsTo(record, restaurantID) {
			continue
		}
		result = append(result, record)
	}
	slices.SortFunc(result, func(a, b domain.CheckInRecord) int {
		return strings.Compare(a.ID, b.ID)
	})
	return result, nil
}

func (t *txView) checkInBelongsTo(record domain.CheckInRecord, restaurantID string) bool {
	if record.RestaurantID == restaurantID {
		return true
	}
	if reg, ok := t.st.registersByID[record.RegisterID]; ok && reg.RestaurantID == restaurantID {
		return true
	}
	if user, ok := t.st.usersByID[record.StaffID]; ok && user.RestaurantID == restaurantID {
		return true
	}
	return false
}

func (t *txView) CreateCheckIn(_ context.Context, record domain.CheckInRecord) (*domain.CheckInRecord, error) {
	if err := t.writable(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(record.StaffID) == "" || strings.TrimSpace(record.Date) == "" {
		return nil, store.ErrInvalidInput
	}
	switch record.Status {
	case domain.CheckInStatusActive:
		if _, exists := t.st.activeCheckInByStaff[record.StaffID]; exists {
			return nil, store.ErrConflict
		}
	case domain.CheckInStatusStale:
		if _, exists := t.st.staleCheckInByKey[checkInDayKey(record.StaffID, record.Date)]; exists {
			return nil, store.ErrConflict
		}
	default:
		return nil, store.ErrInvalidInput
	}
	if record.ID == "" {
		record.ID = xid.New("chk")
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	t.st.checkInsByID[record.ID] = record
	t.index(record)
	saved := record
	return &saved, nil
}

func (t *txView) UpdateCheckIn(_ context.Context, record domain.CheckInRecord, fromStatus string) error {
	if err := t.writable(); err != nil {
		return err
	}
	current, exists := t.st.checkInsByID[record.ID]
	if !exists || current.Status != fromStatus {
		return store.ErrNotFound
	}
	if record.Status == domain.CheckInStatusActive && current.Status != domain.CheckInStatusActive {
		if _, taken := t.st.activeCheckInByStaff[record.StaffID]; taken {
			return store.ErrConflict
		}
	}

	t.unindex(current)
	t.st.checkInsByID[record.ID] = record
	t.index(record)
	return nil
}

func (t *txView) index(record domain.CheckInRecord) {
	switch record.Status {
	case domain.CheckInStatusActive:
		t.st.activeCheckInByStaff[record.StaffID] = record.ID
	case domain.CheckInStatusStale:
		t.st.staleCheckInByKey[checkInDayKey(record.StaffID, record.Date)] = record.ID
	}
}

func (t *txView) unindex(record domain.CheckInRecord) {
	switch record.Status {
	case domain.CheckInStatusActive:
		delete(t.st.activeCheckInByStaff, record.StaffID)
	case domain.CheckInStatusStale:
		delete(t.st.staleCheckInByKey, checkInDayKey(record.StaffID, record.Date))
	}
}

func cloneDenominations(src domain.Denominations) domain.Denominations {
	dst := src
	dst.Counts = slices.Clone(src.Counts)
	return dst
}
