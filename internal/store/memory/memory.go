package memory

import (
	"context"
	"log"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"dinedesk/backend/internal/domain"
	"dinedesk/backend/internal/store"
	"dinedesk/backend/internal/xid"
)

const DefaultRestaurantID = "main-restaurant"

type Store struct {
	mu sync.RWMutex
	st *state
}

type state struct {
	restaurants          map[string]domain.Restaurant
	usersByID            map[string]domain.UserAccount
	userIDByName         map[string]string
	registersByID        map[string]domain.Register
	openRegisterByKey    map[string]string
	denominations        map[string]domain.Denominations
	movementsByRegister  map[string][]domain.Movement
	checkInsByID         map[string]domain.CheckInRecord
	activeCheckInByStaff map[string]string
	staleCheckInByKey    map[string]string
	auditLogs            []domain.AuditLog
}

func newState() *state {
	return &state{
		restaurants:          make(map[string]domain.Restaurant),
		usersByID:            make(map[string]domain.UserAccount),
		userIDByName:         make(map[string]string),
		registersByID:        make(map[string]domain.Register),
		openRegisterByKey:    make(map[string]string),
		denominations:        make(map[string]domain.Denominations),
		movementsByRegister:  make(map[string][]domain.Movement),
		checkInsByID:         make(map[string]domain.CheckInRecord),
		activeCheckInByStaff: make(map[string]string),
		staleCheckInByKey:    make(map[string]string),
	}
}

// clone copies every table; WithinTx swaps the copy back in when fn fails.
func (s *state) clone() *state {
	movements := make(map[string][]domain.Movement, len(s.movementsByRegister))
	for id, list := range s.movementsByRegister {
		movements[id] = slices.Clone(list)
	}
	return &state{
		restaurants:          maps.Clone(s.restaurants),
		usersByID:            maps.Clone(s.usersByID),
		userIDByName:         maps.Clone(s.userIDByName),
		registersByID:        maps.Clone(s.registersByID),
		openRegisterByKey:    maps.Clone(s.openRegisterByKey),
		denominations:        maps.Clone(s.denominations),
		movementsByRegister:  movements,
		checkInsByID:         maps.Clone(s.checkInsByID),
		activeCheckInByStaff: maps.Clone(s.activeCheckInByStaff),
		staleCheckInByKey:    maps.Clone(s.staleCheckInByKey),
		auditLogs:            slices.Clone(s.auditLogs),
	}
}

func New() *Store {
	return &Store{st: newState()}
}

// seedUsers builds the initial in-memory accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD; if
// unset, dev defaults are used with a warning. The postgres store never seeds.
func seedUsers() []domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := make([]domain.UserAccount, 0, 2)
	for _, u := range []struct {
		id       string
		username string
		password string
		role     string
	}{
		{"user-admin", "admin", adminPwd, domain.RoleAdmin},
		{"user-staff", "staff", staffPwd, domain.RoleStaff},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users = append(users, domain.UserAccount{
			ID:           u.id,
			Username:     u.username,
			Password:     string(hash),
			Role:         u.role,
			RestaurantID: DefaultRestaurantID,
			Active:       true,
			CreatedAt:    now,
		})
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	s := New()
	s.st.restaurants[DefaultRestaurantID] = domain.Restaurant{
		ID:        DefaultRestaurantID,
		Name:      "Main Restaurant",
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	for _, u := range seedUsers() {
		s.st.usersByID[u.ID] = u
		s.st.userIDByName[u.Username] = u.ID
	}
	return s
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(&txView{st: s.st}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

func (s *Store) ReadTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return fn(&txView{st: s.st, readOnly: true})
}

func (s *Store) ListRegisters(_ context.Context, filter domain.RegisterFilter) ([]domain.Register, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	view := &txView{st: s.st, readOnly: true}
	result := make([]domain.Register, 0, 16)
	for _, reg := range s.st.registersByID {
		if filter.RestaurantID != "" && reg.RestaurantID != filter.RestaurantID {
			continue
		}
		if filter.Status != "" && reg.Status != filter.Status {
			continue
		}
		if !filter.From.IsZero() && reg.OpenedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !reg.OpenedAt.Before(filter.To) {
			continue
		}
		result = append(result, view.withDenominations(reg))
	}
	slices.SortFunc(result, func(a, b domain.Register) int {
		if a.OpenedAt.Equal(b.OpenedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		return b.OpenedAt.Compare(a.OpenedAt)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *Store) CreateRestaurant(_ context.Context, restaurant domain.Restaurant) error {
	if strings.TrimSpace(restaurant.ID) == "" {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.st.restaurants[restaurant.ID]; exists {
		return store.ErrConflict
	}
	if restaurant.CreatedAt.IsZero() {
		restaurant.CreatedAt = time.Now().UTC()
	}
	s.st.restaurants[restaurant.ID] = restaurant
	return nil
}

func (s *Store) GetRestaurant(_ context.Context, id string) (*domain.Restaurant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	restaurant, exists := s.st.restaurants[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &restaurant, nil
}

func (s *Store) ListRestaurants(_ context.Context) ([]domain.Restaurant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := slices.Collect(maps.Values(s.st.restaurants))
	slices.SortFunc(result, func(a, b domain.Restaurant) int {
		return strings.Compare(a.ID, b.ID)
	})
	return result, nil
}

func (s *Store) GetUser(_ context.Context, id string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.st.usersByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.st.userIDByName[username]; exists {
		return store.ErrConflict
	}
	if user.ID == "" {
		user.ID = xid.New("user")
	}
	if _, exists := s.st.usersByID[user.ID]; exists {
		return store.ErrConflict
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleStaff
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.st.usersByID[user.ID] = user
	s.st.userIDByName[username] = user.ID
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := slices.Collect(maps.Values(s.st.usersByID))
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}
	id, exists := s.st.userIDByName[username]
	if !exists {
		return store.ErrNotFound
	}
	user := s.st.usersByID[id]
	user.Password = password
	s.st.usersByID[id] = user
	return nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.st.auditLogs = append(s.st.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, restaurantID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.st.auditLogs {
		if restaurantID != "" && entry.RestaurantID != restaurantID {
			continue
		}
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func registerKey(restaurantID string, operatorID string) string {
	return restaurantID + "::" + operatorID
}

func denominationKey(registerID string, kind string) string {
	return registerID + "::" + kind
}

func checkInDayKey(staffID string, date string) string {
	return staffID + "::" + date
}
