package httpapi

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"dinedesk/backend/internal/domain"
	"dinedesk/backend/internal/store"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.UserAccount
	updates int
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.UserAccount)
	}
	if _, exists := s.users[user.Username]; exists {
		return store.ErrConflict
	}
	s.users[user.Username] = user
	return nil
}

func (s *userStoreStub) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	return out, nil
}

func (s *userStoreStub) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[username]
	user.Password = password
	s.users[username] = user
	s.updates++
	return nil
}

func newAdminStub() *userStoreStub {
	return &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {
				ID:           "user-admin",
				Username:     "admin",
				Password:     "admin123",
				Role:         domain.RoleAdmin,
				RestaurantID: "rest-1",
				Active:       true,
				CreatedAt:    time.Now().UTC(),
			},
		},
	}
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	stub := newAdminStub()

	manager := NewAuthManager("test-secret", time.Hour, stub)
	_, err := manager.Login(context.Background(), domain.LoginRequest{
		Username: "admin",
		Password: "admin123",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	users, err := stub.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users failed: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected 1 user, got %d", len(users))
	}
	if users[0].Password == "admin123" {
		t.Fatalf("expected password to be upgraded from plain-text")
	}
	if !strings.HasPrefix(users[0].Password, "$2") {
		t.Fatalf("expected bcrypt password hash, got %s", users[0].Password)
	}
}

func TestLoginTokenCarriesOperatorIdentity(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, newAdminStub())

	resp, err := manager.Login(context.Background(), domain.LoginRequest{Username: " Admin ", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.UserID != "user-admin" || resp.RestaurantID != "rest-1" || resp.Role != domain.RoleAdmin {
		t.Fatalf("unexpected login response %+v", resp)
	}

	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if actor.UserID != "user-admin" || actor.Username != "admin" || actor.RestaurantID != "rest-1" {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestParseTokenRejectsForeignTokens(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, newAdminStub())

	other := NewAuthManager("other-secret", time.Hour, newAdminStub())
	resp, err := other.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := manager.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}

	claims := operatorClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   "user-admin",
			ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Hour)),
			Issuer:    "someone-else",
		},
		Role: domain.RoleAdmin,
	}
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if _, err := manager.ParseToken(signed); err == nil {
		t.Fatalf("expected token with foreign issuer to be rejected")
	}
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	stub := newAdminStub()
	user := stub.users["admin"]
	user.Active = false
	stub.users["admin"] = user

	manager := NewAuthManager("test-secret", time.Hour, stub)
	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "admin123"}); err == nil {
		t.Fatalf("expected inactive account to be rejected")
	}
}

func TestCreateStaffStoresPasswordHash(t *testing.T) {
	stub := newAdminStub()

	manager := NewAuthManager("test-secret", time.Hour, stub)
	staff, err := manager.CreateStaff(context.Background(), "rest-1", domain.StaffCreateRequest{
		Username: "waiter01",
		Password: "pass1234",
	})
	if err != nil {
		t.Fatalf("create staff failed: %v", err)
	}
	if staff.Username != "waiter01" || staff.Role != domain.RoleStaff || staff.RestaurantID != "rest-1" {
		t.Fatalf("unexpected staff %+v", staff)
	}
	if staff.ID == "" {
		t.Fatalf("expected staff id to be assigned")
	}

	found, ok := stub.users["waiter01"]
	if !ok {
		t.Fatalf("expected staff to be saved")
	}
	if !strings.HasPrefix(found.Password, "$2") {
		t.Fatalf("expected bcrypt hash prefix, got %s", found.Password)
	}

	resp, err := manager.Login(context.Background(), domain.LoginRequest{
		Username: "waiter01",
		Password: "pass1234",
	})
	if err != nil {
		t.Fatalf("login with hashed staff failed: %v", err)
	}
	if resp.UserID != staff.ID {
		t.Fatalf("expected login user id %s, got %s", staff.ID, resp.UserID)
	}

	listed := manager.ListStaff(context.Background(), "rest-1")
	if len(listed) != 1 || listed[0].Username != "waiter01" {
		t.Fatalf("expected one staff member, got %+v", listed)
	}
	if other := manager.ListStaff(context.Background(), "rest-2"); len(other) != 0 {
		t.Fatalf("expected no staff for another restaurant, got %+v", other)
	}
}

func TestCreateStaffValidation(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, newAdminStub())

	cases := []domain.StaffCreateRequest{
		{Username: "abc", Password: "pass1234"},
		{Username: "with space", Password: "pass1234"},
		{Username: "waiter02", Password: "123"},
	}
	for _, req := range cases {
		if _, err := manager.CreateStaff(context.Background(), "rest-1", req); !errors.Is(err, store.ErrInvalidInput) {
			t.Fatalf("expected invalid input for %+v, got %v", req, err)
		}
	}

	if _, err := manager.CreateStaff(context.Background(), "rest-1", domain.StaffCreateRequest{Username: "admin", Password: "pass1234"}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict for taken username, got %v", err)
	}
}
