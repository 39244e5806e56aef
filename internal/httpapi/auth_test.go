package httpapi

import (
	"context"
	"sync"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"tillpoint/backend/internal/domain"
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

func mustHashPassword(t *testing.T, plain string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(hash)
}

func account(username string, password string, role string, active bool) domain.UserAccount {
	return domain.UserAccount{
		ID:         "usr_" + username,
		Username:   username,
		Password:   password,
		Name:       "Test " + username,
		Role:       role,
		BusinessID: "biz_test",
		Active:     active,
		CreatedAt:  time.Now().UTC(),
	}
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	store := &userStoreStub{users: map[string]domain.UserAccount{
		"owner": account("owner", "owner123", domain.RoleOwner, true),
	}}

	manager := NewAuthManager("test-secret", time.Hour, store)
	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "owner", Password: "owner123"}); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	users, err := store.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users failed: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected 1 user, got %d", len(users))
	}
	if users[0].Password == "owner123" || !isPasswordHash(users[0].Password) {
		t.Fatalf("expected password to be upgraded from plain-text")
	}
	if store.updates == 0 {
		t.Fatalf("expected store password update")
	}
}

func TestTokenCarriesActor(t *testing.T) {
	store := &userStoreStub{users: map[string]domain.UserAccount{
		"mgr": account("mgr", mustHashPassword(t, "s3cret!"), domain.RoleManager, true),
	}}
	manager := NewAuthManager("test-secret", time.Hour, store)

	resp, err := manager.Login(context.Background(), domain.LoginRequest{Username: " MGR ", Password: "s3cret!"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.Role != domain.RoleManager || resp.BusinessID != "biz_test" {
		t.Fatalf("unexpected login response: %+v", resp)
	}

	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	want := domain.Actor{UserID: "usr_mgr", Username: "mgr", Name: "Test mgr", Role: domain.RoleManager, BusinessID: "biz_test"}
	if actor != want {
		t.Fatalf("expected %+v, got %+v", want, actor)
	}
}

func TestLoginRejectsInactiveAndWrongPassword(t *testing.T) {
	store := &userStoreStub{users: map[string]domain.UserAccount{
		"gone": account("gone", mustHashPassword(t, "password1"), domain.RoleCashier, false),
		"here": account("here", mustHashPassword(t, "password1"), domain.RoleCashier, true),
	}}
	manager := NewAuthManager("test-secret", time.Hour, store)

	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "gone", Password: "password1"}); err == nil {
		t.Fatalf("expected inactive account to be rejected")
	}
	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "here", Password: "password2"}); err != errInvalidCredentials {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "nobody", Password: "password1"}); err != errInvalidCredentials {
		t.Fatalf("expected invalid credentials for unknown user, got %v", err)
	}
}

func TestParseTokenRejectsExpiredAndForeignTokens(t *testing.T) {
	store := &userStoreStub{users: map[string]domain.UserAccount{
		"cash": account("cash", mustHashPassword(t, "password1"), domain.RoleCashier, true),
	}}
	manager := NewAuthManager("test-secret", time.Minute, store)
	resp, err := manager.Login(context.Background(), domain.LoginRequest{Username: "cash", Password: "password1"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	manager.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if _, err := manager.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
	manager.now = time.Now

	other := NewAuthManager("another-secret", time.Hour, store)
	if _, err := other.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}

	hs512 := jwtlib.NewWithClaims(jwtlib.SigningMethodHS512, posCustomClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   "usr_cash",
			ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role:       domain.RoleOwner,
		BusinessID: "biz_test",
	})
	signed, err := hs512.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := manager.ParseToken(signed); err == nil {
		t.Fatalf("expected HS512 token to be rejected")
	}
}
