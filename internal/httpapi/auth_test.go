package httpapi

import (
	"context"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"caisse/backend/internal/domain"
	"caisse/backend/internal/store/memory"
)

func newTestAuth(t *testing.T) *AuthManager {
	t.Helper()
	return NewAuthManager("test-secret-key", time.Hour, "123456", memory.NewSeeded())
}

func TestLoginAndParseToken(t *testing.T) {
	auth := newTestAuth(t)

	resp, err := auth.Login(domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.Role != "admin" {
		t.Fatalf("expected role admin, got %q", resp.Role)
	}
	if resp.AccessToken == "" {
		t.Fatal("expected a token")
	}

	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.Username != "admin" || actor.Role != "admin" {
		t.Fatalf("unexpected actor: %+v", actor)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	auth := newTestAuth(t)

	if _, err := auth.Login(domain.LoginRequest{Username: "admin", Password: "wrong"}); err == nil {
		t.Fatal("expected error for wrong password")
	}
	if _, err := auth.Login(domain.LoginRequest{Username: "ghost", Password: "admin123"}); err == nil {
		t.Fatal("expected error for unknown user")
	}
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	auth := newTestAuth(t)

	if _, err := auth.ParseToken("not.a.token"); err == nil {
		t.Fatal("expected error for malformed token")
	}

	other := NewAuthManager("different-secret", time.Hour, "", memory.NewSeeded())
	resp, err := other.Login(domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := auth.ParseToken(resp.AccessToken); err == nil {
		t.Fatal("expected error for token signed with another secret")
	}
}

func TestValidateManagerPIN(t *testing.T) {
	auth := newTestAuth(t)

	if !auth.ValidateManagerPIN("123456") {
		t.Fatal("expected configured pin to validate")
	}
	if auth.ValidateManagerPIN("654321") {
		t.Fatal("expected wrong pin to fail")
	}
	if auth.ValidateManagerPIN("") {
		t.Fatal("expected empty pin to fail")
	}
}

func TestCreateCashierValidation(t *testing.T) {
	auth := newTestAuth(t)

	cases := []domain.CashierCreateRequest{
		{Username: "ab", Password: "secret123"},
		{Username: "has space", Password: "secret123"},
		{Username: "newcashier", Password: "123"},
		{Username: "cashier", Password: "secret123"}, // already seeded
	}
	for _, req := range cases {
		if _, err := auth.CreateCashier(req); err == nil {
			t.Fatalf("expected error for %+v", req)
		}
	}

	created, err := auth.CreateCashier(domain.CashierCreateRequest{Username: "Marie", Password: "secret123"})
	if err != nil {
		t.Fatalf("create cashier: %v", err)
	}
	if created.Username != "marie" {
		t.Fatalf("expected lowercased username, got %q", created.Username)
	}
	if created.Role != "cashier" || !created.Active {
		t.Fatalf("unexpected cashier: %+v", created)
	}

	if _, err := auth.Login(domain.LoginRequest{Username: "marie", Password: "secret123"}); err != nil {
		t.Fatalf("login as new cashier: %v", err)
	}
}

func TestListCashiersExcludesAdmins(t *testing.T) {
	auth := newTestAuth(t)

	cashiers := auth.ListCashiers()
	for _, c := range cashiers {
		if c.Role != "cashier" {
			t.Fatalf("expected only cashiers, got %+v", c)
		}
	}
}

func TestBootstrapUpgradesPlaintextPasswords(t *testing.T) {
	repo := memory.NewSeeded()
	ctx := context.Background()
	if err := repo.CreateUser(ctx, domain.UserAccount{
		Username:  "legacy",
		Password:  "plaintextpw",
		Role:      "cashier",
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("create user: %v", err)
	}

	auth := NewAuthManager("test-secret-key", time.Hour, "", repo)
	if _, err := auth.Login(domain.LoginRequest{Username: "legacy", Password: "plaintextpw"}); err != nil {
		t.Fatalf("login with upgraded password: %v", err)
	}

	stored, err := repo.GetUserByUsername(ctx, "legacy")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if !strings.HasPrefix(stored.Password, "$2") {
		t.Fatalf("expected bcrypt hash in store, got %q", stored.Password)
	}
	if bcrypt.CompareHashAndPassword([]byte(stored.Password), []byte("plaintextpw")) != nil {
		t.Fatal("stored hash does not match original password")
	}
}
