package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ksred/papertrade/internal/database"
)

func TestGenerateAndValidateToken(t *testing.T) {
	db := database.SetupTestDB(t)
	service := NewService(db, "test-secret", time.Hour)
	ctx := context.Background()

	user, err := service.EnsureUser(ctx, "alice", "hunter22")
	if err != nil {
		t.Fatalf("EnsureUser() error = %v", err)
	}

	token, err := service.GenerateToken(ctx, Credentials{Username: "alice", Password: "hunter22"})
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	claims, err := service.ValidateToken(token.Token)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if claims.UserID != user.UserID {
		t.Errorf("claims.UserID = %d, want %d", claims.UserID, user.UserID)
	}
}

func TestGenerateTokenRejectsBadPassword(t *testing.T) {
	db := database.SetupTestDB(t)
	service := NewService(db, "test-secret", time.Hour)
	ctx := context.Background()

	if _, err := service.EnsureUser(ctx, "bob", "correct-horse"); err != nil {
		t.Fatalf("EnsureUser() error = %v", err)
	}

	_, err := service.GenerateToken(ctx, Credentials{Username: "bob", Password: "wrong"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("GenerateToken() error = %v, want ErrInvalidCredentials", err)
	}

	_, err = service.GenerateToken(ctx, Credentials{Username: "nobody", Password: "x"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("GenerateToken() for unknown user error = %v, want ErrInvalidCredentials", err)
	}
}

func TestEnsureUserIsIdempotent(t *testing.T) {
	db := database.SetupTestDB(t)
	service := NewService(db, "test-secret", time.Hour)
	ctx := context.Background()

	first, err := service.EnsureUser(ctx, "carol", "pw")
	if err != nil {
		t.Fatalf("EnsureUser() error = %v", err)
	}
	second, err := service.EnsureUser(ctx, "carol", "other")
	if err != nil {
		t.Fatalf("EnsureUser() error = %v", err)
	}
	if first.UserID != second.UserID {
		t.Errorf("EnsureUser created a second user: %d != %d", first.UserID, second.UserID)
	}
}

func TestValidateTokenRejectsForeignSecret(t *testing.T) {
	issuer := NewService(nil, "secret-a", time.Hour)
	verifier := NewService(nil, "secret-b", time.Hour)

	token, err := issuer.IssueToken(7, "dave")
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	if _, err := verifier.ValidateToken(token.Token); err == nil {
		t.Error("token signed with another secret should not validate")
	}
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	service := NewService(nil, "secret", -time.Minute)

	token, err := service.IssueToken(7, "erin")
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	if _, err := service.ValidateToken(token.Token); err == nil {
		t.Error("expired token should not validate")
	}
}
