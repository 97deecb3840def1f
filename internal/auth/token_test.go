package auth

import (
	"errors"
	"testing"
	"time"
)

func setTestSecret(t *testing.T) {
	t.Helper()
	t.Setenv("CASEFILE_AUTH_SECRET", "test-secret")
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)
}

func testIdentity() *Identity {
	changed := time.Date(2025, 3, 1, 12, 0, 0, 123456789, time.UTC)
	return &Identity{
		ID:                "user-1",
		Username:          "alice",
		Role:              RoleStaffUser,
		OrganizationID:    "org-1",
		Active:            true,
		PasswordChangedAt: changed,
	}
}

func TestIssueAndDecodeSession(t *testing.T) {
	setTestSecret(t)

	identity := testIdentity()
	token, err := IssueSession(identity, time.Hour)
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}

	sess, err := DecodeSession(token)
	if err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if sess.UserID != identity.ID {
		t.Fatalf("unexpected user id: %s", sess.UserID)
	}
	if sess.Role != RoleStaffUser {
		t.Fatalf("unexpected role: %s", sess.Role)
	}
	if sess.OrganizationID != "org-1" {
		t.Fatalf("unexpected organization: %s", sess.OrganizationID)
	}
	if !sess.PasswordChangedAt.Equal(identity.PasswordChangedAt) {
		t.Fatalf("credential epoch not preserved: %v vs %v",
			sess.PasswordChangedAt, identity.PasswordChangedAt)
	}
}

func TestDecodeSessionRejectsGarbage(t *testing.T) {
	setTestSecret(t)
	if _, err := DecodeSession("not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestDecodeSessionRejectsWrongSecret(t *testing.T) {
	t.Setenv("CASEFILE_AUTH_SECRET", "first-secret")
	ResetSecretForTests()
	token, err := IssueSession(testIdentity(), time.Hour)
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}

	t.Setenv("CASEFILE_AUTH_SECRET", "second-secret")
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)
	if _, err := DecodeSession(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestIssueSessionRequiresSecret(t *testing.T) {
	t.Setenv("CASEFILE_AUTH_SECRET", "")
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)
	if _, err := IssueSession(testIdentity(), time.Hour); err == nil {
		t.Fatal("expected error without configured secret")
	}
}

func TestIssueSessionValidatesInput(t *testing.T) {
	setTestSecret(t)
	if _, err := IssueSession(nil, time.Hour); err == nil {
		t.Fatal("expected error for nil identity")
	}
	if _, err := IssueSession(testIdentity(), 0); err == nil {
		t.Fatal("expected error for zero ttl")
	}
}
