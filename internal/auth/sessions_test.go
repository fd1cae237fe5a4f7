package auth

import (
	"errors"
	"testing"
	"time"
)

func TestSessionIssueAndRotate(t *testing.T) {
	store := NewSessionStore()

	sess, raw, err := store.Issue("operator", time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if sess.Username != "operator" || sess.FamilyID == "" || sess.Revoked {
		t.Errorf("session = %+v", sess)
	}
	if sess.TokenHash == raw {
		t.Error("store must keep the hash, not the raw token")
	}
	if store.ActiveCount() != 1 {
		t.Errorf("ActiveCount() = %d, want 1", store.ActiveCount())
	}

	next, nextRaw, err := store.Rotate(raw, time.Hour)
	if err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}
	if next.FamilyID != sess.FamilyID {
		t.Error("rotation must stay within the session family")
	}
	if nextRaw == raw {
		t.Error("rotation must mint a new raw token")
	}
	if store.ActiveCount() != 1 {
		t.Errorf("ActiveCount() after rotation = %d, want 1", store.ActiveCount())
	}
}

func TestSessionRotateUnknownToken(t *testing.T) {
	store := NewSessionStore()

	if _, _, err := store.Rotate("never-issued", time.Hour); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("Rotate(unknown) error = %v, want ErrTokenInvalid", err)
	}
}

func TestSessionReuseKillsFamily(t *testing.T) {
	store := NewSessionStore()

	_, raw, err := store.Issue("operator", time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	_, freshRaw, err := store.Rotate(raw, time.Hour)
	if err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}

	// Replaying the consumed token is theft: the whole family dies.
	if _, _, err := store.Rotate(raw, time.Hour); !errors.Is(err, ErrTokenReuse) {
		t.Fatalf("Rotate(replayed) error = %v, want ErrTokenReuse", err)
	}

	// The legitimate successor is now dead too.
	if _, _, err := store.Rotate(freshRaw, time.Hour); !errors.Is(err, ErrTokenReuse) {
		t.Errorf("Rotate(successor) error = %v, want ErrTokenReuse", err)
	}
	if store.ActiveCount() != 0 {
		t.Errorf("ActiveCount() = %d, want 0 after family revocation", store.ActiveCount())
	}
}

func TestSessionExpiry(t *testing.T) {
	store := NewSessionStore()

	_, raw, err := store.Issue("operator", time.Millisecond)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	time.Sleep(5 * time.Millisecond)

	if _, _, err := store.Rotate(raw, time.Hour); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("Rotate(expired) error = %v, want ErrTokenExpired", err)
	}

	if removed := store.PruneExpired(); removed != 1 {
		t.Errorf("PruneExpired() = %d, want 1", removed)
	}
	if store.ActiveCount() != 0 {
		t.Errorf("ActiveCount() = %d, want 0", store.ActiveCount())
	}
}

func TestSessionRevoke(t *testing.T) {
	store := NewSessionStore()

	_, raw, err := store.Issue("operator", time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	if err := store.Revoke(raw); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if store.ActiveCount() != 0 {
		t.Errorf("ActiveCount() = %d, want 0 after logout", store.ActiveCount())
	}
	if err := store.Revoke("never-issued"); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("Revoke(unknown) error = %v, want ErrTokenInvalid", err)
	}
}

func TestSessionRevokeAll(t *testing.T) {
	store := NewSessionStore()

	for i := 0; i < 3; i++ {
		if _, _, err := store.Issue("operator", time.Hour); err != nil {
			t.Fatalf("Issue() error = %v", err)
		}
	}
	if store.ActiveCount() != 3 {
		t.Fatalf("ActiveCount() = %d, want 3", store.ActiveCount())
	}

	store.RevokeAll()
	if store.ActiveCount() != 0 {
		t.Errorf("ActiveCount() = %d, want 0", store.ActiveCount())
	}
}
