package http

import (
	"errors"
	"testing"
	"time"

	"scheduled-exam-service/internal/domain"
)

func TestAuthenticatorRoundTrip(t *testing.T) {
	auth := NewAuthenticator(testSecret, "issuer", time.Hour, nil)
	token, err := auth.Issue(42, "Zainab")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	id, err := auth.Parse(token)
	if err != nil || id != 42 {
		t.Fatalf("parse: %d %v", id, err)
	}
}

func TestAuthenticatorRejects(t *testing.T) {
	auth := NewAuthenticator(testSecret, "issuer", time.Hour, nil)

	other := NewAuthenticator("other-secret", "issuer", time.Hour, nil)
	forged, _ := other.Issue(1, "")
	if _, err := auth.Parse(forged); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected forged token rejected, got %v", err)
	}

	foreign := NewAuthenticator(testSecret, "someone-else", time.Hour, nil)
	wrongIssuer, _ := foreign.Issue(1, "")
	if _, err := auth.Parse(wrongIssuer); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected wrong issuer rejected, got %v", err)
	}

	expired := NewAuthenticator(testSecret, "issuer", time.Minute, nil)
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	old, _ := expired.Issue(1, "")
	if _, err := auth.Parse(old); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected expired token rejected, got %v", err)
	}

	if _, err := auth.Parse("not-a-token"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected garbage rejected, got %v", err)
	}
}
