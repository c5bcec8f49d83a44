package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func testAuthenticator(t *testing.T) *Authenticator {
	t.Helper()
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return New(map[string]string{"alice": hash}, "test-secret", time.Hour)
}

func TestAuthenticator_Login(t *testing.T) {
	t.Run("should issue a verifiable token for valid credentials", func(t *testing.T) {
		a := testAuthenticator(t)

		token, err := a.Login("alice", "s3cret")
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		username, err := a.Verify(token)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if username != "alice" {
			t.Fatalf("\nwanted:\nalice\ngot:\n%s", username)
		}
	})

	t.Run("should reject a wrong password", func(t *testing.T) {
		a := testAuthenticator(t)

		if _, err := a.Login("alice", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("\nwanted:\nErrInvalidCredentials\ngot:\n%v", err)
		}
	})

	t.Run("should reject an unknown user with the same error", func(t *testing.T) {
		a := testAuthenticator(t)

		if _, err := a.Login("mallory", "s3cret"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("\nwanted:\nErrInvalidCredentials\ngot:\n%v", err)
		}
	})
}

func TestAuthenticator_Verify(t *testing.T) {
	t.Run("should reject a tampered token", func(t *testing.T) {
		a := testAuthenticator(t)

		token, err := a.Login("alice", "s3cret")
		if err != nil {
			t.Fatalf("login: %v", err)
		}

		parts := strings.Split(token, ".")
		tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))
		if _, err := a.Verify(tampered); !errors.Is(err, ErrTokenInvalid) {
			t.Fatalf("\nwanted:\nErrTokenInvalid\ngot:\n%v", err)
		}
	})

	t.Run("should reject a token signed with another secret", func(t *testing.T) {
		a := testAuthenticator(t)
		hash, _ := HashPassword("s3cret")
		other := New(map[string]string{"alice": hash}, "other-secret", time.Hour)

		token, err := other.Login("alice", "s3cret")
		if err != nil {
			t.Fatalf("login: %v", err)
		}
		if _, err := a.Verify(token); !errors.Is(err, ErrTokenInvalid) {
			t.Fatalf("\nwanted:\nErrTokenInvalid\ngot:\n%v", err)
		}
	})

	t.Run("should reject an expired token", func(t *testing.T) {
		a := testAuthenticator(t)
		// New clamps non-positive TTLs, so backdate the issuer directly
		a.sessionTTL = -time.Minute

		token, err := a.Login("alice", "s3cret")
		if err != nil {
			t.Fatalf("login: %v", err)
		}
		if _, err := a.Verify(token); !errors.Is(err, ErrTokenInvalid) {
			t.Fatalf("\nwanted:\nErrTokenInvalid\ngot:\n%v", err)
		}
	})
}
