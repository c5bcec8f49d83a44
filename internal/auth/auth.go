package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrTokenInvalid       = errors.New("session token is invalid or expired")
)

var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-password"), bcrypt.DefaultCost)

// HashPassword produces a bcrypt hash suitable for the credentials config.
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Authenticator verifies operator credentials and issues JWT session tokens.
type Authenticator struct {
	credentials map[string]string // username -> bcrypt hash
	secret      []byte
	sessionTTL  time.Duration
}

func New(credentials map[string]string, jwtSecret string, sessionTTL time.Duration) *Authenticator {
	if sessionTTL <= 0 {
		sessionTTL = 12 * time.Hour
	}
	return &Authenticator{
		credentials: credentials,
		secret:      []byte(jwtSecret),
		sessionTTL:  sessionTTL,
	}
}

// Login checks the password against the stored bcrypt hash and returns a
// signed session token.
func (a *Authenticator) Login(username, password string) (string, error) {
	hash, ok := a.credentials[username]
	if !ok {
		// burn a comparison so unknown users cost the same as bad passwords
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.sessionTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Verify parses a session token and returns the operator username.
func (a *Authenticator) Verify(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrTokenInvalid
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", ErrTokenInvalid
	}
	return claims.Subject, nil
}

// SessionTTL reports the configured session lifetime (cookie max age).
func (a *Authenticator) SessionTTL() time.Duration { return a.sessionTTL }
