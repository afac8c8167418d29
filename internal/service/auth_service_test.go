package service

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/anavi/settlement/internal/config"
	"github.com/anavi/settlement/internal/domain"
)

func testAuthService() *AuthService {
	return NewAuthService(&config.Config{
		JWT: config.JWTConfig{
			AccessSecret: "access-secret",
			AdminSecret:  "admin-secret",
		},
	})
}

func signToken(t *testing.T, secret, role string, ttl time.Duration) string {
	t.Helper()
	claims := AppClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-ttl)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
		Role: role,
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

func TestParseAccessToken(t *testing.T) {
	s := testAuthService()
	tok := signToken(t, "access-secret", "user", time.Minute)
	claims, err := s.ParseAccessToken(tok)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claims.Role != "user" {
		t.Fatalf("expected role user, got %q", claims.Role)
	}
}

func TestParseAccessTokenWrongSecret(t *testing.T) {
	s := testAuthService()
	tok := signToken(t, "other-secret", "user", time.Minute)
	if _, err := s.ParseAccessToken(tok); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestParseAccessTokenExpired(t *testing.T) {
	s := testAuthService()
	tok := signToken(t, "access-secret", "user", -time.Minute)
	if _, err := s.ParseAccessToken(tok); !errors.Is(err, domain.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestParseAdminTokenRequiresAdminRole(t *testing.T) {
	s := testAuthService()
	tok := signToken(t, "admin-secret", "user", time.Minute)
	if _, err := s.ParseAdminToken(tok); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for non-admin role, got %v", err)
	}

	admin := signToken(t, "admin-secret", "admin", time.Minute)
	if _, err := s.ParseAdminToken(admin); err != nil {
		t.Fatalf("unexpected error for admin token: %v", err)
	}
}

func TestAccessTokenRejectedByAdminSurface(t *testing.T) {
	s := testAuthService()
	tok := signToken(t, "access-secret", "admin", time.Minute)
	if _, err := s.ParseAdminToken(tok); err == nil {
		t.Fatal("access-signed token must not pass admin verification")
	}
}
