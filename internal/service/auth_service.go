package service

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/anavi/settlement/internal/config"
	"github.com/anavi/settlement/internal/domain"
)

// AppClaims extends jwt.RegisteredClaims with application-specific fields.
// Tokens are issued by the upstream identity service; this service only
// verifies signature, algorithm, and expiry.
type AppClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// AuthService verifies bearer tokens for the API and back-office surfaces.
type AuthService struct {
	cfg *config.Config
}

// NewAuthService creates an AuthService.
func NewAuthService(cfg *config.Config) *AuthService {
	return &AuthService{cfg: cfg}
}

// ParseAccessToken validates a caller token against the access secret.
func (s *AuthService) ParseAccessToken(tokenString string) (*AppClaims, error) {
	return parseToken(tokenString, []byte(s.cfg.JWT.AccessSecret))
}

// ParseAdminToken validates a back-office token against the admin secret and
// requires the admin role.
func (s *AuthService) ParseAdminToken(tokenString string) (*AppClaims, error) {
	claims, err := parseToken(tokenString, []byte(s.cfg.JWT.AdminSecret))
	if err != nil {
		return nil, err
	}
	if claims.Role != string(domain.RoleAdmin) {
		return nil, domain.ErrForbidden
	}
	return claims, nil
}

// parseToken validates the token signature, algorithm, and expiry.
func parseToken(tokenString string, secret []byte) (*AppClaims, error) {
	tok, err := jwt.ParseWithClaims(tokenString, &AppClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domain.ErrTokenExpired
		}
		return nil, domain.ErrTokenInvalid
	}
	if !tok.Valid {
		return nil, domain.ErrTokenInvalid
	}
	claims, ok := tok.Claims.(*AppClaims)
	if !ok {
		return nil, domain.ErrTokenInvalid
	}
	return claims, nil
}
