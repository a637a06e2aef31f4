package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "equiptrack"

// Claims carries the tenant-scoped JWT payload.
type Claims struct {
	Email     string `json:"email"`
	CompanyID string `json:"company_id"`
	Role      Role   `json:"role"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 JWT for the given user.
func (s *Service) IssueToken(u *User) (string, time.Time, error) {
	if u == nil || strings.TrimSpace(u.ID) == "" {
		return "", time.Time{}, errors.New("user is required")
	}
	now := s.now().UTC()
	exp := now.Add(s.tokenTTL)
	claims := Claims{
		Email:     u.Email,
		CompanyID: u.CompanyID,
		Role:      u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// ParseToken verifies the signature and registered claims of a bearer token.
// It performs no storage lookups; Resolve re-checks liveness on every request.
func (s *Service) ParseToken(raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithExpirationRequired(), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// TokenSubject extracts the subject from a bearer token without touching
// storage. The rate limiter uses it to key authenticated traffic before the
// full identity resolution stage runs.
func (s *Service) TokenSubject(raw string) (string, bool) {
	claims, err := s.ParseToken(raw)
	if err != nil {
		return "", false
	}
	return claims.Subject, true
}
