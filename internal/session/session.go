package session

import (
	"errors"
	"fmt"
	"time"

	"foodrun/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

const DefaultTTL = 24 * time.Hour

type Claims struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

type Session struct {
	SubjectID string      `json:"id"`
	Email     string      `json:"email"`
	Role      domain.Role `json:"role"`
	IssuedAt  time.Time   `json:"issuedAt"`
	ExpiresAt time.Time   `json:"expiresAt"`
	Token     string      `json:"-"`
}

func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

func (s *Session) RequireRole(roles ...domain.Role) error {
	for _, r := range roles {
		if s.Role == r {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", domain.ErrForbiddenRole, s.Role)
}

func (s *Session) Bearer() string { return "Bearer " + s.Token }

// Issue signs an HS256 token for the given subject.
func Issue(secret, subjectID, email string, role domain.Role, ttl time.Duration, now time.Time) (*Session, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is empty")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now = now.UTC().Truncate(time.Second)
	claims := Claims{
		ID:    subjectID,
		Email: email,
		Role:  string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return nil, err
	}
	return &Session{
		SubjectID: subjectID,
		Email:     email,
		Role:      role,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
		Token:     signed,
	}, nil
}

// Parse verifies the signature and expiry of token.
func Parse(token, secret string, now time.Time) (*Session, error) {
	var c Claims
	_, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithTimeFunc(func() time.Time { return now }))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domain.ErrAuthExpired
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrAuthExpired, err)
	}
	return fromClaims(token, &c)
}

// Decode reads the claims of token without verifying the signature. It is
// meant for clients, which never hold the signing secret.
func Decode(token string, now time.Time) (*Session, error) {
	var c Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrAuthExpired, err)
	}
	s, err := fromClaims(token, &c)
	if err != nil {
		return nil, err
	}
	if s.Expired(now) {
		return nil, domain.ErrAuthExpired
	}
	return s, nil
}

func fromClaims(token string, c *Claims) (*Session, error) {
	role, err := domain.ParseRole(c.Role)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrAuthExpired, err)
	}
	if c.ID == "" {
		return nil, fmt.Errorf("%w: token has no subject", domain.ErrAuthExpired)
	}
	s := &Session{SubjectID: c.ID, Email: c.Email, Role: role, Token: token}
	if c.IssuedAt != nil {
		s.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		s.ExpiresAt = c.ExpiresAt.Time
	}
	return s, nil
}
