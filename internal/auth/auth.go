package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionTTL is how long a login lasts.
const SessionTTL = 30 * 24 * time.Hour

// CookieName carries the session token.
const CookieName = "anyclaw_token"

// Issuer is stamped on every session token and required on validation.
const Issuer = "anyclaw"

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrInvalidCode  = errors.New("invalid or expired code")
)

type Claims struct {
	UserID string `json:"user_id"`
	Phone  string `json:"phone"`
	jwt.RegisteredClaims
}

type Service struct {
	jwtSecret []byte
	tokenTTL  time.Duration
}

func NewService(jwtSecret string) *Service {
	return &Service{
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  SessionTTL,
	}
}

func (s *Service) TokenTTL() time.Duration { return s.tokenTTL }

func (s *Service) GenerateToken(userID, phone string) (string, error) {
	return s.GenerateTokenWithTTL(userID, phone, s.tokenTTL)
}

// GenerateTokenWithTTL signs a session for one tenant. The tenant id is
// both the user_id claim and the subject.
func (s *Service) GenerateTokenWithTTL(userID, phone string, ttl time.Duration) (string, error) {
	now := time.Now()
	return jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		UserID: userID,
		Phone:  phone,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}).SignedString(s.jwtSecret)
}

// ValidateToken accepts only HS256 tokens from this issuer that name a
// tenant. Every failure collapses to ErrInvalidToken.
func (s *Service) ValidateToken(raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (interface{}, error) { return s.jwtSecret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid || claims.UserID == "" || claims.Subject != claims.UserID {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// NormalizePhone keeps only the digits of a phone number.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
