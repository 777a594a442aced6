// Package auth issues and verifies the opaque bearer tokens carried in the
// X-Auth-Token header, and hashes subject credentials.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/quietfield/a11yd/internal/config"
	"github.com/quietfield/a11yd/internal/errs"
)

// HeaderName is the request header carrying the token.
const HeaderName = "X-Auth-Token"

// Manager signs and verifies HS256 tokens holding the subject id.
type Manager struct {
	secret     []byte
	ttl        time.Duration
	bcryptCost int
}

func NewManager(cfg config.AuthConfig) (*Manager, error) {
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("auth.jwt_secret is required")
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	cost := cfg.BcryptCost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Manager{secret: []byte(cfg.JWTSecret), ttl: ttl, bcryptCost: cost}, nil
}

// HashPassword hashes a plaintext credential for storage.
func (m *Manager) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), m.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword compares a stored hash against a candidate credential.
func (m *Manager) VerifyPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// IssueToken signs a token for subjectID.
func (m *Manager) IssueToken(subjectID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subjectID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// VerifyToken validates a token and returns the subject id it carries.
// Missing, malformed and expired tokens all come back Unauthorized.
func (m *Manager) VerifyToken(tokenString string) (string, error) {
	if tokenString == "" {
		return "", errs.New(errs.Unauthorized, "no token, authorization denied")
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid || claims.Subject == "" {
		return "", errs.Wrap(errs.Unauthorized, "token is not valid", err)
	}
	return claims.Subject, nil
}
