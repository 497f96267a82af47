package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidSession is returned for any session token that cannot be trusted
var ErrInvalidSession = errors.New("invalid session")

// Claims is what the session cookie carries: the signed-in account
type Claims struct {
	UserID uint   `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// SessionManager signs and validates session tokens
type SessionManager struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewSessionManager creates a manager signing with secret; tokens live for ttl
func NewSessionManager(secret string, ttl time.Duration) *SessionManager {
	return &SessionManager{key: []byte(secret), ttl: ttl, now: time.Now}
}

// TTL is the lifetime of issued tokens
func (m *SessionManager) TTL() time.Duration { return m.ttl }

// GenerateToken creates a signed session token for an account
func (m *SessionManager) GenerateToken(userID uint, email string) (string, error) {
	now := m.now()
	claims := &Claims{
		UserID: userID,
		Email:  strings.ToLower(strings.TrimSpace(email)),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.key)
}

// ValidateToken checks signature, algorithm and expiry and returns the claims
func (m *SessionManager) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return m.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidSession
	}
	if claims.Email == "" {
		return nil, ErrInvalidSession
	}
	return claims, nil
}
