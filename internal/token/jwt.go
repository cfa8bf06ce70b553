// Package token issues and verifies the HS256 session tokens handed out at
// login. Tokens are stateless: validity is signature plus expiry.
package token

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"employee-manager/internal/common"
	"employee-manager/internal/models"
)

// DefaultTTL is the lifetime of a session token.
const DefaultTTL = time.Hour

// Subject is the identity carried by a verified token.
type Subject struct {
	UserID   int64
	Username string
}

type Manager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewManager creates a Manager signing with secret. A non-positive ttl falls
// back to DefaultTTL.
func NewManager(secret []byte, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{secret: secret, ttl: ttl, now: time.Now}
}

// Issue mints a token for user and returns it with its expiry.
func (m *Manager) Issue(user *models.User) (string, time.Time, error) {
	issuedAt := m.now()
	expiresAt := issuedAt.Add(m.ttl)

	claims := &models.Claims{
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks the signature and expiry of tokenString. An empty token is
// ErrUnauthorized; every other failure is ErrForbidden.
func (m *Manager) Verify(tokenString string) (*Subject, error) {
	if tokenString == "" {
		return nil, common.ErrUnauthorized
	}

	claims := &models.Claims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: token expired", common.ErrForbidden)
		}
		return nil, fmt.Errorf("%w: %v", common.ErrForbidden, err)
	}
	if !parsed.Valid {
		return nil, common.ErrForbidden
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad subject", common.ErrForbidden)
	}
	return &Subject{UserID: userID, Username: claims.Username}, nil
}
