// Package auth implements operator authentication for the coordinator's
// REST API: JWT bearer tokens and bcrypt password hashing, grounded on the
// teacher's internal/auth/jwt.go. This has nothing to do with the device
// inclusion handshake's own P-256/AES cryptography (pkg/mesh) — it secures
// the coordinator's HTTP surface, not the radio link.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/radiomesh/radiomesh/internal/config"
	"github.com/radiomesh/radiomesh/internal/models"
)

// Manager issues and validates operator JWTs.
type Manager struct {
	cfg *config.JWTConfig
}

// NewManager builds a Manager from the coordinator's JWT configuration.
func NewManager(cfg *config.JWTConfig) *Manager {
	return &Manager{cfg: cfg}
}

// Claims is the JWT payload carried for an authenticated operator.
type Claims struct {
	jwt.RegisteredClaims
	OperatorID uuid.UUID `json:"operator_id"`
	Email      string    `json:"email"`
	IsAdmin    bool      `json:"is_admin"`
}

// GenerateToken issues a signed access token for op.
func (m *Manager) GenerateToken(op *models.Operator) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   op.ID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.cfg.AccessTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "radiomesh-coordinator",
		},
		OperatorID: op.ID,
		Email:      op.Email,
		IsAdmin:    op.IsAdmin,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(m.cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and verifies a bearer token, returning its claims.
func (m *Manager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(m.cfg.Secret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}
