// Package session issues and verifies the signed cookie that carries the access mode.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type Mode string

const (
	ModeFull     Mode = "full"
	ModeViewOnly Mode = "view_only"
)

var (
	ErrInvalidToken = errors.New("invalid session token")
	ErrEmptySecret  = errors.New("session secret is empty")
)

const issuer = "next2play"

type Claims struct {
	Mode Mode `json:"mode"`
	jwt.RegisteredClaims
}

type Manager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewManager(secret string, ttl time.Duration) (*Manager, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	return &Manager{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

func (m *Manager) TTL() time.Duration {
	return m.ttl
}

func (m *Manager) Issue(mode Mode) (string, error) {
	const op = "session.Issue"

	if mode != ModeFull && mode != ModeViewOnly {
		return "", fmt.Errorf("%s: unknown mode %q", op, mode)
	}

	now := m.now()
	claims := Claims{
		Mode: mode,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return token, nil
}

func (m *Manager) Parse(raw string) (*Claims, error) {
	const op = "session.Parse"

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidToken, err)
	}

	if claims.Mode != ModeFull && claims.Mode != ModeViewOnly {
		return nil, fmt.Errorf("%s: mode %q: %w", op, claims.Mode, ErrInvalidToken)
	}

	return claims, nil
}
