// Package access decides whether a caller is an authorized operator.
//
// Operators log in once with the shared passkey and receive a signed session
// token. Verifying that token yields a Grant, which is handed explicitly to
// the components that may only run for operators.
package access

import (
	"errors"
	"fmt"
	"time"

	"github.com/example/machikart/internal/utils"
)

// ErrUnauthorized is returned for a wrong passkey or an invalid token.
var ErrUnauthorized = errors.New("unauthorized")

// OperatorSubject is the token subject of the shared operator account.
const OperatorSubject = "operator"

// Grant is proof of an authenticated operator session.
type Grant struct {
	Operator  string
	ExpiresAt time.Time
}

// Authorized reports whether the grant belongs to an operator and has not
// expired.
func (g Grant) Authorized() bool {
	return g.Operator != "" && time.Now().Before(g.ExpiresAt)
}

// Gate checks passkeys and issues grants.
type Gate struct {
	passkeyHash string
	secret      string
	ttl         time.Duration
	now         func() time.Time
}

// NewGate creates a gate. passkey may be a bcrypt hash or a plaintext value,
// which is hashed once here.
func NewGate(passkey, secret string, ttl time.Duration) (*Gate, error) {
	if passkey == "" || secret == "" {
		return nil, errors.New("access: passkey and secret are required")
	}
	hash := passkey
	if !utils.IsPasskeyHash(passkey) {
		var err error
		if hash, err = utils.HashPasskey(passkey); err != nil {
			return nil, fmt.Errorf("access: hash passkey: %w", err)
		}
	}
	return &Gate{passkeyHash: hash, secret: secret, ttl: ttl, now: time.Now}, nil
}

// Authenticate exchanges the passkey for a session token.
func (g *Gate) Authenticate(passkey string) (string, Grant, error) {
	if !utils.PasskeyMatches(g.passkeyHash, passkey) {
		return "", Grant{}, ErrUnauthorized
	}
	now := g.now()
	token, err := utils.GenerateToken(g.secret, OperatorSubject, g.ttl, now)
	if err != nil {
		return "", Grant{}, fmt.Errorf("access: sign token: %w", err)
	}
	return token, Grant{Operator: OperatorSubject, ExpiresAt: now.Add(g.ttl)}, nil
}

// Verify turns a session token back into a grant.
func (g *Gate) Verify(token string) (Grant, error) {
	subject, expires, err := utils.ParseToken(g.secret, token)
	if err != nil {
		return Grant{}, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	return Grant{Operator: subject, ExpiresAt: expires}, nil
}
