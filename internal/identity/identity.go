// Package identity verifies bearer tokens and carries the signed-in user
// through request contexts.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrUnauthenticated = errors.New("user not authenticated")

type Principal struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

type ctxKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	return p, ok && p.UserID != ""
}

// UserID returns the signed-in user id, or "" when the request is anonymous.
func UserID(ctx context.Context) string {
	p, _ := FromContext(ctx)
	return p.UserID
}

type claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 tokens with subject = user id and an email claim.
type Verifier struct {
	secret     []byte
	adminEmail string
}

func NewVerifier(secret, adminEmail string) *Verifier {
	return &Verifier{secret: []byte(secret), adminEmail: strings.TrimSpace(adminEmail)}
}

func (v *Verifier) Verify(token string) (Principal, error) {
	if len(v.secret) == 0 || token == "" {
		return Principal{}, ErrUnauthenticated
	}

	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if c.Subject == "" {
		return Principal{}, fmt.Errorf("%w: missing subject", ErrUnauthenticated)
	}
	return Principal{UserID: c.Subject, Email: c.Email}, nil
}

// Issue signs a token for p. It backs local tooling and tests; production
// tokens come from the hosted identity provider sharing the secret.
func (v *Verifier) Issue(p Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Email: p.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return t.SignedString(v.secret)
}

// IsAdmin reports whether p is the configured admin. No admin is configured
// when the admin email is empty.
func (v *Verifier) IsAdmin(p Principal) bool {
	return v.adminEmail != "" && strings.EqualFold(p.Email, v.adminEmail)
}
