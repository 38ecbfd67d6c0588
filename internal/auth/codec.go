// Package auth issues and verifies credentials and turns inbound requests
// into an Identity.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
)

// DefaultTTL is the validity window of an issued credential.
const DefaultTTL = 2 * time.Hour

var (
	ErrInvalidCredential = errors.New("invalid credential")
	ErrExpiredCredential = errors.New("expired credential")
)

// Claim is the identity embedded in a credential.
type Claim struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type tokenClaims struct {
	Data Claim `json:"data"`
	jwt.RegisteredClaims
}

// Codec signs and verifies HS256 credentials with an injected secret.
type Codec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewCodec(secret []byte, ttl time.Duration) *Codec {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Codec{secret: secret, ttl: ttl, now: time.Now}
}

// TTL reports the validity window applied by Issue.
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// Issue signs claim together with issue time, expiry and a unique token id.
func (c *Codec) Issue(claim Claim) (string, error) {
	now := c.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		Data: claim,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        ulid.Make().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	})
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign credential: %w", err)
	}
	return signed, nil
}

// Verify returns the embedded claim, or ErrExpiredCredential / ErrInvalidCredential.
func (c *Codec) Verify(token string) (Claim, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Claim{}, ErrInvalidCredential
	}

	var claims tokenClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claim{}, ErrExpiredCredential
		}
		return Claim{}, ErrInvalidCredential
	}
	if claims.Data.ID == "" || claims.Data.Username == "" {
		return Claim{}, ErrInvalidCredential
	}
	return claims.Data, nil
}
