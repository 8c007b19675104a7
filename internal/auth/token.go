// Package auth verifies the bearer tokens the mail provider attaches to
// push notifications. Only inbound webhook verification lives here; the
// service issues no tokens of its own.
package auth

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// Verifier validates push notification tokens.
type Verifier struct {
	secret   []byte
	audience string
}

// NewVerifier builds a verifier for the subscription's shared secret.
func NewVerifier(secret, audience string) *Verifier {
	return &Verifier{secret: []byte(secret), audience: audience}
}

// Claims describes the push token payload.
type Claims struct {
	Subscription string `json:"subscription,omitempty"`
	jwt.RegisteredClaims
}

// Verify validates signature, expiry and audience of a push token.
func (v *Verifier) Verify(tokenStr string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token claims")
	}
	if v.audience != "" {
		if err := v.checkAudience(claims); err != nil {
			return nil, err
		}
	}
	return claims, nil
}

func (v *Verifier) checkAudience(claims *Claims) error {
	for _, aud := range claims.Audience {
		if aud == v.audience {
			return nil
		}
	}
	return errors.New("token audience mismatch")
}

// IssueToken signs a push token; used by tests and the local development
// sender.
func (v *Verifier) IssueToken(subscription string, ttl time.Duration) (string, error) {
	claims := &Claims{
		Subscription: subscription,
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{v.audience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
