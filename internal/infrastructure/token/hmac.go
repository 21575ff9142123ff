// Package token verifies bearer tokens that do not come from Firebase: HS256
// tokens signed with a shared secret and RS256/ES256 tokens published through
// a JWKS endpoint.
package token

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// HMACVerifier issues and verifies HS256 tokens whose subject is the account
// id.
type HMACVerifier struct {
	secret []byte
	expiry time.Duration
	issuer string
}

func NewHMACVerifier(secret string, expiry time.Duration) *HMACVerifier {
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	return &HMACVerifier{
		secret: []byte(secret),
		expiry: expiry,
		issuer: "marketchat",
	}
}

func (v *HMACVerifier) Issue(userID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    v.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(v.expiry)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

func (v *HMACVerifier) VerifyToken(ctx context.Context, raw string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	return subject(claims)
}

func subject(claims *jwt.RegisteredClaims) (string, error) {
	if claims.Subject == "" {
		return "", fmt.Errorf("token has no subject")
	}
	return claims.Subject, nil
}
