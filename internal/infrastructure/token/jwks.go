package token

import (
	"context"
	"fmt"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"

	"marketchat/pkg/logger"
)

// JWKSVerifier validates asymmetric tokens against keys fetched from an
// identity provider's JWKS endpoint. Keys refresh in the background.
type JWKSVerifier struct {
	jwks *keyfunc.JWKS
}

func NewJWKSVerifier(ctx context.Context, url string) (*JWKSVerifier, error) {
	jwks, err := keyfunc.Get(url, keyfunc.Options{
		Ctx:               ctx,
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  5 * time.Minute,
		RefreshTimeout:    10 * time.Second,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			logger.Error("JWKS refresh failed: %v", err)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load JWKS from %s: %w", url, err)
	}
	return &JWKSVerifier{jwks: jwks}, nil
}

func (v *JWKSVerifier) VerifyToken(ctx context.Context, raw string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	if _, err := jwt.ParseWithClaims(raw, claims, v.jwks.Keyfunc); err != nil {
		return "", err
	}
	return subject(claims)
}

// Close stops the background refresh.
func (v *JWKSVerifier) Close() {
	v.jwks.EndBackground()
}
