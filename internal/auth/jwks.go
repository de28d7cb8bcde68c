package auth

import (
	"context"
	"fmt"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/isdelr/ender-calendar-be/internal/models"
)

// ProviderClaims are the claims read from an external identity provider's ID token.
type ProviderClaims struct {
	Email         string `json:"email"`
	EmailVerified *bool  `json:"email_verified,omitempty"`
	jwt.RegisteredClaims
}

// JWKSVerifier accepts RS256 ID tokens signed by an external identity
// provider whose keys are published as a JWK Set.
type JWKSVerifier struct {
	keys     keyfunc.Keyfunc
	issuer   string
	audience string
}

// NewJWKSVerifier fetches the key set at url and keeps it refreshed in the
// background until ctx is cancelled. issuer and audience are only checked when set.
func NewJWKSVerifier(ctx context.Context, url, issuer, audience string) (*JWKSVerifier, error) {
	keys, err := keyfunc.NewDefaultCtx(ctx, []string{url})
	if err != nil {
		return nil, fmt.Errorf("failed to load JWKS from %s: %w", url, err)
	}
	return &JWKSVerifier{keys: keys, issuer: issuer, audience: audience}, nil
}

// Verify validates token against the key set and returns the viewer it names.
// An email the provider marks as unverified is dropped, so it can never
// match the admin address.
func (v *JWKSVerifier) Verify(tokenStr string) (*models.Viewer, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}), jwt.WithExpirationRequired()}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := &ProviderClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, v.keys.Keyfunc, opts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("invalid token")
	}

	viewer := &models.Viewer{UserID: claims.Subject, Email: claims.Email}
	if claims.EmailVerified != nil && !*claims.EmailVerified {
		viewer.Email = ""
	}
	return viewer, nil
}
