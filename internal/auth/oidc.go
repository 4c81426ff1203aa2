package auth

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"

	"stagepass/internal/models"
)

// OIDCVerifier accepts ID tokens from an external identity provider. The
// token subject must be the id of a registered user.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

func NewOIDCVerifier(ctx context.Context, issuer, clientID string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("create OIDC provider: %w", err)
	}
	return &OIDCVerifier{
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
	}, nil
}

func (v *OIDCVerifier) Verify(ctx context.Context, raw string) (models.TokenClaims, error) {
	idToken, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		return models.TokenClaims{}, fmt.Errorf("%w: %v", models.ErrUnauthenticated, err)
	}

	var claims struct {
		Sub               string `json:"sub"`
		PreferredUsername string `json:"preferred_username"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return models.TokenClaims{}, fmt.Errorf("%w: failed to parse claims", models.ErrUnauthenticated)
	}
	return models.TokenClaims{ID: claims.Sub, Username: claims.PreferredUsername}, nil
}
