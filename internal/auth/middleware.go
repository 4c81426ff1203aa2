package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"stagepass/internal/logger"
	"stagepass/internal/models"
	"stagepass/internal/utils"
)

type contextKey string

const identityKey contextKey = "identity"

// Authenticator is satisfied by *Gate.
type Authenticator interface {
	Authenticate(ctx context.Context, credential string) (models.Identity, error)
}

// Middleware rejects requests without a valid bearer token with 401 and
// stores the caller's Identity in the request context otherwise.
func Middleware(gate Authenticator, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := ExtractTokenFromRequest(r)
			if err != nil {
				utils.WriteError(w, fmt.Errorf("%w: %v", models.ErrUnauthenticated, err))
				return
			}

			identity, err := gate.Authenticate(r.Context(), raw)
			if err != nil {
				if errors.Is(err, models.ErrUnauthenticated) {
					log.LogSecurity("AUTH_REJECTED", fmt.Sprintf("%s %s: %v", r.Method, r.URL.Path, err))
				} else {
					log.Error("AUTH", fmt.Sprintf("Identity resolution failed: %v", err))
				}
				utils.WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// RequireOrganizer must run after Middleware.
func RequireOrganizer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			utils.WriteError(w, models.ErrUnauthenticated)
			return
		}
		if !identity.Organizer {
			utils.WriteError(w, fmt.Errorf("%w: organizer account required", models.ErrForbidden))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func WithIdentity(ctx context.Context, identity models.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

func IdentityFromContext(ctx context.Context) (models.Identity, bool) {
	identity, ok := ctx.Value(identityKey).(models.Identity)
	return identity, ok
}
