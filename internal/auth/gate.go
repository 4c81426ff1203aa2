package auth

import (
	"context"
	"errors"
	"fmt"

	"stagepass/internal/logger"
	"stagepass/internal/models"
)

// UserLookup is the slice of the user store the gate needs.
type UserLookup interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

// Gate resolves a bearer credential to a verified Identity. Verifiers are
// tried in order and the first that accepts the token wins. The organizer
// flag always comes from the user store, never from the token.
type Gate struct {
	verifiers []Verifier
	users     UserLookup
	cache     IdentityCache
	logger    *logger.Logger
}

// NewGate builds a gate. cache may be nil.
func NewGate(users UserLookup, cache IdentityCache, log *logger.Logger, verifiers ...Verifier) *Gate {
	return &Gate{verifiers: verifiers, users: users, cache: cache, logger: log}
}

func (g *Gate) Authenticate(ctx context.Context, credential string) (models.Identity, error) {
	if credential == "" {
		return models.Identity{}, fmt.Errorf("%w: missing credential", models.ErrUnauthenticated)
	}

	var (
		claims  models.TokenClaims
		lastErr error
		ok      bool
	)
	for _, v := range g.verifiers {
		c, err := v.Verify(ctx, credential)
		if err == nil {
			claims, ok = c, true
			break
		}
		lastErr = err
	}
	if !ok {
		if lastErr == nil {
			lastErr = fmt.Errorf("%w: no verifier configured", models.ErrUnauthenticated)
		}
		return models.Identity{}, lastErr
	}

	return g.resolve(ctx, claims.ID)
}

func (g *Gate) resolve(ctx context.Context, userID string) (models.Identity, error) {
	if g.cache != nil {
		cached, err := g.cache.Get(ctx, userID)
		if err != nil {
			g.logger.Warn("AUTH", fmt.Sprintf("Identity cache read failed for %s: %v", userID, err))
		} else if cached != nil {
			return *cached, nil
		}
	}

	user, err := g.users.GetUserByID(ctx, userID)
	if errors.Is(err, models.ErrNotFound) {
		return models.Identity{}, fmt.Errorf("%w: unknown user", models.ErrUnauthenticated)
	}
	if err != nil {
		return models.Identity{}, err
	}

	identity := models.Identity{ID: user.ID, Username: user.Username, Organizer: user.Organizer}
	if g.cache != nil {
		if err := g.cache.Set(ctx, identity); err != nil {
			g.logger.Warn("AUTH", fmt.Sprintf("Identity cache write failed for %s: %v", userID, err))
		}
	}
	return identity, nil
}
