package middleware

import (
	"context"
	"net/http"
	"strings"

	"portal/internal/policy"

	"github.com/rs/zerolog"
)

// Injected key type to avoid context collisions
type contextKey string

const UserContextKey = contextKey("user")

// Authenticator resolves a bearer token to the caller.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (policy.Actor, error)
}

func AuthMiddleware(authn Authenticator, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Debug().Msg("Authorization header missing")
				http.Error(w, "Authorization header missing", http.StatusUnauthorized)
				return
			}
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				logger.Debug().Msg("Invalid authorization header")
				http.Error(w, "Invalid authorization header", http.StatusUnauthorized)
				return
			}
			actor, err := authn.Authenticate(r.Context(), parts[1])
			if err != nil {
				logger.Warn().Err(err).Msg("Invalid token")
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), UserContextKey, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ActorFromContext returns the caller stored by AuthMiddleware.
func ActorFromContext(ctx context.Context) (policy.Actor, bool) {
	actor, ok := ctx.Value(UserContextKey).(policy.Actor)
	return actor, ok && actor.UserID != ""
}

// WithActor returns a copy of ctx carrying actor.
func WithActor(ctx context.Context, actor policy.Actor) context.Context {
	return context.WithValue(ctx, UserContextKey, actor)
}
