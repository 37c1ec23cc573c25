package middleware

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"

	"project-hub-backend/pkg/models"
	"project-hub-backend/pkg/services"
	"project-hub-backend/pkg/utils"
)

// ContextKey is the type of the request context keys set by this package.
type ContextKey string

const (
	ActorContextKey ContextKey = "actor"
)

// Authenticator resolves a bearer token into the acting user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (services.Actor, error)
}

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	token := strings.TrimPrefix(header, "Bearer ")
	if token == header || token == "" {
		return "", false
	}
	return token, true
}

// AuthMiddleware requires a valid access token whose user is still active.
func AuthMiddleware(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				utils.WriteUnauthorizedResponse(w, "Access token required")
				return
			}

			actor, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				var se *services.Error
				if errors.As(err, &se) && se.Kind == services.KindUnauthorized {
					utils.WriteUnauthorizedResponse(w, se.Message)
					return
				}
				utils.WriteInternalServerErrorResponse(w, "Authentication failed", "")
				return
			}

			setRequestUser(r.Context(), actor.ID)
			ctx := context.WithValue(r.Context(), ActorContextKey, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects authenticated users whose role is not one of roles.
func RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := GetActorFromContext(r.Context())
			if !ok {
				utils.WriteUnauthorizedResponse(w, "Access token required")
				return
			}
			if !slices.Contains(roles, actor.Role) {
				utils.WriteForbiddenResponse(w, "Insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetActorFromContext returns the actor stored by AuthMiddleware.
func GetActorFromContext(ctx context.Context) (services.Actor, bool) {
	actor, ok := ctx.Value(ActorContextKey).(services.Actor)
	return actor, ok
}

// WithActor stores actor in ctx. Tests use it to bypass token handling.
func WithActor(ctx context.Context, actor services.Actor) context.Context {
	return context.WithValue(ctx, ActorContextKey, actor)
}
