package middleware

import (
	"context"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/cantina/internal/auth"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// ClientKey is the context key for storing the authenticated client name.
	ClientKey contextKey = "client"

	// slotKey holds a *clientSlot placed by LoggingInterceptor.
	slotKey contextKey = "client_slot"
)

// clientSlot lets interceptors running before authentication learn the
// client name once it is known.
type clientSlot struct {
	name string
}

// GetClient extracts the client name from the context.
// Returns empty string if not found.
func GetClient(ctx context.Context) string {
	client, _ := ctx.Value(ClientKey).(string)
	return client
}

// WithClient returns a copy of ctx carrying client.
func WithClient(ctx context.Context, client string) context.Context {
	if slot, ok := ctx.Value(slotKey).(*clientSlot); ok {
		slot.name = client
	}
	return context.WithValue(ctx, ClientKey, client)
}

// RequireAuth returns an interceptor that validates the bearer token of every
// call and adds the client name to the request context.
func RequireAuth(jwtManager *auth.JWTManager) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			authHeader := req.Header().Get("Authorization")
			if authHeader == "" {
				return nil, connect.NewError(connect.CodeUnauthenticated, auth.ErrMissingToken)
			}

			scheme, tokenString, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || tokenString == "" {
				return nil, connect.NewError(connect.CodeUnauthenticated, auth.ErrInvalidToken)
			}

			claims, err := jwtManager.Validate(strings.TrimSpace(tokenString))
			if err != nil {
				return nil, connect.NewError(connect.CodeUnauthenticated, err)
			}

			return next(WithClient(ctx, claims.Client), req)
		}
	}
}
