package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	UserIDKey    contextKey = "user_id"
	UserRolesKey contextKey = "user_roles"
	TokenKey     contextKey = "token"
)

// TokenInfo identifies the bearer token of the current request.
type TokenInfo struct {
	ID        string
	ExpiresAt time.Time
}

// JWTMiddleware rejects requests without a valid, unrevoked bearer token and
// puts the subject and roles on the request context. revoked may be nil.
func JWTMiddleware(issuer *TokenIssuer, revoked *TokenRevocationStore) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			claims, err := issuer.Parse(strings.TrimSpace(parts[1]))
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			if revoked != nil && revoked.IsRevoked(claims.ID) {
				return echo.NewHTTPError(http.StatusUnauthorized, "token revoked")
			}

			ctx := c.Request().Context()
			ctx = context.WithValue(ctx, UserIDKey, claims.Subject)
			ctx = context.WithValue(ctx, UserRolesKey, claims.Roles)
			ctx = context.WithValue(ctx, TokenKey, TokenInfo{ID: claims.ID, ExpiresAt: claims.ExpiresAt.Time})
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

func UserIDFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(UserIDKey).(string)
	return uid
}

func RolesFromContext(ctx context.Context) []string {
	roles, _ := ctx.Value(UserRolesKey).([]string)
	return roles
}

func TokenFromContext(ctx context.Context) (TokenInfo, bool) {
	ti, ok := ctx.Value(TokenKey).(TokenInfo)
	return ti, ok
}

// WithUser returns ctx carrying username and roles, as JWTMiddleware would.
func WithUser(ctx context.Context, username string, roles ...string) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, username)
	return context.WithValue(ctx, UserRolesKey, roles)
}
