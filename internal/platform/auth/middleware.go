package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type contextKey string

const principalKey contextKey = "principal"

// Claims is the token payload the service issues and accepts. Subject holds
// the user id; ProviderID is set only for provider tokens.
type Claims struct {
	jwt.RegisteredClaims
	Role       string `json:"role"`
	ProviderID string `json:"provider_id,omitempty"`
	Email      string `json:"email,omitempty"`
}

// Principal is the authenticated caller as seen by handlers.
type Principal struct {
	UserID     uuid.UUID
	Role       string
	ProviderID uuid.UUID
	Email      string
}

// JWTMiddleware validates HS256 bearer tokens and stores the resulting
// Principal in both the echo context and the request context.
func JWTMiddleware(signingKey []byte) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
				return signingKey, nil
			}, jwt.WithValidMethods([]string{"HS256"}))
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			p, err := principalFromClaims(claims)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token claims")
			}

			setPrincipal(c, p)
			return next(c)
		}
	}
}

func principalFromClaims(claims *Claims) (*Principal, error) {
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, err
	}
	p := &Principal{
		UserID: userID,
		Role:   claims.Role,
		Email:  claims.Email,
	}
	if claims.ProviderID != "" {
		if p.ProviderID, err = uuid.Parse(claims.ProviderID); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func setPrincipal(c echo.Context, p *Principal) {
	c.Set(string(principalKey), p)
	ctx := context.WithValue(c.Request().Context(), principalKey, p)
	c.SetRequest(c.Request().WithContext(ctx))
}

// PrincipalFromContext returns the authenticated principal, or nil when the
// request did not pass the auth middleware.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey).(*Principal)
	return p
}

// Principal returns the principal stored on the echo context.
func PrincipalFrom(c echo.Context) *Principal {
	if p, ok := c.Get(string(principalKey)).(*Principal); ok {
		return p
	}
	return PrincipalFromContext(c.Request().Context())
}

// IssueToken signs an HS256 token for the principal. Used by tests and the
// dev token subcommand.
func IssueToken(signingKey []byte, claims Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey)
}

// DevAuthMiddleware is a permissive middleware for development. Requests
// without a bearer token get an admin principal; identity can be shaped with
// the X-Dev-User, X-Dev-Role and X-Dev-Provider headers.
func DevAuthMiddleware(signingKey []byte) echo.MiddlewareFunc {
	jwtMw := JWTMiddleware(signingKey)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		validate := jwtMw(next)
		return func(c echo.Context) error {
			if c.Request().Header.Get("Authorization") != "" {
				return validate(c)
			}

			p := &Principal{
				UserID: uuid.New(),
				Role:   "admin",
			}
			if v := c.Request().Header.Get("X-Dev-User"); v != "" {
				id, err := uuid.Parse(v)
				if err != nil {
					return echo.NewHTTPError(http.StatusBadRequest, "invalid X-Dev-User")
				}
				p.UserID = id
			}
			if v := c.Request().Header.Get("X-Dev-Role"); v != "" {
				p.Role = v
			}
			if v := c.Request().Header.Get("X-Dev-Provider"); v != "" {
				id, err := uuid.Parse(v)
				if err != nil {
					return echo.NewHTTPError(http.StatusBadRequest, "invalid X-Dev-Provider")
				}
				p.ProviderID = id
			}

			setPrincipal(c, p)
			return next(c)
		}
	}
}
