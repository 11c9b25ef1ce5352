package api

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	echo "github.com/labstack/echo/v5"
)

// Context keys for the authenticated tenant identity.
const (
	ctxTeamID = "hive.team_id"
	ctxUserID = "hive.user_id"
)

// securityHeaders returns middleware that sets standard security response headers.
func securityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			return next(c)
		}
	}
}

// authMiddleware verifies the bearer token and stores {team_id, user_id}
// on the request context. Browsers cannot set headers on WebSocket or SSE
// upgrades, so a ?token= query parameter is accepted as a fallback.
func (s *Server) authMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			token := bearerToken(c)
			if token == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}

			teamID, userID, err := s.verifyToken(token)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid bearer token")
			}
			if teamID == "" {
				return echo.NewHTTPError(http.StatusBadRequest, "token carries no team context")
			}

			c.Set(ctxTeamID, teamID)
			c.Set(ctxUserID, userID)
			return next(c)
		}
	}
}

func bearerToken(c *echo.Context) string {
	if h := c.Request().Header.Get("Authorization"); h != "" {
		if strings.HasPrefix(h, "Bearer ") {
			return strings.TrimPrefix(h, "Bearer ")
		}
	}
	return c.QueryParam("token")
}

// verifyToken parses and validates an HS256 token, returning the team and
// user claims.
func (s *Server) verifyToken(token string) (teamID, userID string, err error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		return []byte(s.cfg.JWTSecret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !parsed.Valid {
		return "", "", err
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", jwt.ErrTokenInvalidClaims
	}
	teamID, _ = claims["team_id"].(string)
	userID, _ = claims["user_id"].(string)
	return teamID, userID, nil
}

// teamID returns the authenticated team for the request.
func teamID(c *echo.Context) string {
	v, _ := c.Get(ctxTeamID).(string)
	return v
}

// userID returns the authenticated user for the request.
func userID(c *echo.Context) string {
	v, _ := c.Get(ctxUserID).(string)
	return v
}
