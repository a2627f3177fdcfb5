package web

import (
	"net/http"
	"strings"
	"time"

	"homenotes/app"

	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/rweb"
)

// CorsMiddleware handles CORS headers for cross-origin requests
func CorsMiddleware(c rweb.Context) error {
	c.Response().SetHeader("Access-Control-Allow-Origin", "*")
	c.Response().SetHeader("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	c.Response().SetHeader("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

	if c.Request().Method() == "OPTIONS" {
		c.SetStatus(http.StatusOK)
		return nil
	}
	return c.Next()
}

// TokenAuthMiddleware guards the JSON API when a JWT secret is configured.
// Requests must carry "Authorization: Bearer <token>" signed with that secret;
// signing in (POST /api/v1/session) is the one open route. Without a secret the
// API is open, as for a single-user device.
func TokenAuthMiddleware(a *app.App) rweb.Handler {
	return func(c rweb.Context) error {
		if a.Tokens == nil {
			return c.Next()
		}
		path := c.Request().Path()
		if !strings.HasPrefix(path, "/api/") ||
			(path == "/api/v1/session" && c.Request().Method() == "POST") {
			return c.Next()
		}

		authHeader := c.Request().Header("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return unauthorized(c)
		}
		user, err := a.Tokens.Parse(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			// Don't log every invalid token attempt
			return unauthorized(c)
		}
		c.Set("uid", user.UID)
		return c.Next()
	}
}

func unauthorized(c rweb.Context) error {
	c.SetStatus(http.StatusUnauthorized)
	return c.WriteJSON(map[string]any{
		"success": false,
		"error":   "authentication required",
	})
}

// SecurityHeadersMiddleware adds security headers to responses
func SecurityHeadersMiddleware(c rweb.Context) error {
	c.Response().SetHeader("X-Content-Type-Options", "nosniff")
	c.Response().SetHeader("X-Frame-Options", "DENY")
	c.Response().SetHeader("Referrer-Policy", "strict-origin-when-cross-origin")

	csp := []string{
		"default-src 'self'",
		"script-src 'self' 'unsafe-inline'",
		"style-src 'self' 'unsafe-inline'",
		"img-src 'self' data: blob:",
		"connect-src 'self'",
	}
	c.Response().SetHeader("Content-Security-Policy", strings.Join(csp, "; "))
	return c.Next()
}

// LoggingMiddleware provides detailed request logging
func LoggingMiddleware(c rweb.Context) error {
	start := time.Now()
	err := c.Next()
	logger.Debug("Request completed",
		"method", c.Request().Method(),
		"path", c.Request().Path(),
		"duration", time.Since(start).String(),
		"error", err,
	)
	return err
}
