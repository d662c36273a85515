// Package middleware provides authentication and authorization middleware for the application.
package middleware

import (
	"strings"

	"freightdesk/internal/config"
	"freightdesk/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

var cfg *config.Config

// InitMiddleware initializes authentication middleware with the given config.
func InitMiddleware(c *config.Config) {
	cfg = c
}

// Fiber locals keys set by the auth middleware.
const (
	LocalActorID      = "actorID"
	LocalActorRole    = "actorRole"
	LocalCapabilities = "capabilities"
)

// AuthRequired enforces authentication for protected routes. The session
// subsystem issues the token; this middleware only verifies it and resolves
// the roles claim into the closed capability set, so no role string ever
// reaches the workflow core.
func AuthRequired(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authorization header required",
		})
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid authorization header format",
		})
	}

	return authenticateToken(c, parts[1])
}

// WebSocketAuthRequired validates tokens from query parameters for WebSocket
// connections, falling back to the Authorization header.
func WebSocketAuthRequired(c *fiber.Ctx) error {
	token := c.Query("token")
	if token == "" {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Token required",
			})
		}
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid authorization header format",
			})
		}
		token = parts[1]
	}

	return authenticateToken(c, token)
}

func authenticateToken(c *fiber.Ctx, tokenString string) error {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fiber.NewError(fiber.StatusUnauthorized, "Invalid signing method")
		}
		return []byte(cfg.JWTSecret), nil
	})

	if err != nil || !token.Valid {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid or expired token",
		})
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid token claims",
		})
	}

	// Subject claim per RFC 7519 carries the actor identifier.
	subClaim, ok := claims["sub"]
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid token structure - missing subject",
		})
	}
	actorID, ok := subClaim.(string)
	if !ok || strings.TrimSpace(actorID) == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid token subject",
		})
	}

	roles := rolesFromClaims(claims)

	c.Locals(LocalActorID, actorID)
	c.Locals(LocalActorRole, primaryRole(roles))
	c.Locals(LocalCapabilities, models.ResolveCapabilities(roles))

	return c.Next()
}

// rolesFromClaims extracts the roles claim, tolerating both a JSON array and
// a comma-separated string.
func rolesFromClaims(claims jwt.MapClaims) []string {
	switch v := claims["roles"].(type) {
	case []interface{}:
		roles := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				roles = append(roles, s)
			}
		}
		return roles
	case string:
		return strings.Split(v, ",")
	}
	return nil
}

// primaryRole picks the role recorded on audit rows: the first recognized
// role claim, or "unknown" when the token carries none.
func primaryRole(roles []string) string {
	for _, role := range roles {
		role = strings.ToLower(strings.TrimSpace(role))
		switch role {
		case "manager", "accounts", "admin", "super_admin":
			return role
		}
	}
	return "unknown"
}

// ActorFromLocals reconstructs the authenticated actor from Fiber locals.
// It returns false when the auth middleware did not run.
func ActorFromLocals(c *fiber.Ctx) (models.Actor, bool) {
	actorID, ok := c.Locals(LocalActorID).(string)
	if !ok || actorID == "" {
		return models.Actor{}, false
	}
	role, _ := c.Locals(LocalActorRole).(string)
	caps, _ := c.Locals(LocalCapabilities).(models.CapabilitySet)
	if caps == nil {
		caps = models.NewCapabilitySet()
	}
	return models.Actor{ID: actorID, Role: role, Capabilities: caps}, true
}
