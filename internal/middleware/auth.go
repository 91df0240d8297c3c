package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/example/machikart/internal/access"
)

const grantContextKey = "operatorGrant"

// OperatorMiddleware validates the operator session token and loads the grant
// into context.
func OperatorMiddleware(gate *access.Gate) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing authorization header")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid authorization header")
		}

		grant, err := gate.Verify(parts[1])
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
		}

		c.Locals(grantContextKey, grant)
		return c.Next()
	}
}

// GetGrant extracts the operator grant from context. The zero Grant is
// returned for requests that did not pass OperatorMiddleware.
func GetGrant(c *fiber.Ctx) access.Grant {
	if grant, ok := c.Locals(grantContextKey).(access.Grant); ok {
		return grant
	}
	return access.Grant{}
}
