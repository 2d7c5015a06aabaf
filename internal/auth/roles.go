package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-bot/pkg/util"
)

// RequireReviewer ensures the caller holds the reviewer role.
func RequireReviewer() fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return util.NewUnauthorized("authentication required")
		}
		if principal.Role != RoleReviewer {
			return util.NewPolicyDenied("reviewer role required")
		}
		return c.Next()
	}
}
