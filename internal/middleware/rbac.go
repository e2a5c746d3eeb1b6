package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/mockmate-judge/internal/utils"
)

// RequireRole admits requests whose user_role local, set by JWTProtected, is one of
// roles. Anonymous requests and unknown roles get 403.
func RequireRole(roles ...string) fiber.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		if normalized := normalizeRole(role); normalized != "" {
			allowed[normalized] = struct{}{}
		}
	}

	return func(c *fiber.Ctx) error {
		role, _ := c.Locals("user_role").(string)
		if _, ok := allowed[normalizeRole(role)]; !ok {
			return utils.SendError(c, fiber.StatusForbidden, "role not permitted to use the judge")
		}
		return c.Next()
	}
}
