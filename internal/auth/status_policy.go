package auth

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/lead-router/internal/domain"
)

// statusPolicy lists, per role, the statuses a caller may set when committing an order.
var statusPolicy = map[domain.Role][]domain.OrderStatus{
	domain.RoleOperator: {
		domain.OrderStatusApproved,
		domain.OrderStatusRecall,
		domain.OrderStatusReject,
		domain.OrderStatusTrash,
		domain.OrderStatusNoAnswer,
		domain.OrderStatusPending,
	},
	domain.RoleSupervisor: {
		domain.OrderStatusNew,
		domain.OrderStatusApproved,
		domain.OrderStatusRecall,
		domain.OrderStatusReject,
		domain.OrderStatusTrash,
		domain.OrderStatusNoAnswer,
		domain.OrderStatusPending,
	},
	domain.RoleAdmin: domain.AllOrderStatuses(),
}

// AllowedStatuses returns the statuses role may set. Unknown roles get none.
func AllowedStatuses(role domain.Role) []domain.OrderStatus {
	allowed := statusPolicy[role]
	out := make([]domain.OrderStatus, len(allowed))
	copy(out, allowed)
	return out
}

// CanSetStatus reports whether role may move an order into status.
func CanSetStatus(role domain.Role, status domain.OrderStatus) bool {
	for _, s := range statusPolicy[role] {
		if s == status {
			return true
		}
	}
	return false
}

// RequireRole ensures the authenticated operator has one of the allowed roles.
func RequireRole(allowed ...domain.Role) fiber.Handler {
	allowedSet := make(map[domain.Role]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return fiber.NewError(http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		}
		if len(allowedSet) == 0 {
			return c.Next()
		}
		if _, exists := allowedSet[principal.Role]; !exists {
			return fiber.NewError(http.StatusForbidden, "insufficient role")
		}
		return c.Next()
	}
}
