package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/lead-router/internal/domain"
	apperrors "github.com/spec-kit/lead-router/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// OperatorLoader fetches the operator a token refers to.
type OperatorLoader interface {
	GetByID(ctx context.Context, id int64) (*domain.Operator, error)
}

// Principal represents the authenticated caller.
type Principal struct {
	Operator *domain.Operator
	Role     domain.Role
}

// OperatorID returns the caller's operator id.
func (p *Principal) OperatorID() int64 {
	return p.Operator.ID
}

// AuthMiddleware validates bearer tokens and loads principals.
type AuthMiddleware struct {
	tokens      *TokenManager
	operators   OperatorLoader
	defaultRole domain.Role
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager, operators OperatorLoader, defaultRole domain.Role) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, operators: operators, defaultRole: defaultRole}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(strings.TrimSpace(parts[1]))
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	operator, err := m.operators.GetByID(c.UserContext(), claims.OperatorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewUnauthorized("operator not found")
		}
		return apperrors.MapError(err)
	}
	if !operator.IsActive() {
		return apperrors.NewForbidden("operator is not active")
	}

	c.Locals(principalKey, &Principal{Operator: operator, Role: m.resolveRole(operator, claims)})
	return c.Next()
}

// resolveRole prefers the stored role, then the token's, then the configured default.
func (m *AuthMiddleware) resolveRole(operator *domain.Operator, claims *Claims) domain.Role {
	if role, err := domain.ParseRole(string(operator.Role)); err == nil {
		return role
	}
	if role, err := domain.ParseRole(string(claims.Role)); err == nil {
		return role
	}
	return m.defaultRole
}

// PrincipalFromContext retrieves the authenticated operator.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}
