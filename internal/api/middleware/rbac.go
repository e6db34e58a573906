package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/chaiacademy/academy/internal/core/domain"
)

// RequireAuth rejects requests that reached the handler without an identity.
// Route subtrees are normally guarded by the gate; this is for individual
// handlers outside the route policy, where the gate attaches the identity of
// any valid credential but denies nothing.
func RequireAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, ok := IdentityFrom(c); !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, domain.ErrInvalidSession.Error())
			}
			return next(c)
		}
	}
}

// RequireRole enforces an explicit allowed-role set on a single route or group.
func RequireRole(allowedRoles ...domain.Role) echo.MiddlewareFunc {
	allowed := make(map[domain.Role]struct{}, len(allowedRoles))
	for _, r := range allowedRoles {
		allowed[r] = struct{}{}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := IdentityFrom(c)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, domain.ErrInvalidSession.Error())
			}
			if _, ok := allowed[id.Role]; !ok {
				return echo.NewHTTPError(http.StatusForbidden, domain.ErrForbidden.Error())
			}
			return next(c)
		}
	}
}
