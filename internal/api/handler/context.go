package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/chaiacademy/academy/internal/api/middleware"
	"github.com/chaiacademy/academy/internal/core/domain"
)

// currentIdentity returns the identity the gate attached to the request.
// Handlers mounted under a protected prefix can rely on it; a missing
// identity means the handler was mounted outside the route policy.
func currentIdentity(c echo.Context) (domain.Identity, error) {
	id, ok := middleware.IdentityFrom(c)
	if !ok || id.ID == "" {
		return domain.Identity{}, echo.NewHTTPError(http.StatusUnauthorized, domain.ErrInvalidSession.Error())
	}
	return id, nil
}
