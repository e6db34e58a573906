package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/chaiacademy/academy/internal/core/domain"
)

// PageHandler serves the landing points the gate redirects to and the
// protected areas. Rendering lives in the frontend; these return JSON.
type PageHandler struct{}

func NewPageHandler() *PageHandler {
	return &PageHandler{}
}

type loginPage struct {
	CallbackURL string `json:"callbackUrl"`
	Error       string `json:"error,omitempty"`
}

// LoginPage is the target of unauthenticated redirects.
func (h *PageHandler) LoginPage(c echo.Context) error {
	page := loginPage{CallbackURL: safeCallback(c.QueryParam("callbackUrl"))}
	if c.QueryParam("error") != "" {
		page.Error = domain.ErrInvalidCredentials.Error()
	}
	return c.JSON(http.StatusOK, page)
}

// UnauthorizedPage is the target of forbidden redirects.
func (h *PageHandler) UnauthorizedPage(c echo.Context) error {
	return c.JSON(http.StatusForbidden, map[string]string{
		"error": "you do not have permission to access this page",
	})
}

type areaResponse struct {
	Area string          `json:"area"`
	User domain.Identity `json:"user"`
}

// Area returns a handler for a protected section that echoes the caller.
func (h *PageHandler) Area(name string) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := currentIdentity(c)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, areaResponse{Area: name, User: id})
	}
}
