package handler

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/chaiacademy/academy/internal/api/metrics"
	"github.com/chaiacademy/academy/internal/api/middleware"
	"github.com/chaiacademy/academy/internal/core/domain"
	"github.com/chaiacademy/academy/internal/core/ports"
)

const defaultCallback = "/dashboard"

type AuthHandler struct {
	authService ports.AuthService
	sessions    ports.SessionIssuer
	cookie      middleware.SessionCookie
	loginPath   string
}

func NewAuthHandler(authService ports.AuthService, sessions ports.SessionIssuer, cookie middleware.SessionCookie, loginPath string) *AuthHandler {
	return &AuthHandler{authService: authService, sessions: sessions, cookie: cookie, loginPath: loginPath}
}

type signupRequest struct {
	Email      string `json:"email" form:"email" validate:"required,email"`
	Name       string `json:"name" form:"name" validate:"required,max=120"`
	Password   string `json:"password" form:"password" validate:"required,min=8,max=72"`
	Department string `json:"department" form:"department" validate:"max=120"`
	Role       string `json:"role" form:"role" validate:"omitempty,oneof=STAFF INSTRUCTOR"`
}

type loginRequest struct {
	Email       string `json:"email" form:"email"`
	Password    string `json:"password" form:"password"`
	CallbackURL string `json:"callbackUrl" form:"callbackUrl"`
}

type authResponse struct {
	Token     string           `json:"token,omitempty"`
	ExpiresAt *time.Time       `json:"expires_at,omitempty"`
	User      *domain.Identity `json:"user,omitempty"`
}

type signupResponse struct {
	User *domain.User `json:"user"`
}

// Signup creates a self-service account.
//
// @Summary      Register a new account
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      signupRequest  true  "Account details"
// @Success      201   {object}  signupResponse
// @Failure      400   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /api/auth/signup [post]
func (h *AuthHandler) Signup(c echo.Context) error {
	var req signupRequest
	if err := c.Bind(&req); err != nil {
		metrics.SignupsTotal.WithLabelValues("invalid").Inc()
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid payload"})
	}
	if err := c.Validate(&req); err != nil {
		metrics.SignupsTotal.WithLabelValues("invalid").Inc()
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	user, err := h.authService.Signup(c.Request().Context(), ports.SignupInput{
		Email:      req.Email,
		Name:       req.Name,
		Password:   req.Password,
		Department: req.Department,
		Role:       domain.Role(req.Role),
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUserExists):
			metrics.SignupsTotal.WithLabelValues("conflict").Inc()
			return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
		case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrInvalidRole):
			metrics.SignupsTotal.WithLabelValues("invalid").Inc()
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		metrics.SignupsTotal.WithLabelValues("error").Inc()
		return err
	}

	metrics.SignupsTotal.WithLabelValues("created").Inc()
	return c.JSON(http.StatusCreated, signupResponse{User: user})
}

// Login authenticates a user, sets the session cookie and returns the token.
// Form submissions are redirected (to the callback on success, back to the
// login page on failure); JSON clients get a JSON body.
//
// @Summary      Login
// @Tags         auth
// @Accept       json
// @Accept       x-www-form-urlencoded
// @Produce      json
// @Param        body  body      loginRequest  true  "Login credentials"
// @Success      200   {object}  authResponse
// @Success      303
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Router       /api/auth/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	start := time.Now()
	form := isFormPost(c)

	var req loginRequest
	if err := c.Bind(&req); err != nil {
		observeLogin("invalid_payload", start)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid payload"})
	}

	res, err := h.authService.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		if !errors.Is(err, domain.ErrInvalidCredentials) {
			observeLogin("error", start)
			return err
		}
		observeLogin("invalid_credentials", start)
		if form {
			q := url.Values{"error": {"CredentialsSignin"}, "callbackUrl": {safeCallback(req.CallbackURL)}}
			return c.Redirect(http.StatusSeeOther, h.loginPath+"?"+q.Encode())
		}
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": domain.ErrInvalidCredentials.Error()})
	}

	h.cookie.Write(c, res.Token, res.ExpiresAt)
	observeLogin("success", start)

	if form {
		return c.Redirect(http.StatusSeeOther, safeCallback(req.CallbackURL))
	}
	return c.JSON(http.StatusOK, authResponse{Token: res.Token, ExpiresAt: &res.ExpiresAt, User: &res.User})
}

// Logout clears the session cookie. Issued tokens stay valid until expiry.
//
// @Summary      Logout
// @Tags         auth
// @Success      204
// @Router       /api/auth/logout [post]
func (h *AuthHandler) Logout(c echo.Context) error {
	h.cookie.Clear(c)
	if isFormPost(c) {
		return c.Redirect(http.StatusSeeOther, h.loginPath)
	}
	return c.NoContent(http.StatusNoContent)
}

// Session reports the identity behind the presented credential, or an empty
// object when there is none.
//
// @Summary      Current session
// @Tags         auth
// @Produce      json
// @Success      200  {object}  authResponse
// @Router       /api/auth/session [get]
func (h *AuthHandler) Session(c echo.Context) error {
	token, _ := h.cookie.Credential(c.Request())
	sess, err := h.sessions.Decode(token)
	if err != nil {
		return c.JSON(http.StatusOK, struct{}{})
	}
	return c.JSON(http.StatusOK, authResponse{ExpiresAt: &sess.ExpiresAt, User: &sess.Identity})
}

func observeLogin(result string, start time.Time) {
	metrics.LoginAttemptsTotal.WithLabelValues(result).Inc()
	metrics.LoginDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
}

func isFormPost(c echo.Context) bool {
	return strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEApplicationForm)
}

// safeCallback only accepts same-origin absolute paths. Browsers strip tabs
// and newlines and read backslashes as slashes, so "/\t/host" resolves to
// "//host"; any control character or backslash is refused.
func safeCallback(raw string) string {
	if raw == "" || raw[0] != '/' || strings.HasPrefix(raw, "//") {
		return defaultCallback
	}
	for i := 0; i < len(raw); i++ {
		if b := raw[i]; b < 0x20 || b == 0x7f || b == '\\' {
			return defaultCallback
		}
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" || strings.HasPrefix(u.Path, "//") {
		return defaultCallback
	}
	return raw
}
