package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/chaiacademy/academy/internal/core/domain"
)

const identityKey = "identity"

// CredentialSource records where a request presented its session credential.
type CredentialSource int

const (
	SourceNone CredentialSource = iota
	SourceCookie
	SourceBearer
)

// SessionCookie describes the cookie that transports the session credential.
// The cookie takes precedence; an Authorization bearer token is accepted as a
// fallback for non-browser clients, and by the gate when the cookie no longer
// decodes.
type SessionCookie struct {
	Name   string
	Secure bool
}

// Credential extracts the session credential from r.
func (sc SessionCookie) Credential(r *http.Request) (string, CredentialSource) {
	if ck, err := r.Cookie(sc.Name); err == nil && ck.Value != "" {
		return ck.Value, SourceCookie
	}
	if token := bearerToken(r); token != "" {
		return token, SourceBearer
	}
	return "", SourceNone
}

func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// Write sets the session cookie to token, expiring with the credential.
func (sc SessionCookie) Write(c echo.Context, token string, expiresAt time.Time) {
	c.SetCookie(&http.Cookie{
		Name:     sc.Name,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   sc.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Clear instructs the client to drop the session cookie.
func (sc SessionCookie) Clear(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     sc.Name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   sc.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// SetIdentity stores the authenticated identity on the request context.
func SetIdentity(c echo.Context, id domain.Identity) {
	c.Set(identityKey, id)
}

// IdentityFrom returns the identity placed by the gate, if any.
func IdentityFrom(c echo.Context) (domain.Identity, bool) {
	id, ok := c.Get(identityKey).(domain.Identity)
	return id, ok
}
