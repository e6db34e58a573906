package middleware

import (
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/chaiacademy/academy/internal/api/metrics"
	"github.com/chaiacademy/academy/internal/core/access"
	"github.com/chaiacademy/academy/internal/core/domain"
	"github.com/chaiacademy/academy/internal/core/ports"
)

// DenyMode selects how the gate reports a denial.
type DenyMode int

const (
	// DenyRedirect sends browsers to the login or access-denied page.
	DenyRedirect DenyMode = iota
	// DenyStatus returns 401/403 through the HTTP error handler.
	DenyStatus
)

// GateConfig wires the request gate middleware.
type GateConfig struct {
	Gate   *access.Gate
	Cookie SessionCookie
	// Refresher slides cookie sessions forward; nil disables refresh.
	Refresher        ports.SessionIssuer
	LoginPath        string
	UnauthorizedPath string
	Mode             DenyMode
	Log              zerolog.Logger
}

// Gate evaluates the route policy before any handler runs. Allowed requests
// are forwarded unchanged, with the identity attached whenever a valid
// credential was presented, on protected and unprotected routes alike.
func Gate(cfg GateConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			token, source := cfg.Cookie.Credential(req)

			d := cfg.Gate.Evaluate(req.URL.Path, token)
			if d.Reason == access.ReasonUnauthenticated && source == SourceCookie {
				cfg.Cookie.Clear(c)
				if bearer := bearerToken(req); bearer != "" {
					token, source = bearer, SourceBearer
					d = cfg.Gate.Evaluate(req.URL.Path, token)
				}
			}
			if d.Protected() {
				metrics.GateDecisionsTotal.WithLabelValues(d.State.String(), d.Reason.String()).Inc()
			}

			if !d.Allowed() {
				cfg.Log.Debug().
					Str("path", req.URL.Path).
					Str("rule", d.Rule.Prefix).
					Stringer("reason", d.Reason).
					Msg("request denied")
				return deny(c, cfg, d)
			}

			sess := d.Session
			if sess == nil && token != "" {
				sess, source = identify(c, cfg, token, source)
			}
			if sess != nil {
				SetIdentity(c, sess.Identity)
				if source == SourceCookie && cfg.Refresher != nil {
					refresh(c, cfg, *sess)
				}
			}
			return next(c)
		}
	}
}

// identify decodes the credential on routes outside the policy so that
// per-handler guards can see the caller. It never denies.
func identify(c echo.Context, cfg GateConfig, token string, source CredentialSource) (*domain.Session, CredentialSource) {
	if sess, ok := cfg.Gate.Identify(token); ok {
		return &sess, source
	}
	if source != SourceCookie {
		return nil, SourceNone
	}
	cfg.Cookie.Clear(c)
	if sess, ok := cfg.Gate.Identify(bearerToken(c.Request())); ok {
		return &sess, SourceBearer
	}
	return nil, SourceNone
}

func deny(c echo.Context, cfg GateConfig, d access.Decision) error {
	if cfg.Mode == DenyStatus {
		if d.Reason == access.ReasonForbidden {
			return echo.NewHTTPError(http.StatusForbidden, domain.ErrForbidden.Error())
		}
		return echo.NewHTTPError(http.StatusUnauthorized, domain.ErrInvalidSession.Error())
	}

	if d.Reason == access.ReasonForbidden {
		return c.Redirect(http.StatusFound, cfg.UnauthorizedPath)
	}
	return c.Redirect(http.StatusFound, loginRedirect(cfg.LoginPath, c.Request().URL))
}

// loginRedirect points at the login page with a callback to the cleaned
// original path, so the callback can never name another host.
func loginRedirect(loginPath string, orig *url.URL) string {
	callback := access.CleanPath(orig.Path)
	if orig.RawQuery != "" {
		callback += "?" + orig.RawQuery
	}
	return loginPath + "?" + url.Values{"callbackUrl": {callback}}.Encode()
}

func refresh(c echo.Context, cfg GateConfig, sess domain.Session) {
	token, exp, ok, err := cfg.Refresher.Refresh(sess)
	if err != nil {
		cfg.Log.Warn().Err(err).Str("user_id", sess.Identity.ID).Msg("session refresh failed")
		return
	}
	if ok {
		cfg.Cookie.Write(c, token, exp)
		metrics.SessionRefreshesTotal.Inc()
	}
}
