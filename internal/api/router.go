package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/chaiacademy/academy/docs"
	"github.com/chaiacademy/academy/internal/api/handler"
	"github.com/chaiacademy/academy/internal/api/middleware"
	"github.com/chaiacademy/academy/internal/core/access"
	"github.com/chaiacademy/academy/internal/core/domain"
	"github.com/chaiacademy/academy/internal/core/ports"
	"github.com/chaiacademy/academy/internal/core/service"
	"github.com/chaiacademy/academy/internal/pkg/config"
	"github.com/chaiacademy/academy/pkg/logger"
)

// Deps are the collaborators NewRouter needs from main.
type Deps struct {
	Config *config.Config
	Users  ports.UserRepository
	Log    zerolog.Logger
	// Registry receives the HTTP request metrics. A fresh registry is
	// created when nil.
	Registry *prometheus.Registry
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps Deps) (*echo.Echo, error) {
	cfg := deps.Config

	// --- Dependencies ---
	hasher, err := service.NewHasher(cfg.Session.HashCost)
	if err != nil {
		return nil, fmt.Errorf("hasher: %w", err)
	}
	sessions, err := service.NewSessionIssuer(service.SessionConfig{
		Secret:    []byte(cfg.Session.Secret),
		TTL:       cfg.Session.TTL,
		UpdateAge: cfg.Session.UpdateAge,
	})
	if err != nil {
		return nil, fmt.Errorf("session issuer: %w", err)
	}
	policy, err := cfg.Gate.Policy.Build()
	if err != nil {
		return nil, fmt.Errorf("route policy: %w", err)
	}
	deps.Log.Info().Stringer("policy", policy).Msg("route policy loaded")

	authService := service.NewAuthService(deps.Users, hasher, sessions, logger.Named(deps.Log, "auth"))
	cookie := middleware.SessionCookie{Name: cfg.Session.CookieName, Secure: cfg.IsProduction()}
	authHandler := handler.NewAuthHandler(authService, sessions, cookie, cfg.Gate.LoginPath)
	pages := handler.NewPageHandler()

	denyMode := middleware.DenyRedirect
	if cfg.Gate.Mode == config.GateModeAPI {
		denyMode = middleware.DenyStatus
	}

	registry := deps.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(logger.Named(deps.Log, "http")))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Namespace:  "academy",
		Registerer: registry,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics"
		},
	}))
	e.Use(middleware.Gate(middleware.GateConfig{
		Gate:             access.NewGate(policy, sessions),
		Cookie:           cookie,
		Refresher:        sessions,
		LoginPath:        cfg.Gate.LoginPath,
		UnauthorizedPath: cfg.Gate.UnauthorizedPath,
		Mode:             denyMode,
		Log:              logger.Named(deps.Log, "gate"),
	}))

	// --- Operational routes ---
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{
		Gatherer: prometheus.Gatherers{prometheus.DefaultGatherer, registry},
	}))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	// --- Auth routes ---
	auth := e.Group("/api/auth")
	auth.POST("/signup", authHandler.Signup)
	auth.POST("/login", authHandler.Login)
	auth.POST("/logout", authHandler.Logout)
	auth.GET("/session", authHandler.Session)

	// --- Redirect targets ---
	e.GET(cfg.Gate.LoginPath, pages.LoginPage)
	e.GET(cfg.Gate.UnauthorizedPath, pages.UnauthorizedPage)

	// --- Protected areas (the gate enforces the policy; RequireRole repeats it per handler) ---
	e.GET("/dashboard", pages.Area("dashboard"), middleware.RequireAuth())
	e.GET("/profile", pages.Area("profile"), middleware.RequireAuth())
	e.GET("/instructor", pages.Area("instructor"), middleware.RequireRole(domain.RoleAdmin, domain.RoleInstructor))
	e.GET("/admin", pages.Area("admin"), middleware.RequireRole(domain.RoleAdmin))
	e.GET("/admin/users", pages.Area("admin/users"), middleware.RequireRole(domain.RoleAdmin))

	return e, nil
}

func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogMethod:    true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Status >= http.StatusInternalServerError {
				ev = log.Error().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	})
}
