package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"

	"github.com/chaiacademy/academy/internal/core/access"
	"github.com/chaiacademy/academy/internal/core/service"
)

const (
	GateModeRedirect = "redirect"
	GateModeAPI      = "api"
)

type Config struct {
	Port     string `env:"PORT,      default=8080"`
	Env      string `env:"ENV,       default=development"`
	LogLevel string `env:"LOG_LEVEL, default=info"`

	Session SessionConfig
	Gate    GateConfig
	Mongo   MongoConfig
	Redis   RedisConfig
}

type SessionConfig struct {
	Secret     string        `env:"SESSION_SECRET,     required"`
	TTL        time.Duration `env:"SESSION_TTL,        default=720h"`
	UpdateAge  time.Duration `env:"SESSION_UPDATE_AGE, default=24h"`
	CookieName string        `env:"SESSION_COOKIE,     default=academy_session"`
	HashCost   int           `env:"HASH_COST,          default=10"`
}

type GateConfig struct {
	Policy           RoutePolicy `env:"ROUTE_POLICY"`
	LoginPath        string      `env:"LOGIN_PATH,        default=/login"`
	UnauthorizedPath string      `env:"UNAUTHORIZED_PATH, default=/unauthorized"`
	Mode             string      `env:"GATE_MODE,         default=redirect"`
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=academy"`
}

// RedisConfig configures the optional user lookup cache. An empty Addr
// disables it.
type RedisConfig struct {
	Addr     string        `env:"REDIS_ADDR"`
	DB       int           `env:"REDIS_DB,       default=0"`
	CacheTTL time.Duration `env:"USER_CACHE_TTL, default=1m"`
}

// RoutePolicy decodes ROUTE_POLICY ("/admin=ADMIN;/instructor=ADMIN|INSTRUCTOR").
// When the variable is unset the stock table from access.DefaultRules applies.
type RoutePolicy struct {
	Rules []access.Rule
}

// EnvDecode implements envconfig.Decoder.
func (p *RoutePolicy) EnvDecode(val string) error {
	if strings.TrimSpace(val) == "" {
		return nil
	}
	rules, err := access.ParseRules(val)
	if err != nil {
		return err
	}
	p.Rules = rules
	return nil
}

// Build returns the immutable access.Policy described by the configuration.
func (p RoutePolicy) Build() (*access.Policy, error) {
	if len(p.Rules) == 0 {
		return access.NewPolicy(access.DefaultRules()...)
	}
	return access.NewPolicy(p.Rules...)
}

// IsProduction reports whether the service runs with production defaults
// (JSON logs, Secure cookies).
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// Validate checks cross-field constraints envconfig cannot express.
func (c *Config) Validate() error {
	if len(c.Session.Secret) < service.MinSessionSecretLength {
		return fmt.Errorf("SESSION_SECRET must be at least %d bytes", service.MinSessionSecretLength)
	}
	if c.Session.TTL <= 0 {
		return errors.New("SESSION_TTL must be positive")
	}
	if c.Session.UpdateAge <= 0 || c.Session.UpdateAge > c.Session.TTL {
		return errors.New("SESSION_UPDATE_AGE must be positive and not exceed SESSION_TTL")
	}
	if c.Session.CookieName == "" {
		return errors.New("SESSION_COOKIE must not be empty")
	}
	if c.Gate.Mode != GateModeRedirect && c.Gate.Mode != GateModeAPI {
		return fmt.Errorf("GATE_MODE must be %q or %q", GateModeRedirect, GateModeAPI)
	}

	policy, err := c.Gate.Policy.Build()
	if err != nil {
		return fmt.Errorf("ROUTE_POLICY: %w", err)
	}
	// Redirect targets must stay reachable without a session or the gate would loop.
	for name, target := range map[string]string{
		"LOGIN_PATH":        c.Gate.LoginPath,
		"UNAUTHORIZED_PATH": c.Gate.UnauthorizedPath,
	} {
		if !strings.HasPrefix(target, "/") {
			return fmt.Errorf("%s must be an absolute path", name)
		}
		if _, protected := policy.Match(target); protected {
			return fmt.Errorf("%s %q is covered by ROUTE_POLICY", name, target)
		}
	}
	return nil
}

// LoadWith reads configuration through lookuper and validates it.
func LoadWith(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads configuration from environment variables using go-envconfig.
func Load() *Config {
	cfg, err := LoadWith(context.Background(), envconfig.OsLookuper())
	if err != nil {
		panic(fmt.Sprintf("config: failed to load configuration: %v", err))
	}
	return cfg
}
