package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	toml "github.com/pelletier/go-toml/v2"
)

// EnvPrefix namespaces every environment override.
const EnvPrefix = "BARTER"

type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

type DeletePolicy string

const (
	DeletePolicyForbid  DeletePolicy = "forbid"
	DeletePolicyCascade DeletePolicy = "cascade"
)

type Config struct {
	Database DatabaseConfig `toml:"database"`
	Server   ServerConfig   `toml:"server"`
	Auth     AuthConfig     `toml:"auth"`
	Offers   OffersConfig   `toml:"offers"`
	Logging  LoggingConfig  `toml:"logging"`
}

type DatabaseConfig struct {
	Driver Driver `toml:"driver"`
	Path   string `toml:"path"`
	DSN    string `toml:"dsn"`
}

type ServerConfig struct {
	HTTPBind        string `toml:"http_bind"`
	APIEndpoint     string `toml:"api_endpoint"`
	MCPEndpoint     string `toml:"mcp_endpoint"`
	MetricsEndpoint string `toml:"metrics_endpoint"`
}

type AuthConfig struct {
	TokenSecret         string `toml:"token_secret"`
	TokenIssuer         string `toml:"token_issuer"`
	TokenTTL            string `toml:"token_ttl"` // Go duration, e.g. "168h"
	AllowHeaderIdentity bool   `toml:"allow_header_identity"`
}

type OffersConfig struct {
	EnforcePendingTransitions bool         `toml:"enforce_pending_transitions"`
	SupersedeOnAccept         bool         `toml:"supersede_on_accept"`
	DeletePolicy              DeletePolicy `toml:"delete_policy"`
}

type LoggingConfig struct {
	Level   string        `toml:"level"`
	DevFile DevFileConfig `toml:"dev_file"`
}

type DevFileConfig struct {
	Enabled bool   `toml:"enabled"`
	// Dir is relative to the workspace root; empty means the platform log dir.
	Dir     string `toml:"dir"`
}

// Env holds BARTER_* environment overrides. Unset variables leave config values untouched.
type Env struct {
	Config      string  `envconfig:"CONFIG"`
	AppName     string  `envconfig:"APP_NAME"`
	DBDriver    string  `envconfig:"DB_DRIVER"`
	DBPath      string  `envconfig:"DB_PATH"`
	DBDSN       string  `envconfig:"DB_DSN"`
	HTTPBind    string  `envconfig:"HTTP_BIND"`
	TokenSecret string  `envconfig:"TOKEN_SECRET"`
	LogLevel    string  `envconfig:"LOG_LEVEL"`
	DevMode     *bool   `envconfig:"DEV_MODE"`
	Permissive  *bool   `envconfig:"PERMISSIVE_TRANSITIONS"`
	Supersede   *bool   `envconfig:"SUPERSEDE_ON_ACCEPT"`
	Delete      *string `envconfig:"DELETE_POLICY"`
}

func Default(dbPath string) Config {
	return Config{
		Database: DatabaseConfig{
			Driver: DriverSQLite,
			Path:   dbPath,
		},
		Server: ServerConfig{
			HTTPBind:        "127.0.0.1:8080",
			APIEndpoint:     "/api/v1",
			MCPEndpoint:     "/mcp",
			MetricsEndpoint: "/metrics",
		},
		Auth: AuthConfig{
			TokenIssuer: "barter",
			TokenTTL:    "168h",
		},
		Offers: OffersConfig{
			EnforcePendingTransitions: true,
			SupersedeOnAccept:         true,
			DeletePolicy:              DeletePolicyForbid,
		},
		Logging: LoggingConfig{
			Level: "info",
			DevFile: DevFileConfig{
				Enabled: true,
				Dir:     ".barter/log",
			},
		},
	}
}

func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(content) == 0 {
		return cfg, nil
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadEnv reads BARTER_* overrides from the process environment.
func LoadEnv() (Env, error) {
	var env Env
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return Env{}, fmt.Errorf("read %s_* environment: %w", EnvPrefix, err)
	}
	return env, nil
}

// ApplyEnv layers environment overrides on top of cfg and revalidates.
func (c Config) ApplyEnv(env Env) (Config, error) {
	if v := strings.TrimSpace(env.DBDriver); v != "" {
		c.Database.Driver = Driver(strings.ToLower(v))
	}
	if v := strings.TrimSpace(env.DBPath); v != "" {
		c.Database.Path = v
	}
	if v := strings.TrimSpace(env.DBDSN); v != "" {
		c.Database.DSN = v
	}
	if v := strings.TrimSpace(env.HTTPBind); v != "" {
		c.Server.HTTPBind = v
	}
	if v := strings.TrimSpace(env.TokenSecret); v != "" {
		c.Auth.TokenSecret = v
	}
	if v := strings.TrimSpace(env.LogLevel); v != "" {
		c.Logging.Level = v
	}
	if env.Permissive != nil {
		c.Offers.EnforcePendingTransitions = !*env.Permissive
	}
	if env.Supersede != nil {
		c.Offers.SupersedeOnAccept = *env.Supersede
	}
	if env.Delete != nil {
		c.Offers.DeletePolicy = DeletePolicy(strings.ToLower(strings.TrimSpace(*env.Delete)))
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if strings.TrimSpace(c.Database.Path) == "" {
			return errors.New("database.path is required for the sqlite driver")
		}
	case DriverPostgres:
		if strings.TrimSpace(c.Database.DSN) == "" {
			return errors.New("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("invalid database.driver: %q", c.Database.Driver)
	}

	if strings.TrimSpace(c.Server.HTTPBind) == "" {
		return errors.New("server.http_bind is required")
	}
	for name, endpoint := range map[string]string{
		"server.api_endpoint":     c.Server.APIEndpoint,
		"server.mcp_endpoint":     c.Server.MCPEndpoint,
		"server.metrics_endpoint": c.Server.MetricsEndpoint,
	} {
		if strings.TrimSpace(endpoint) == "" {
			return fmt.Errorf("%s is required", name)
		}
	}

	if _, err := c.Auth.TTL(); err != nil {
		return err
	}

	switch c.Offers.DeletePolicy {
	case DeletePolicyForbid, DeletePolicyCascade:
	default:
		return fmt.Errorf("invalid offers.delete_policy: %q", c.Offers.DeletePolicy)
	}

	switch strings.ToLower(strings.TrimSpace(c.Logging.Level)) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level: %q", c.Logging.Level)
	}
	return nil
}

// TTL parses the configured token lifetime.
func (a AuthConfig) TTL() (time.Duration, error) {
	raw := strings.TrimSpace(a.TokenTTL)
	if raw == "" {
		return 0, nil
	}
	ttl, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid auth.token_ttl %q: %w", a.TokenTTL, err)
	}
	if ttl <= 0 {
		return 0, fmt.Errorf("auth.token_ttl must be positive, got %q", a.TokenTTL)
	}
	return ttl, nil
}
