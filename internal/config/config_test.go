package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default("/tmp/barter.db")
	if cfg.Database.Path != "/tmp/barter.db" || cfg.Database.Driver != DriverSQLite {
		t.Fatalf("unexpected database config %#v", cfg.Database)
	}
	if !cfg.Offers.EnforcePendingTransitions || !cfg.Offers.SupersedeOnAccept {
		t.Fatal("expected strict transitions and superseding enabled by default")
	}
	if cfg.Offers.DeletePolicy != DeletePolicyForbid {
		t.Fatalf("unexpected delete policy %q", cfg.Offers.DeletePolicy)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	ttl, err := cfg.Auth.TTL()
	if err != nil || ttl != 168*time.Hour {
		t.Fatalf("TTL() = %v, %v, want 168h", ttl, err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	defaults := Default("/tmp/barter.db")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"), defaults)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path != defaults.Database.Path {
		t.Fatalf("expected default db path, got %q", cfg.Database.Path)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[database]
driver = "postgres"
dsn = "postgres://barter@localhost/barter"

[server]
http_bind = ":9090"

[auth]
token_secret = "s3cret"
token_ttl = "2h"
allow_header_identity = true

[offers]
enforce_pending_transitions = false
supersede_on_accept = false
delete_policy = "cascade"

[logging]
level = "debug"

[logging.dev_file]
enabled = false
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(path, Default("/tmp/default.db"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Driver != DriverPostgres || cfg.Database.DSN == "" {
		t.Fatalf("unexpected database config %#v", cfg.Database)
	}
	if cfg.Server.HTTPBind != ":9090" || cfg.Server.MCPEndpoint != "/mcp" {
		t.Fatalf("unexpected server config %#v", cfg.Server)
	}
	if cfg.Auth.TokenSecret != "s3cret" || !cfg.Auth.AllowHeaderIdentity {
		t.Fatalf("unexpected auth config %#v", cfg.Auth)
	}
	if cfg.Offers.EnforcePendingTransitions || cfg.Offers.SupersedeOnAccept || cfg.Offers.DeletePolicy != DeletePolicyCascade {
		t.Fatalf("unexpected offers config %#v", cfg.Offers)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.DevFile.Enabled {
		t.Fatalf("unexpected logging config %#v", cfg.Logging)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"delete policy": "[offers]\ndelete_policy = \"shred\"\n",
		"driver":        "[database]\ndriver = \"mongo\"\n",
		"postgres dsn":  "[database]\ndriver = \"postgres\"\n",
		"ttl":           "[auth]\ntoken_ttl = \"soon\"\n",
		"negative ttl":  "[auth]\ntoken_ttl = \"-1h\"\n",
		"log level":     "[logging]\nlevel = \"loud\"\n",
		"empty bind":    "[server]\nhttp_bind = \"\"\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				t.Fatalf("WriteFile() error = %v", err)
			}
			if _, err := Load(path, Default("/tmp/default.db")); err == nil {
				t.Fatalf("Load() error = nil, want validation error")
			}
		})
	}
}

func TestLoadEnvAndApply(t *testing.T) {
	t.Setenv("BARTER_DB_PATH", "/env/barter.db")
	t.Setenv("BARTER_HTTP_BIND", "0.0.0.0:7000")
	t.Setenv("BARTER_TOKEN_SECRET", "from-env")
	t.Setenv("BARTER_LOG_LEVEL", "warn")
	t.Setenv("BARTER_DEV_MODE", "false")
	t.Setenv("BARTER_PERMISSIVE_TRANSITIONS", "true")
	t.Setenv("BARTER_DELETE_POLICY", "Cascade")

	env, err := LoadEnv()
	if err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}
	if env.DevMode == nil || *env.DevMode {
		t.Fatalf("DevMode = %v, want explicit false", env.DevMode)
	}
	if env.Supersede != nil {
		t.Fatalf("Supersede = %v, want unset", *env.Supersede)
	}

	cfg, err := Default("/tmp/default.db").ApplyEnv(env)
	if err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}
	if cfg.Database.Path != "/env/barter.db" || cfg.Server.HTTPBind != "0.0.0.0:7000" {
		t.Fatalf("unexpected overrides %#v %#v", cfg.Database, cfg.Server)
	}
	if cfg.Auth.TokenSecret != "from-env" || cfg.Logging.Level != "warn" {
		t.Fatalf("unexpected overrides %#v %#v", cfg.Auth, cfg.Logging)
	}
	if cfg.Offers.EnforcePendingTransitions || !cfg.Offers.SupersedeOnAccept || cfg.Offers.DeletePolicy != DeletePolicyCascade {
		t.Fatalf("unexpected offers overrides %#v", cfg.Offers)
	}
}

func TestApplyEnvRevalidates(t *testing.T) {
	if _, err := Default("/tmp/default.db").ApplyEnv(Env{DBDriver: "oracle"}); err == nil {
		t.Fatal("ApplyEnv() error = nil, want invalid driver")
	}
}
