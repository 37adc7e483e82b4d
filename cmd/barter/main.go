package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/fang"
	"github.com/evanschultz/barter/internal/adapters/server/metrics"
	"github.com/evanschultz/barter/internal/adapters/storage/sqlstore"
	"github.com/evanschultz/barter/internal/app"
	"github.com/evanschultz/barter/internal/config"
	"github.com/evanschultz/barter/internal/platform"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// version stores a package-level helper value.
var version = "dev"

// main handles main.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		os.Exit(1)
	}
}

// run executes the command tree for args.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	env, err := config.LoadEnv()
	if err != nil {
		return err
	}

	root := newRootCommand(env, stdout, stderr)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return fang.Execute(ctx, root, fang.WithVersion(version), fang.WithoutManpage())
}

// rootOptions carries persistent flag values shared by every subcommand.
type rootOptions struct {
	env        config.Env
	stdout     io.Writer
	stderr     io.Writer
	configPath string
	dbPath     string
	driver     string
	dsn        string
	appName    string
	devMode    bool
}

// newRootCommand builds the barter command tree.
func newRootCommand(env config.Env, stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{env: env, stdout: stdout, stderr: stderr}

	defaultDevMode := version == "dev"
	if env.DevMode != nil {
		defaultDevMode = *env.DevMode
	}
	defaultApp := platform.DefaultAppName
	if v := strings.TrimSpace(env.AppName); v != "" {
		defaultApp = v
	}

	root := &cobra.Command{
		Use:           "barter",
		Short:         "Item listing and offer exchange service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to config TOML")
	flags.StringVar(&opts.dbPath, "db", "", "path to sqlite database")
	flags.StringVar(&opts.driver, "driver", "", "database driver (sqlite or postgres)")
	flags.StringVar(&opts.dsn, "dsn", "", "postgres connection string")
	flags.StringVar(&opts.appName, "app", defaultApp, "application name for config/data path resolution")
	flags.BoolVar(&opts.devMode, "dev", defaultDevMode, "use dev mode paths (<app>-dev) and file logging")

	root.AddCommand(
		newPathsCommand(opts),
		newServeCommand(opts),
		newReconcileCommand(opts),
		newItemsCommand(opts),
		newOffersCommand(opts),
		newTokenCommand(opts),
	)
	return root
}

// runtimeEnv holds the resolved configuration and opened dependencies of one command run.
type runtimeEnv struct {
	cfg        config.Config
	configPath string
	logger     *runtimeLogger
	repo       *sqlstore.Repository
	metrics    *metrics.Recorder
	service    *app.Service
}

// resolveLayout applies app/dev flags to the on-disk layout.
func (o *rootOptions) resolveLayout() (platform.Layout, error) {
	return platform.Resolve(platform.Options{
		AppName: o.appName,
		DevMode: o.devMode,
	})
}

// loadConfig resolves config file, environment, and flag layers in that order.
func (o *rootOptions) loadConfig(layout platform.Layout) (config.Config, string, error) {
	configPath := layout.ConfigFile(o.configPath, o.env.Config)
	cfg, err := config.Load(configPath, config.Default(layout.DBPath))
	if err != nil {
		return config.Config{}, "", fmt.Errorf("load config %q: %w", configPath, err)
	}
	cfg, err = cfg.ApplyEnv(o.env)
	if err != nil {
		return config.Config{}, "", fmt.Errorf("apply %s_* environment: %w", config.EnvPrefix, err)
	}

	if v := strings.TrimSpace(o.driver); v != "" {
		cfg.Database.Driver = config.Driver(strings.ToLower(v))
	}
	if v := strings.TrimSpace(o.dbPath); v != "" {
		cfg.Database.Path = v
	}
	if v := strings.TrimSpace(o.dsn); v != "" {
		cfg.Database.DSN = v
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, "", fmt.Errorf("validate config: %w", err)
	}
	return cfg, configPath, nil
}

// open resolves configuration, logging, storage, and the application service.
func (o *rootOptions) open(ctx context.Context, command string) (*runtimeEnv, error) {
	layout, err := o.resolveLayout()
	if err != nil {
		return nil, err
	}
	cfg, configPath, err := o.loadConfig(layout)
	if err != nil {
		return nil, err
	}

	var devLogPath string
	if o.devMode && cfg.Logging.DevFile.Enabled {
		devLogPath, err = layout.DevLogFile(cfg.Logging.DevFile.Dir, time.Now())
		if err != nil {
			return nil, fmt.Errorf("resolve dev log file: %w", err)
		}
	}
	logger, err := newRuntimeLogger(o.stderr, o.appName, cfg.Logging.Level, devLogPath)
	if err != nil {
		return nil, fmt.Errorf("configure runtime logger: %w", err)
	}
	logger.Info("startup configuration resolved", "app", o.appName, "dev_mode", o.devMode, "command", command)
	logger.Debug("runtime paths resolved", "config_path", configPath, "data_dir", layout.DataDir, "db_path", cfg.Database.Path)
	logger.Info("configuration loaded", "config_path", configPath, "driver", cfg.Database.Driver, "log_level", cfg.Logging.Level)
	if devPath := logger.DevLogPath(); devPath != "" {
		logger.Info("dev file logging enabled", "path", devPath)
	}

	logger.Info("opening repository", "driver", cfg.Database.Driver, "db_path", cfg.Database.Path)
	repo, err := sqlstore.Open(ctx, sqlstore.Options{
		Driver: string(cfg.Database.Driver),
		Path:   cfg.Database.Path,
		DSN:    cfg.Database.DSN,
	})
	if err != nil {
		logger.Error("repository open failed", "driver", cfg.Database.Driver, "err", err)
		_ = logger.Close()
		return nil, fmt.Errorf("open repository: %w", err)
	}
	logger.Info("repository ready", "driver", repo.Dialect(), "migrations", "ensured")

	recorder := metrics.NewRecorder(true)
	svc := app.NewService(repo, uuid.NewString, nil, app.ServiceConfig{
		PermissiveTransitions: !cfg.Offers.EnforcePendingTransitions,
		SupersedeOnAccept:     cfg.Offers.SupersedeOnAccept,
		DeletePolicy:          app.DeletePolicy(cfg.Offers.DeletePolicy),
		Logger:                logger.ServiceLogger(),
		Metrics:               recorder,
	})
	logger.Debug("application service initialized",
		"enforce_pending_transitions", cfg.Offers.EnforcePendingTransitions,
		"supersede_on_accept", cfg.Offers.SupersedeOnAccept,
		"delete_policy", cfg.Offers.DeletePolicy,
	)
	return &runtimeEnv{
		cfg:        cfg,
		configPath: configPath,
		logger:     logger,
		repo:       repo,
		metrics:    recorder,
		service:    svc,
	}, nil
}

// Close releases the repository and the dev log sink.
func (r *runtimeEnv) Close() error {
	if r == nil {
		return nil
	}
	var errs []error
	if r.repo != nil {
		if err := r.repo.Close(); err != nil {
			r.logger.Warn("repository close failed", "err", err)
			errs = append(errs, fmt.Errorf("close repository: %w", err))
		}
	}
	if err := r.logger.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close runtime log sink: %w", err))
	}
	return errors.Join(errs...)
}

// withRuntime opens the runtime for one command, runs fn, and always releases it.
func (o *rootOptions) withRuntime(ctx context.Context, command string, fn func(*runtimeEnv) error) (err error) {
	rt, err := o.open(ctx, command)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rt.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	rt.logger.Info("command flow start", "command", command)
	if err := fn(rt); err != nil {
		rt.logger.Error("command flow failed", "command", command, "err", err)
		return fmt.Errorf("run %s command: %w", command, err)
	}
	rt.logger.Info("command flow complete", "command", command)
	return nil
}
