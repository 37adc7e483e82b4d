// Package platform resolves where a barter instance keeps its config, database and logs.
package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// DefaultAppName names the config and data directories when no override is given.
const DefaultAppName = "barter"

// ErrEmptyBaseDir is returned when no config or data base directory can be determined.
var ErrEmptyBaseDir = errors.New("empty base dir")

// Layout is the on-disk layout of one instance.
type Layout struct {
	// AppName is the directory name, with the -dev suffix applied in dev mode.
	AppName    string
	ConfigPath string
	DataDir    string
	DBPath     string
	LogDir     string
}

// Options selects the instance and, for tests, the host it is resolved against.
type Options struct {
	AppName string
	DevMode bool

	// GOOS defaults to runtime.GOOS.
	GOOS string
	// Getenv defaults to os.Getenv.
	Getenv func(string) string
	// ConfigHome and DataHome replace the user base dirs when set.
	ConfigHome string
	DataHome   string
}

// Resolve builds the layout for opts.
func Resolve(opts Options) (Layout, error) {
	appName := strings.TrimSpace(opts.AppName)
	if appName == "" {
		appName = DefaultAppName
	}
	if opts.DevMode {
		appName += "-dev"
	}
	goos := opts.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	configHome, dataHome, err := baseDirs(goos, getenv, opts.ConfigHome, opts.DataHome)
	if err != nil {
		return Layout{}, err
	}
	configDir := filepath.Join(configHome, appName)
	dataDir := filepath.Join(dataHome, appName)
	return Layout{
		AppName:    appName,
		ConfigPath: filepath.Join(configDir, "config.toml"),
		DataDir:    dataDir,
		DBPath:     filepath.Join(dataDir, appName+".db"),
		LogDir:     filepath.Join(dataDir, "log"),
	}, nil
}

// baseDirs picks the per-OS config and data roots. Explicit homes win over the environment.
func baseDirs(goos string, getenv func(string) string, configHome, dataHome string) (string, string, error) {
	var configEnv, dataEnv string
	switch goos {
	case "linux":
		configEnv, dataEnv = getenv("XDG_CONFIG_HOME"), getenv("XDG_DATA_HOME")
	case "windows":
		configEnv, dataEnv = getenv("APPDATA"), getenv("LOCALAPPDATA")
	}
	configHome = firstNonEmpty(configHome, configEnv)
	dataHome = firstNonEmpty(dataHome, dataEnv)

	if configHome == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return "", "", fmt.Errorf("user config dir: %w", err)
		}
		configHome = dir
	}
	if dataHome == "" && goos == "linux" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", "", fmt.Errorf("user home dir: %w", err)
		}
		dataHome = filepath.Join(home, ".local", "share")
	}
	// macOS and the rest keep data next to config.
	dataHome = firstNonEmpty(dataHome, configHome)
	if configHome == "" || dataHome == "" {
		return "", "", ErrEmptyBaseDir
	}
	return configHome, dataHome, nil
}

// ConfigFile picks the config file: an explicit flag, then the environment, then the layout default.
func (l Layout) ConfigFile(flagPath, envPath string) string {
	return firstNonEmpty(strings.TrimSpace(flagPath), strings.TrimSpace(envPath), l.ConfigPath)
}

// DevLogFile names the per-day dev log file. An empty dir means LogDir; a relative dir is
// anchored at the workspace root containing the working directory.
func (l Layout) DevLogFile(dir string, now time.Time) (string, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		dir = l.LogDir
	}
	if !filepath.IsAbs(dir) {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolve working dir: %w", err)
		}
		dir = filepath.Join(WorkspaceRoot(cwd), dir)
	}
	name := fmt.Sprintf("%s-%s.log", logFileStem(l.AppName), now.UTC().Format("20060102"))
	return filepath.Join(filepath.Clean(dir), name), nil
}

// WorkspaceRoot returns the nearest ancestor of start holding go.mod or .git, or start itself.
func WorkspaceRoot(start string) string {
	start = filepath.Clean(strings.TrimSpace(start))
	for dir := start; ; {
		for _, marker := range []string{"go.mod", ".git"} {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return dir
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return start
		}
		dir = parent
	}
}

// logFileStem turns an app name into a file-name segment.
func logFileStem(appName string) string {
	stem := strings.NewReplacer("/", "-", "\\", "-", ":", "-", " ", "-").Replace(strings.TrimSpace(appName))
	return firstNonEmpty(strings.Trim(stem, "-"), DefaultAppName)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
