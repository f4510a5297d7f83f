package config

import (
	"context"
	"os"
	"path/filepath"
	"runtime"

	"github.com/adrg/xdg"
	"github.com/sethvargo/go-envconfig"

	"github.com/samhoang/tapctl/internal/descriptor"
)

// AppName names the tapctl data, cache and config directories
const AppName = "tapctl"

// Paths holds all resolved paths for tapctl operations
type Paths struct {
	DataDir   string // receipts and the default tap checkout
	CacheDir  string // downloaded artifacts
	ConfigDir string // tapctl.toml
	TapDir    string // descriptor catalog
	BinDir    string // canonical executables directory
	AppDir    string // canonical applications directory

	env pathEnv
}

// pathEnv lists the environment overrides. TAPCTL_HOME relocates every
// tapctl-owned directory at once; the destination directories are separate
// because they are usually shared with other tools.
type pathEnv struct {
	Home     string `env:"TAPCTL_HOME"`
	TapDir   string `env:"TAPCTL_TAP_DIR"`
	CacheDir string `env:"TAPCTL_CACHE_DIR"`
	BinDir   string `env:"TAPCTL_BIN_DIR"`
	AppDir   string `env:"TAPCTL_APP_DIR"`
}

// ResolvePaths resolves all paths based on environment and defaults
func ResolvePaths() (*Paths, error) {
	return resolvePaths(context.Background(), envconfig.OsLookuper())
}

func resolvePaths(ctx context.Context, l envconfig.Lookuper) (*Paths, error) {
	var env pathEnv
	if err := envconfig.ProcessWith(ctx, &env, l); err != nil {
		return nil, err
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	p := &Paths{
		DataDir:   filepath.Join(xdg.DataHome, AppName),
		CacheDir:  filepath.Join(xdg.CacheHome, AppName),
		ConfigDir: filepath.Join(xdg.ConfigHome, AppName),
		BinDir:    xdg.BinHome,
		AppDir:    defaultAppDir(home),
		env:       env,
	}

	if env.Home != "" {
		p.DataDir = env.Home
		p.CacheDir = filepath.Join(env.Home, "cache")
		p.ConfigDir = env.Home
	}
	p.TapDir = filepath.Join(p.DataDir, "tap")

	if env.TapDir != "" {
		p.TapDir = env.TapDir
	}
	if env.CacheDir != "" {
		p.CacheDir = env.CacheDir
	}
	if env.BinDir != "" {
		p.BinDir = env.BinDir
	}
	if env.AppDir != "" {
		p.AppDir = env.AppDir
	}

	return p, nil
}

func defaultAppDir(home string) string {
	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Applications")
	}
	return filepath.Join(xdg.DataHome, "applications")
}

// ApplyConfig lets settings from tapctl.toml fill in directories that no
// environment variable has overridden.
func (p *Paths) ApplyConfig(cfg *Config) {
	if cfg == nil {
		return
	}
	if cfg.Tap != "" && p.env.TapDir == "" {
		p.TapDir = expandHome(cfg.Tap)
	}
	if cfg.BinDir != "" && p.env.BinDir == "" {
		p.BinDir = expandHome(cfg.BinDir)
	}
	if cfg.AppDir != "" && p.env.AppDir == "" {
		p.AppDir = expandHome(cfg.AppDir)
	}
}

// DestinationDir returns the canonical directory for an install action kind
func (p *Paths) DestinationDir(kind descriptor.ActionKind) string {
	switch kind {
	case descriptor.ActionApplicationBundle:
		return p.AppDir
	default:
		return p.BinDir
	}
}

// ConfigPath returns the path to tapctl.toml
func (p *Paths) ConfigPath() string {
	return filepath.Join(p.ConfigDir, "tapctl.toml")
}

// ReceiptsPath returns the path to receipts.toml
func (p *Paths) ReceiptsPath() string {
	return filepath.Join(p.DataDir, "receipts.toml")
}

// DownloadPath returns the cache location for a fetched artifact
func (p *Paths) DownloadPath(name, version, filename string) string {
	return filepath.Join(p.CacheDir, "downloads", name+"--"+version+"--"+filename)
}

// StagingDir returns a parent directory for unpacked artifacts
func (p *Paths) StagingDir() string {
	return filepath.Join(p.CacheDir, "staging")
}

// IsInitialized checks if the tap directory exists
func (p *Paths) IsInitialized() bool {
	info, err := os.Stat(p.TapDir)
	if err != nil {
		return false
	}
	return info.IsDir()
}

func expandHome(path string) string {
	if len(path) < 2 || path[:2] != "~/" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
