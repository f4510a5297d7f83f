package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/log"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/samhoang/tapctl/internal/catalog"
	"github.com/samhoang/tapctl/internal/config"
	"github.com/samhoang/tapctl/internal/fetch"
	"github.com/samhoang/tapctl/internal/interp"
	"github.com/samhoang/tapctl/internal/logging"
	"github.com/samhoang/tapctl/internal/receipt"
)

var Version = "dev"

var (
	rootTapDir   string
	rootLogLevel string
	rootVerbose  bool
)

var rootCmd = &cobra.Command{
	Use:   "tapctl",
	Short: "Install packages from a tap of formula and cask descriptors",
	Long: `tapctl interprets a tap: a directory of package descriptors naming a
download URL, a version, checksums and the paths to install.

Every install runs the same pipeline: resolve the URL, fetch the artifact,
verify it against the declared checksums, then copy executables into the
bin directory and application bundles into the applications directory.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(Version),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootTapDir, "tap", "", "Tap directory (overrides config and TAPCTL_TAP_DIR)")
	rootCmd.PersistentFlags().StringVar(&rootLogLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVarP(&rootVerbose, "verbose", "v", false, "Shorthand for --log-level debug")
}

// env is the resolved configuration shared by commands
type env struct {
	paths  *config.Paths
	cfg    *config.Config
	logger *log.Logger
}

func loadEnv() (*env, error) {
	paths, err := config.ResolvePaths()
	if err != nil {
		return nil, err
	}

	cfg, err := config.LoadConfig(paths.ConfigDir)
	if err != nil {
		return nil, err
	}
	paths.ApplyConfig(cfg)
	if rootTapDir != "" {
		paths.TapDir = rootTapDir
	}

	level := cfg.Log.Level
	if rootLogLevel != "" {
		level = rootLogLevel
	}
	if rootVerbose {
		level = "debug"
	}
	logger, err := logging.New(os.Stderr, level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	return &env{paths: paths, cfg: cfg, logger: logger}, nil
}

// catalog loads the tap, logging descriptor files that failed to load
func (e *env) catalog() (*catalog.Catalog, error) {
	if !e.paths.IsInitialized() {
		return nil, fmt.Errorf("no tap at %s: set tap in %s, TAPCTL_TAP_DIR, or pass --tap", e.paths.TapDir, e.paths.ConfigPath())
	}

	c, err := catalog.Load(e.paths.TapDir)
	if err != nil {
		return nil, err
	}
	for _, p := range c.Problems {
		e.logger.Warn("skipping descriptor", "file", p.File, "err", p.Err)
	}
	return c, nil
}

// interpreter builds the pipeline runner. ledger may be nil.
func (e *env) interpreter(ledger *receipt.Ledger, jobs int) (*interp.Interpreter, error) {
	timeout, err := e.cfg.Timeout()
	if err != nil {
		return nil, err
	}

	fetchers := fetch.NewDefaultRegistry(fetch.NewSecureHTTPClient(), fetch.S3Options{
		Region:       e.cfg.S3.Region,
		Endpoint:     e.cfg.S3.Endpoint,
		AccessKey:    e.cfg.S3.AccessKey,
		SecretKey:    e.cfg.S3.SecretKey,
		UsePathStyle: e.cfg.S3.UsePathStyle,
	})

	opts := interp.Options{
		AllowUnverified: e.cfg.AllowUnverified,
		FetchTimeout:    timeout,
		Jobs:            jobs,
		KeepDownloads:   e.cfg.KeepDownloads,
	}
	// Concurrent progress bars would interleave on one line.
	if jobs <= 1 && isTerminal(os.Stderr) {
		opts.Progress = os.Stderr
	}

	return interp.New(e.paths, fetchers, ledger, e.logger, opts), nil
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
