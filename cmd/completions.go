package cmd

import (
	"github.com/spf13/cobra"

	"github.com/samhoang/tapctl/internal/catalog"
	"github.com/samhoang/tapctl/internal/config"
)

// completePackageNames lists the package names declared by the tap
func completePackageNames(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	paths, err := config.ResolvePaths()
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	if cfg, err := config.LoadConfig(paths.ConfigDir); err == nil {
		paths.ApplyConfig(cfg)
	}
	if rootTapDir != "" {
		paths.TapDir = rootTapDir
	}

	if !paths.IsInitialized() {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	c, err := catalog.Load(paths.TapDir)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	return c.Names(), cobra.ShellCompDirectiveNoFileComp
}

// completeFirstPackageName completes a package name for the first argument
// only, then falls back to file names
func completeFirstPackageName(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return completePackageNames(cmd, args, toComplete)
	}
	return nil, cobra.ShellCompDirectiveDefault
}
