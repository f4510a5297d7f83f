package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/samhoang/tapctl/internal/descriptor"
	"github.com/samhoang/tapctl/internal/picker"
	"github.com/samhoang/tapctl/internal/receipt"
)

var (
	installAll             bool
	installInteractive     bool
	installJobs            int
	installTimeout         time.Duration
	installAllowUnverified bool
)

var installCmd = &cobra.Command{
	Use:     "install [name...]",
	Aliases: []string{"i"},
	Short:   "Fetch, verify and install packages",
	Long: `Install packages from the tap.

Each package runs resolve, fetch, verify and install in order. An artifact
that matches none of the declared checksums is never installed. Installing
a package again replaces the files it placed before.

With no names and a terminal attached, an interactive picker is shown.

Examples:
  tapctl install debugapk
  tapctl install aldroid uncrustify-al --jobs 2
  tapctl install --all
  tapctl install -i`,
	ValidArgsFunction: completePackageNames,
	RunE:              runInstall,
}

func init() {
	installCmd.Flags().BoolVarP(&installAll, "all", "a", false, "Install every package in the tap")
	installCmd.Flags().BoolVarP(&installInteractive, "interactive", "i", false, "Pick packages interactively")
	installCmd.Flags().IntVarP(&installJobs, "jobs", "j", 0, "Packages to install in parallel (default from config)")
	installCmd.Flags().DurationVar(&installTimeout, "timeout", 0, "Deadline for the whole run, e.g. 5m")
	installCmd.Flags().BoolVar(&installAllowUnverified, "allow-unverified", false, "Install packages that declare no checksum")
	rootCmd.AddCommand(installCmd)
}

func runInstall(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	c, err := e.catalog()
	if err != nil {
		return err
	}

	ledger, err := receipt.Load(e.paths.ReceiptsPath())
	if err != nil {
		return err
	}

	var ds []descriptor.Descriptor
	switch {
	case installAll:
		ds = c.List()

	case len(args) > 0:
		ds, err = c.Lookup(args)
		if err != nil {
			return err
		}

	case installInteractive || (isTerminal(os.Stdin) && isTerminal(os.Stdout)):
		installed := make(map[string]string)
		for _, r := range ledger.List() {
			installed[r.Name] = r.Version
		}

		selected, err := picker.Run("Select packages to install", picker.FromDescriptors(c.List(), installed))
		if err != nil {
			return err
		}
		if len(selected) == 0 {
			fmt.Println("Nothing selected")
			return nil
		}
		ds, err = c.Lookup(selected)
		if err != nil {
			return err
		}

	default:
		return fmt.Errorf("no packages given: pass names, --all, or -i")
	}

	if len(ds) == 0 {
		fmt.Println("Nothing to install")
		return nil
	}

	if installAllowUnverified {
		e.cfg.AllowUnverified = true
	}
	jobs := e.cfg.Jobs
	if installJobs > 0 {
		jobs = installJobs
	}

	in, err := e.interpreter(ledger, jobs)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if installTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, installTimeout)
		defer cancel()
	}

	results, runErr := in.RunAll(ctx, ds)

	for _, res := range results {
		fmt.Printf("%s %s\n", successStyle.Render("✓"), res.Descriptor.ID())
		for _, f := range res.Installed {
			fmt.Printf("  %s %s\n", faintStyle.Render(string(f.Action.Kind)), f.Dest)
		}
	}

	if runErr != nil {
		failed := len(ds) - len(results)
		if failed == 0 {
			return runErr
		}
		for _, err := range unwrapJoined(runErr) {
			fmt.Fprintf(os.Stderr, "%s %v\n", failStyle.Render("✗"), err)
		}
		return fmt.Errorf("%d of %d packages failed", failed, len(ds))
	}

	return nil
}

// unwrapJoined splits an errors.Join result back into its parts
func unwrapJoined(err error) []error {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		return joined.Unwrap()
	}
	return []error{err}
}
