package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/samhoang/tapctl/internal/catalog"
)

var lintStrict bool

var lintCmd = &cobra.Command{
	Use:   "lint",
	Short: "Check the tap's descriptors for mistakes",
	Long: `Check every descriptor in the tap.

Errors:
  - files that fail to parse or violate the descriptor schema
  - URL templates with undefined placeholders
  - the same name and version published with different checksums

Warnings:
  - packages without a checksum
  - URLs that do not contain the version
  - names declared by more than one file

Exits non-zero on errors, or on any finding with --strict.`,
	Args: cobra.NoArgs,
	RunE: runLint,
}

func init() {
	lintCmd.Flags().BoolVar(&lintStrict, "strict", false, "Treat warnings as errors")
	rootCmd.AddCommand(lintCmd)
}

func runLint(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	if !e.paths.IsInitialized() {
		return fmt.Errorf("no tap at %s", e.paths.TapDir)
	}

	c, err := catalog.Load(e.paths.TapDir)
	if err != nil {
		return err
	}

	findings := c.Lint()
	errorCount := 0
	for _, f := range findings {
		mark := warnStyle.Render("!")
		if f.Severity == catalog.SeverityError {
			mark = failStyle.Render("✗")
			errorCount++
		}
		fmt.Printf("%s %s\n", mark, f)
	}

	if len(findings) == 0 {
		fmt.Printf("%s %d packages, no findings\n", successStyle.Render("✓"), len(c.Names()))
		return nil
	}

	fmt.Println()
	fmt.Printf("%d errors, %d warnings\n", errorCount, len(findings)-errorCount)
	if errorCount > 0 || lintStrict {
		return fmt.Errorf("lint failed")
	}
	return nil
}
