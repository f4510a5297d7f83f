package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/samhoang/tapctl/internal/interp"
)

var fetchOutput string

var fetchCmd = &cobra.Command{
	Use:   "fetch <name>",
	Short: "Download and verify a package artifact without installing it",
	Long: `Resolve, fetch and verify a package's artifact, then write it to disk.

The artifact is only written when it matches a declared checksum.

Examples:
  tapctl fetch debugapk
  tapctl fetch debugapk -o /tmp/debugapk.tar.gz`,
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completePackageNames,
	RunE:              runFetch,
}

func init() {
	fetchCmd.Flags().StringVarP(&fetchOutput, "output", "o", "", "Output file (default: artifact name in the current directory)")
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	c, err := e.catalog()
	if err != nil {
		return err
	}

	d, err := c.Get(args[0])
	if err != nil {
		return err
	}

	in, err := e.interpreter(nil, 1)
	if err != nil {
		return err
	}

	url, err := in.Resolve(d)
	if err != nil {
		return err
	}

	data, err := in.Fetch(cmd.Context(), url, d.ID())
	if err != nil {
		return err
	}

	if _, err := in.Verify(cmd.Context(), d, data); err != nil {
		return err
	}

	out := fetchOutput
	if out == "" {
		out = interp.ArtifactName(url)
	}
	if err := os.WriteFile(out, data, 0644); err != nil {
		return err
	}

	fmt.Printf("%s %s -> %s (%d bytes)\n", successStyle.Render("✓"), d.ID(), out, len(data))
	return nil
}
