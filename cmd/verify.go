package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	v "github.com/samhoang/tapctl/internal/verify"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <name> <file>",
	Short: "Check a local artifact against a package's declared checksums",
	Long: `Verify that a file matches one of the checksums declared by a package.

If the package declares a detached signature it is fetched and checked too.

Examples:
  tapctl verify debugapk ./v1.1.tar.gz`,
	Args:              cobra.ExactArgs(2),
	ValidArgsFunction: completeFirstPackageName,
	RunE:              runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
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

	data, err := os.ReadFile(args[1])
	if err != nil {
		return err
	}

	in, err := e.interpreter(nil, 1)
	if err != nil {
		return err
	}

	signer, err := in.Verify(cmd.Context(), d, data)
	if err != nil {
		return err
	}

	fmt.Printf("%s %s matches %s\n", successStyle.Render("✓"), args[1], d.ID())
	fmt.Printf("  sha256:%s\n", v.Digest(v.SHA256, data))
	if signer != "" {
		fmt.Printf("  signed by %s\n", signer)
	}
	return nil
}
