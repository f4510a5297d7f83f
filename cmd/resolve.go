package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/samhoang/tapctl/internal/descriptor"
)

var resolveSignature bool

var resolveCmd = &cobra.Command{
	Use:   "resolve <name>...",
	Short: "Print the concrete artifact URL of packages",
	Long: `Substitute a descriptor's fields into its URL template and print the result.

Examples:
  tapctl resolve debugapk
  tapctl resolve aldroid uncrustify-al
  tapctl resolve --signature mytool`,
	Args:              cobra.MinimumNArgs(1),
	ValidArgsFunction: completePackageNames,
	RunE:              runResolve,
}

func init() {
	resolveCmd.Flags().BoolVar(&resolveSignature, "signature", false, "Also print the signature URL")
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	c, err := e.catalog()
	if err != nil {
		return err
	}

	ds, err := c.Lookup(args)
	if err != nil {
		return err
	}

	for _, d := range ds {
		url, err := descriptor.Resolve(d)
		if err != nil {
			return err
		}
		if len(ds) > 1 {
			fmt.Printf("%s\t%s\n", d.Name, url)
		} else {
			fmt.Println(url)
		}

		if resolveSignature && d.Signature != "" {
			sig, err := descriptor.ResolveSignature(d)
			if err != nil {
				return err
			}
			fmt.Printf("signature\t%s\n", sig)
		}
	}

	return nil
}
