package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search package names and descriptions",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().BoolVarP(&listJSON, "json", "j", false, "Output as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	c, err := e.catalog()
	if err != nil {
		return err
	}

	query := strings.Join(args, " ")
	found := c.Search(query)
	if len(found) == 0 && !listJSON {
		fmt.Printf("No packages match %q\n", query)
		return nil
	}
	return printDescriptors(found)
}
