package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/samhoang/tapctl/internal/descriptor"
	"github.com/samhoang/tapctl/internal/receipt"
)

var (
	listInstalled bool
	listJSON      bool
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List packages in the tap, or installed packages",
	RunE:    runList,
}

func init() {
	listCmd.Flags().BoolVar(&listInstalled, "installed", false, "List installed packages from the receipts ledger")
	listCmd.Flags().BoolVarP(&listJSON, "json", "j", false, "Output as JSON")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}

	if listInstalled {
		ledger, err := receipt.Load(e.paths.ReceiptsPath())
		if err != nil {
			return err
		}
		return printReceipts(ledger.List())
	}

	c, err := e.catalog()
	if err != nil {
		return err
	}
	return printDescriptors(c.List())
}

func printDescriptors(ds []descriptor.Descriptor) error {
	if listJSON {
		type packageJSON struct {
			Name        string   `json:"name"`
			Version     string   `json:"version"`
			Kind        string   `json:"kind"`
			Description string   `json:"desc,omitempty"`
			Homepage    string   `json:"homepage,omitempty"`
			Install     []string `json:"install"`
		}

		output := make([]packageJSON, 0, len(ds))
		for _, d := range ds {
			pj := packageJSON{
				Name:        d.Name,
				Version:     d.Version,
				Kind:        string(d.Kind),
				Description: d.Description,
				Homepage:    d.Homepage,
			}
			for _, a := range d.Actions {
				pj.Install = append(pj.Install, a.String())
			}
			output = append(output, pj)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(output)
	}

	if len(ds) == 0 {
		fmt.Println("The tap declares no packages")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "NAME\tVERSION\tKIND\tDESCRIPTION\n")
	for _, d := range ds {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.Name, d.Version, d.Kind, d.Description)
	}
	return w.Flush()
}

func printReceipts(receipts []receipt.Receipt) error {
	if listJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if receipts == nil {
			receipts = []receipt.Receipt{}
		}
		return enc.Encode(receipts)
	}

	if len(receipts) == 0 {
		fmt.Println("No packages installed")
		fmt.Println()
		fmt.Println("Install one with:")
		fmt.Println("  tapctl install <name>")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "NAME\tVERSION\tFILES\tINSTALLED\n")
	for _, r := range receipts {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", r.Name, r.Version, len(r.Files), r.InstalledAt.Format("2006-01-02"))
	}
	return w.Flush()
}
