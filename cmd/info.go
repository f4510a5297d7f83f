package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/samhoang/tapctl/internal/descriptor"
	"github.com/samhoang/tapctl/internal/receipt"
)

var infoRaw bool

var infoCmd = &cobra.Command{
	Use:               "info <name>",
	Short:             "Show a package's descriptor and install state",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completePackageNames,
	RunE:              runInfo,
}

func init() {
	infoCmd.Flags().BoolVar(&infoRaw, "raw", false, "Print markdown without rendering")
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
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

	ledger, err := receipt.Load(e.paths.ReceiptsPath())
	if err != nil {
		return err
	}
	r, installed := ledger.Get(d.Name)

	var others []string
	for _, rev := range c.Revisions(d.Name) {
		if rev.Version != d.Version {
			others = append(others, rev.Version)
		}
	}

	md := infoMarkdown(d, r, installed, others)
	if infoRaw || !isTerminal(os.Stdout) {
		fmt.Print(md)
		return nil
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		fmt.Print(md)
		return nil
	}
	out, err := renderer.Render(md)
	if err != nil {
		fmt.Print(md)
		return nil
	}
	fmt.Print(out)
	return nil
}

func infoMarkdown(d descriptor.Descriptor, r receipt.Receipt, installed bool, others []string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s %s\n\n", d.Name, d.Version)
	if d.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", d.Description)
	}
	if d.Homepage != "" {
		fmt.Fprintf(&b, "<%s>\n\n", d.Homepage)
	}

	fmt.Fprintf(&b, "- **Kind:** %s\n", d.Kind)
	if url, err := descriptor.Resolve(d); err == nil {
		fmt.Fprintf(&b, "- **URL:** `%s`\n", url)
	} else {
		fmt.Fprintf(&b, "- **URL:** `%s` (unresolvable: %v)\n", d.URL, err)
	}
	if d.HasChecksums() {
		for _, sum := range d.Checksums {
			fmt.Fprintf(&b, "- **Checksum:** `%s`\n", sum)
		}
	} else {
		b.WriteString("- **Checksum:** none declared\n")
	}
	if d.Signature != "" {
		fmt.Fprintf(&b, "- **Signature:** `%s`\n", d.Signature)
	}
	if d.File != "" {
		fmt.Fprintf(&b, "- **Descriptor:** `%s`\n", d.File)
	}
	if len(others) > 0 {
		fmt.Fprintf(&b, "- **Other versions in tap:** %s\n", strings.Join(others, ", "))
	}

	b.WriteString("\n## Install\n\n")
	for _, a := range d.Actions {
		fmt.Fprintf(&b, "- %s `%s`\n", a.Kind, a.Path)
	}

	b.WriteString("\n## Status\n\n")
	if !installed {
		b.WriteString("Not installed.\n")
		return b.String()
	}
	fmt.Fprintf(&b, "Installed %s on %s from `%s`.\n\n", r.Version, r.InstalledAt.Format("2006-01-02 15:04"), r.URL)
	for _, f := range r.Files {
		line := fmt.Sprintf("- `%s`", f.Dest)
		if f.BundleVersion != "" {
			line += fmt.Sprintf(" (bundle %s)", f.BundleVersion)
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}
