package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/samhoang/tapctl/internal/catalog"
	"github.com/samhoang/tapctl/internal/receipt"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose common setup problems",
	Long: `Check for common tapctl issues.

Checks:
- Does the tap directory exist and load cleanly?
- Are the bin and applications directories writable?
- Is the bin directory on PATH?
- Do all files recorded in receipts still exist?`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}

	fmt.Println("=== tapctl doctor ===")
	fmt.Println()

	issues := 0
	fail := func(format string, a ...any) {
		fmt.Println(failStyle.Render("FAIL"))
		fmt.Printf("  → "+format+"\n", a...)
		issues++
	}
	warn := func(format string, a ...any) {
		fmt.Println(warnStyle.Render("WARN"))
		fmt.Printf("  → "+format+"\n", a...)
	}
	ok := func(detail string) {
		if detail == "" {
			fmt.Println(successStyle.Render("OK"))
			return
		}
		fmt.Printf("%s → %s\n", successStyle.Render("OK"), detail)
	}

	// Check 1: tap
	fmt.Print("Checking tap... ")
	if !e.paths.IsInitialized() {
		fail("no tap at %s", e.paths.TapDir)
	} else if c, err := catalog.Load(e.paths.TapDir); err != nil {
		fail("%v", err)
	} else if len(c.Problems) > 0 {
		warn("%d descriptor files fail to load, run 'tapctl lint'", len(c.Problems))
	} else {
		ok(fmt.Sprintf("%d packages in %s", len(c.Names()), e.paths.TapDir))
	}

	// Check 2: destination directories
	for _, dir := range []struct{ label, path string }{
		{"bin directory", e.paths.BinDir},
		{"applications directory", e.paths.AppDir},
	} {
		fmt.Printf("Checking %s... ", dir.label)
		if err := checkWritable(dir.path); err != nil {
			fail("%s: %v", dir.path, err)
		} else {
			ok(dir.path)
		}
	}

	// Check 3: PATH
	fmt.Print("Checking PATH... ")
	if onPath(e.paths.BinDir) {
		ok("")
	} else {
		warn("%s is not on PATH; installed executables will not be found", e.paths.BinDir)
	}

	// Check 4: receipts
	fmt.Print("Checking receipts... ")
	ledger, err := receipt.Load(e.paths.ReceiptsPath())
	if err != nil {
		fail("%v", err)
	} else {
		var missing []string
		for _, r := range ledger.List() {
			for _, m := range r.Missing() {
				missing = append(missing, fmt.Sprintf("%s: %s", r.Name, m))
			}
		}
		if len(missing) > 0 {
			warn("%d installed files are gone", len(missing))
			for _, m := range missing[:min(5, len(missing))] {
				fmt.Printf("  → %s\n", m)
			}
			if len(missing) > 5 {
				fmt.Printf("  → ... and %d more\n", len(missing)-5)
			}
		} else {
			ok(fmt.Sprintf("%d packages recorded", ledger.Count()))
		}
	}

	fmt.Println()
	if issues > 0 {
		return fmt.Errorf("found %d issues", issues)
	}
	fmt.Println("No issues found")
	return nil
}

// checkWritable creates dir if needed and checks it with a temp file
func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".tapctl-doctor-")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

func onPath(dir string) bool {
	clean := filepath.Clean(dir)
	for _, p := range strings.Split(os.Getenv("PATH"), string(os.PathListSeparator)) {
		if p != "" && filepath.Clean(p) == clean {
			return true
		}
	}
	return false
}
