package catalog

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/samhoang/tapctl/internal/descriptor"
	"github.com/samhoang/tapctl/internal/verify"
)

// Severity of a lint finding
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Finding is one lint result
type Finding struct {
	Severity Severity
	Package  string
	File     string
	Message  string
}

func (f Finding) String() string {
	subject := f.Package
	if subject == "" {
		subject = f.File
	}
	return fmt.Sprintf("%s: %s: %s", f.Severity, subject, f.Message)
}

// Lint checks the catalog for authoring mistakes. Findings are sorted by
// package, then file.
func (c *Catalog) Lint() []Finding {
	var findings []Finding

	for _, p := range c.Problems {
		findings = append(findings, Finding{
			Severity: SeverityError,
			File:     p.File,
			Message:  p.Err.Error(),
		})
	}

	for _, name := range c.Names() {
		revs := c.Revisions(name)
		for _, d := range revs {
			findings = append(findings, lintDescriptor(d)...)
		}
		findings = append(findings, lintRevisions(name, revs)...)
	}

	sort.SliceStable(findings, func(i, j int) bool {
		if findings[i].Package != findings[j].Package {
			return findings[i].Package < findings[j].Package
		}
		return findings[i].File < findings[j].File
	})
	return findings
}

// HasErrors reports whether any finding is an error
func HasErrors(findings []Finding) bool {
	for _, f := range findings {
		if f.Severity == SeverityError {
			return true
		}
	}
	return false
}

func lintDescriptor(d descriptor.Descriptor) []Finding {
	var out []Finding
	add := func(sev Severity, format string, args ...any) {
		out = append(out, Finding{Severity: sev, Package: d.Name, File: d.File, Message: fmt.Sprintf(format, args...)})
	}

	url, err := descriptor.Resolve(d)
	if err != nil {
		add(SeverityError, "%v", err)
	} else if !strings.Contains(url, d.Version) {
		// A URL that ignores the version forces a checksum change on every
		// release without a matching version bump.
		add(SeverityWarning, "url %s does not contain version %s", url, d.Version)
	}

	if d.Signature != "" {
		if _, err := descriptor.ResolveSignature(d); err != nil {
			add(SeverityError, "signature: %v", err)
		}
	}

	if !d.HasChecksums() {
		add(SeverityWarning, "no checksum declared, installs require allow_unverified")
	}

	if d.Homepage == "" {
		add(SeverityWarning, "no homepage")
	}

	switch d.Kind {
	case descriptor.KindFormula:
		if len(d.ActionsOf(descriptor.ActionApplicationBundle)) > 0 {
			add(SeverityWarning, "formula installs an application bundle, consider a cask")
		}
	case descriptor.KindCask:
		if len(d.ActionsOf(descriptor.ActionExecutable)) > 0 {
			add(SeverityWarning, "cask installs an executable, consider a formula")
		}
	}

	return out
}

func lintRevisions(name string, revs []descriptor.Descriptor) []Finding {
	if len(revs) < 2 {
		return nil
	}

	var out []Finding
	byVersion := make(map[string][]descriptor.Descriptor)
	var versions []string
	for _, d := range revs {
		if _, seen := byVersion[d.Version]; !seen {
			versions = append(versions, d.Version)
		}
		byVersion[d.Version] = append(byVersion[d.Version], d)
	}

	for _, v := range versions {
		same := byVersion[v]
		for i := 1; i < len(same); i++ {
			a, b := same[0], same[i]
			if sameChecksums(a.Checksums, b.Checksums) {
				out = append(out, Finding{
					Severity: SeverityWarning,
					Package:  name,
					File:     b.File,
					Message:  fmt.Sprintf("duplicates %s at version %s", a.File, v),
				})
				continue
			}
			out = append(out, Finding{
				Severity: SeverityError,
				Package:  name,
				File:     b.File,
				Message: fmt.Sprintf("version %s republished with different checksums than %s; bump the version when the artifact changes",
					v, a.File),
			})
		}
	}

	if len(versions) > 1 {
		out = append(out, Finding{
			Severity: SeverityWarning,
			Package:  name,
			Message:  fmt.Sprintf("declared at %d versions (%s), the highest is installed", len(versions), strings.Join(versions, ", ")),
		})
	}

	return out
}

// sameChecksums compares checksum sets, ignoring order, case and prefixes
func sameChecksums(a, b []string) bool {
	return slices.Equal(normalize(a), normalize(b))
}

func normalize(checksums []string) []string {
	out := make([]string, 0, len(checksums))
	for _, raw := range checksums {
		if c, ok := verify.ParseChecksum(raw); ok {
			out = append(out, c.String())
		} else {
			out = append(out, strings.ToLower(strings.TrimSpace(raw)))
		}
	}
	sort.Strings(out)
	return slices.Compact(out)
}
