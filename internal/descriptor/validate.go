package descriptor

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	taperrors "github.com/samhoang/tapctl/internal/errors"
)

var (
	namePattern   = regexp.MustCompile(`^[a-z0-9][a-z0-9+_.@-]*$`)
	digestPattern = regexp.MustCompile(`^((sha256:)?[0-9a-fA-F]{64}|(sha512:)?[0-9a-fA-F]{128})$`)
)

// Validate checks the invariants every descriptor must hold regardless of
// how it was built. It returns a *errors.DescriptorError listing all issues.
func (d Descriptor) Validate() error {
	var issues []string

	if d.Name == "" {
		issues = append(issues, "name is empty")
	} else if !namePattern.MatchString(d.Name) {
		issues = append(issues, fmt.Sprintf("name %q has invalid characters", d.Name))
	}
	if d.Version == "" {
		issues = append(issues, "version is empty")
	} else if strings.ContainsAny(d.Version, " /\\") {
		issues = append(issues, fmt.Sprintf("version %q contains whitespace or slashes", d.Version))
	}
	if d.URL == "" {
		issues = append(issues, "url is empty")
	}
	switch d.Kind {
	case KindFormula, KindCask:
	default:
		issues = append(issues, fmt.Sprintf("unknown kind %q", d.Kind))
	}

	seen := make(map[string]bool)
	for _, sum := range d.Checksums {
		if !digestPattern.MatchString(sum) {
			issues = append(issues, fmt.Sprintf("checksum %q is not a sha256 or sha512 hex digest", sum))
			continue
		}
		key := strings.ToLower(sum)
		if seen[key] {
			issues = append(issues, fmt.Sprintf("checksum %q declared twice", sum))
		}
		seen[key] = true
	}

	if (d.Signature == "") != (d.SigningKey == "") {
		issues = append(issues, "signature and signing_key must be set together")
	}

	if len(d.Actions) == 0 {
		issues = append(issues, "no install actions")
	}
	for _, a := range d.Actions {
		if !a.Kind.Valid() {
			issues = append(issues, fmt.Sprintf("action %q: unknown kind", a))
			continue
		}
		if err := validateActionPath(a.Path); err != nil {
			issues = append(issues, fmt.Sprintf("action %q: %v", a, err))
		}
	}

	if len(issues) > 0 {
		return taperrors.NewDescriptorError(d.File, d.Name, issues)
	}
	return nil
}

// validateActionPath rejects paths that could escape the staging directory
func validateActionPath(p string) error {
	if p == "" {
		return fmt.Errorf("empty path")
	}
	if path.IsAbs(p) || strings.HasPrefix(p, `\`) {
		return fmt.Errorf("path must be relative to the artifact root")
	}
	clean := path.Clean(p)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("path escapes the artifact root")
	}
	return nil
}
