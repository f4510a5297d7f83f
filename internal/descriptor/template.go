package descriptor

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"mvdan.cc/sh/v3/shell"

	taperrors "github.com/samhoang/tapctl/internal/errors"
)

// tapPlaceholder matches the "#{field}" notation used by tap formulae
var tapPlaceholder = regexp.MustCompile(`#\{\s*([A-Za-z_][A-Za-z0-9_.]*)\s*\}`)

// paramRef matches "$name" and "${name...}" parameter references
var paramRef = regexp.MustCompile(`\$\{?([A-Za-z_][A-Za-z0-9_]*)`)

// Fields returns the values a URL template may reference. The numeric
// components of the version are only defined when present.
func (d Descriptor) Fields() map[string]string {
	fields := map[string]string{
		"name":    d.Name,
		"version": d.Version,
	}
	parts := strings.Split(d.Version, ".")
	for i, key := range []string{"major", "minor", "patch"} {
		if i < len(parts) && parts[i] != "" {
			fields[key] = parts[i]
		}
	}
	return fields
}

// Resolve substitutes the descriptor fields into its URL template
func Resolve(d Descriptor) (string, error) {
	return d.expand(d.URL)
}

// ResolveSignature substitutes the descriptor fields into its signature
// template. It returns "" when no signature is declared.
func ResolveSignature(d Descriptor) (string, error) {
	if d.Signature == "" {
		return "", nil
	}
	return d.expand(d.Signature)
}

func (d Descriptor) expand(template string) (string, error) {
	if template == "" {
		return "", taperrors.NewTemplateError(d.Name, template, "", fmt.Errorf("empty template"))
	}

	// "#{version}" and "version.major" style references become plain
	// shell parameters so there is a single expansion path.
	src := tapPlaceholder.ReplaceAllStringFunc(template, func(m string) string {
		field := tapPlaceholder.FindStringSubmatch(m)[1]
		return "${" + strings.ReplaceAll(field, ".", "_") + "}"
	})

	fields := d.Fields()
	fields["version_major"] = fields["major"]
	fields["version_minor"] = fields["minor"]
	fields["version_patch"] = fields["patch"]

	for _, m := range paramRef.FindAllStringSubmatch(src, -1) {
		if v, ok := fields[m[1]]; !ok || v == "" {
			return "", taperrors.NewTemplateError(d.Name, template, m[1], nil)
		}
	}

	out, err := shell.Expand(src, func(name string) string {
		return fields[name]
	})
	if err != nil {
		return "", taperrors.NewTemplateError(d.Name, template, "", err)
	}

	if strings.Contains(out, "#{") || strings.Contains(out, "{{") {
		return "", taperrors.NewTemplateError(d.Name, template, "", fmt.Errorf("unresolved placeholder in %q", out))
	}

	u, err := url.Parse(out)
	if err != nil {
		return "", taperrors.NewTemplateError(d.Name, template, "", err)
	}
	if u.Scheme == "" || (u.Host == "" && u.Path == "") {
		return "", taperrors.NewTemplateError(d.Name, template, "", fmt.Errorf("%q is not an absolute URL", out))
	}

	return out, nil
}
