package descriptor

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	taperrors "github.com/samhoang/tapctl/internal/errors"
)

//go:embed schema.json
var schemaJSON string

// Format is a descriptor file encoding
type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks the format from a file extension
func FormatFromPath(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, true
	case ".yaml", ".yml":
		return FormatYAML, true
	}
	return "", false
}

// document is the on-disk shape of a descriptor
type document struct {
	Name       string      `json:"name"`
	Kind       string      `json:"kind"`
	Version    string      `json:"version"`
	URL        string      `json:"url"`
	SHA256     any         `json:"sha256"`
	Homepage   string      `json:"homepage"`
	Desc       string      `json:"desc"`
	Signature  string      `json:"signature"`
	SigningKey string      `json:"signing_key"`
	Install    []actionDoc `json:"install"`
}

type actionDoc struct {
	Executable string `json:"executable"`
	App        string `json:"app"`
}

var compileSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	return jsonschema.CompileString("descriptor.json", schemaJSON)
})

// LoadFile reads and decodes a descriptor file
func LoadFile(path string) (Descriptor, error) {
	format, ok := FormatFromPath(path)
	if !ok {
		return Descriptor{}, taperrors.NewDescriptorError(path, "",
			[]string{fmt.Sprintf("unsupported file extension %q", filepath.Ext(path))})
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Descriptor{}, err
	}

	d, err := Decode(data, format)
	if err != nil {
		var de *taperrors.DescriptorError
		if errors.As(err, &de) {
			de.File = path
		}
		return Descriptor{}, err
	}
	d.File = path
	return d, nil
}

// Decode parses a descriptor, checks it against the descriptor schema and
// validates the result.
func Decode(data []byte, format Format) (Descriptor, error) {
	raw, err := decodeRaw(data, format)
	if err != nil {
		return Descriptor{}, taperrors.NewDescriptorError("", "", []string{err.Error()})
	}

	if issues := SchemaIssues(raw); len(issues) > 0 {
		name, _ := raw["name"].(string)
		return Descriptor{}, taperrors.NewDescriptorError("", name, issues)
	}

	// Round-trip through JSON so TOML and YAML share one field mapping.
	buf, err := json.Marshal(raw)
	if err != nil {
		return Descriptor{}, err
	}
	var doc document
	if err := json.Unmarshal(buf, &doc); err != nil {
		return Descriptor{}, taperrors.NewDescriptorError("", "", []string{err.Error()})
	}

	d := doc.descriptor()
	if err := d.Validate(); err != nil {
		return Descriptor{}, err
	}
	return d, nil
}

// SchemaIssues validates a generic decoded document against the embedded
// JSON schema and returns one line per violation.
func SchemaIssues(raw map[string]any) []string {
	schema, err := compileSchema()
	if err != nil {
		return []string{fmt.Sprintf("descriptor schema: %v", err)}
	}

	// The validator only understands JSON value types.
	buf, err := json.Marshal(raw)
	if err != nil {
		return []string{err.Error()}
	}
	var v any
	if err := json.Unmarshal(buf, &v); err != nil {
		return []string{err.Error()}
	}

	err = schema.Validate(v)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []string{err.Error()}
	}

	var issues []string
	collectLeaves(ve, &issues)
	sort.Strings(issues)
	return issues
}

func collectLeaves(ve *jsonschema.ValidationError, out *[]string) {
	if len(ve.Causes) == 0 {
		loc := ve.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		*out = append(*out, fmt.Sprintf("%s: %s", loc, ve.Message))
		return
	}
	for _, c := range ve.Causes {
		collectLeaves(c, out)
	}
}

func decodeRaw(data []byte, format Format) (map[string]any, error) {
	raw := make(map[string]any)
	switch format {
	case FormatTOML:
		if err := toml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse toml: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
	return raw, nil
}

func (doc document) descriptor() Descriptor {
	d := Descriptor{
		Name:        doc.Name,
		Kind:        Kind(doc.Kind),
		Version:     doc.Version,
		URL:         doc.URL,
		Homepage:    doc.Homepage,
		Description: doc.Desc,
		Signature:   doc.Signature,
		SigningKey:  doc.SigningKey,
	}

	switch sums := doc.SHA256.(type) {
	case string:
		d.Checksums = []string{sums}
	case []any:
		for _, s := range sums {
			if str, ok := s.(string); ok {
				d.Checksums = append(d.Checksums, str)
			}
		}
	}

	apps := 0
	for _, a := range doc.Install {
		if a.App != "" {
			d.Actions = append(d.Actions, InstallApplicationBundle(a.App))
			apps++
		} else {
			d.Actions = append(d.Actions, InstallExecutable(a.Executable))
		}
	}

	if d.Kind == "" {
		d.Kind = KindFormula
		if apps > 0 && apps == len(d.Actions) {
			d.Kind = KindCask
		}
	}
	return d
}
