// Package descriptor defines the package descriptor record interpreted by
// tapctl: where an artifact lives, which digests it must match, and which
// paths inside it get installed where.
package descriptor

import "slices"

// Kind distinguishes formulae (command line tools) from casks (applications)
type Kind string

const (
	KindFormula Kind = "formula"
	KindCask    Kind = "cask"
)

// ActionKind is the closed set of install destinations
type ActionKind string

const (
	ActionExecutable        ActionKind = "executable"
	ActionApplicationBundle ActionKind = "app"
)

// AllActionKinds returns every destination kind in order
func AllActionKinds() []ActionKind {
	return []ActionKind{ActionExecutable, ActionApplicationBundle}
}

// Valid reports whether k is one of the known destination kinds
func (k ActionKind) Valid() bool {
	return slices.Contains(AllActionKinds(), k)
}

// Action copies Path from the unpacked artifact into the canonical
// location for Kind.
type Action struct {
	Path string     `json:"path"`
	Kind ActionKind `json:"kind"`
}

// InstallExecutable builds an executable action
func InstallExecutable(path string) Action {
	return Action{Path: path, Kind: ActionExecutable}
}

// InstallApplicationBundle builds an application bundle action
func InstallApplicationBundle(path string) Action {
	return Action{Path: path, Kind: ActionApplicationBundle}
}

func (a Action) String() string {
	return string(a.Kind) + ":" + a.Path
}

// Descriptor is one installable package at one version. Values are treated
// as read-only once decoded; use Clone before handing one to code that may
// mutate slices.
type Descriptor struct {
	Name        string
	Kind        Kind
	Version     string
	URL         string   // template, see Resolve
	Checksums   []string // hex digests, optionally "sha256:" / "sha512:" prefixed
	Homepage    string
	Description string
	Signature   string // optional template for a detached OpenPGP signature
	SigningKey  string // armored public key, or a path to one
	Actions     []Action

	// File is the descriptor file this value was decoded from, if any.
	File string
}

// Clone returns a deep copy of d
func (d Descriptor) Clone() Descriptor {
	d.Checksums = slices.Clone(d.Checksums)
	d.Actions = slices.Clone(d.Actions)
	return d
}

// ID returns "name@version"
func (d Descriptor) ID() string {
	return d.Name + "@" + d.Version
}

// HasChecksums reports whether any digest is declared
func (d Descriptor) HasChecksums() bool {
	return len(d.Checksums) > 0
}

// HasSignature reports whether a detached signature must be checked
func (d Descriptor) HasSignature() bool {
	return d.Signature != "" && d.SigningKey != ""
}

// ActionsOf returns the actions of the given kind, in declaration order
func (d Descriptor) ActionsOf(kind ActionKind) []Action {
	var out []Action
	for _, a := range d.Actions {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	return out
}
