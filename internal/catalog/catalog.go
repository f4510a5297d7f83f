// Package catalog loads a tap: a directory of formula and cask descriptors.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/samhoang/tapctl/internal/descriptor"
	taperrors "github.com/samhoang/tapctl/internal/errors"
)

// SectionDirs are the tap subdirectories scanned for descriptors
var SectionDirs = []string{"Formula", "Formulae", "Casks"}

// Problem is a descriptor file that could not be loaded
type Problem struct {
	File string
	Err  error
}

// Catalog holds every descriptor found in a tap
type Catalog struct {
	Dir      string
	Problems []Problem

	all    []descriptor.Descriptor
	byName map[string][]int // indexes into all, in load order
}

// New builds a catalog from descriptors already in memory
func New(descriptors ...descriptor.Descriptor) *Catalog {
	c := &Catalog{byName: make(map[string][]int)}
	for _, d := range descriptors {
		c.add(d)
	}
	return c
}

// Load scans dir's section directories. Unreadable or invalid descriptor
// files are collected in Problems rather than failing the load.
func Load(dir string) (*Catalog, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("open tap: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("open tap: %s is not a directory", dir)
	}

	c := New()
	c.Dir = dir

	for _, section := range SectionDirs {
		entries, err := os.ReadDir(filepath.Join(dir, section))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}

		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() || strings.HasPrefix(name, ".") {
				continue
			}
			if _, ok := descriptor.FormatFromPath(name); !ok {
				continue
			}

			file := filepath.Join(dir, section, name)
			d, err := descriptor.LoadFile(file)
			if err != nil {
				c.Problems = append(c.Problems, Problem{File: file, Err: err})
				continue
			}
			c.add(d)
		}
	}

	return c, nil
}

func (c *Catalog) add(d descriptor.Descriptor) {
	c.all = append(c.all, d.Clone())
	c.byName[d.Name] = append(c.byName[d.Name], len(c.all)-1)
}

// Get returns the descriptor for name. When several files declare the
// same name the highest version wins.
func (c *Catalog) Get(name string) (descriptor.Descriptor, error) {
	revs := c.Revisions(name)
	if len(revs) == 0 {
		return descriptor.Descriptor{}, fmt.Errorf("%w: %s", taperrors.ErrPackageNotFound, name)
	}
	best := revs[0]
	for _, d := range revs[1:] {
		if CompareVersions(d.Version, best.Version) > 0 {
			best = d
		}
	}
	return best, nil
}

// Revisions returns every descriptor declared for name, in load order
func (c *Catalog) Revisions(name string) []descriptor.Descriptor {
	idx := c.byName[name]
	out := make([]descriptor.Descriptor, 0, len(idx))
	for _, i := range idx {
		out = append(out, c.all[i].Clone())
	}
	return out
}

// Has reports whether name is declared
func (c *Catalog) Has(name string) bool {
	return len(c.byName[name]) > 0
}

// Names returns the declared package names, sorted
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.byName))
	for name := range c.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns the descriptor Get would pick for every name, sorted by name
func (c *Catalog) List() []descriptor.Descriptor {
	names := c.Names()
	out := make([]descriptor.Descriptor, 0, len(names))
	for _, name := range names {
		d, _ := c.Get(name)
		out = append(out, d)
	}
	return out
}

// All returns every loaded descriptor, including superseded revisions
func (c *Catalog) All() []descriptor.Descriptor {
	out := make([]descriptor.Descriptor, 0, len(c.all))
	for _, d := range c.all {
		out = append(out, d.Clone())
	}
	return out
}

// Search returns descriptors whose name or description contains query,
// case-insensitively.
func (c *Catalog) Search(query string) []descriptor.Descriptor {
	q := strings.ToLower(strings.TrimSpace(query))
	var out []descriptor.Descriptor
	for _, d := range c.List() {
		if q == "" ||
			strings.Contains(strings.ToLower(d.Name), q) ||
			strings.Contains(strings.ToLower(d.Description), q) {
			out = append(out, d)
		}
	}
	return out
}

// Lookup resolves several names, failing on the first unknown one
func (c *Catalog) Lookup(names []string) ([]descriptor.Descriptor, error) {
	var out []descriptor.Descriptor
	var missing []string
	for _, name := range names {
		d, err := c.Get(name)
		if errors.Is(err, taperrors.ErrPackageNotFound) {
			missing = append(missing, name)
			continue
		}
		out = append(out, d)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", taperrors.ErrPackageNotFound, strings.Join(missing, ", "))
	}
	return out, nil
}

// CompareVersions orders dotted versions component by component, numerically
// where both components are numbers and lexically otherwise.
func CompareVersions(a, b string) int {
	as := strings.FieldsFunc(a, isVersionSep)
	bs := strings.FieldsFunc(b, isVersionSep)
	for i := 0; i < len(as) || i < len(bs); i++ {
		var x, y string
		if i < len(as) {
			x = as[i]
		}
		if i < len(bs) {
			y = bs[i]
		}
		if x == y {
			continue
		}
		xn, xerr := strconv.Atoi(x)
		yn, yerr := strconv.Atoi(y)
		switch {
		case x == "":
			return -1
		case y == "":
			return 1
		case xerr == nil && yerr == nil:
			if xn < yn {
				return -1
			}
			return 1
		case x < y:
			return -1
		default:
			return 1
		}
	}
	return 0
}

func isVersionSep(r rune) bool {
	return r == '.' || r == '-' || r == '_'
}
