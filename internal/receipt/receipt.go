// Package receipt keeps the ledger of packages tapctl has installed.
package receipt

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"
)

// LedgerVersion is the current receipts.toml format version
const LedgerVersion = 1

// Receipt records one successful install
type Receipt struct {
	ID          string    `toml:"id"`
	Name        string    `toml:"name"`
	Version     string    `toml:"version"`
	Kind        string    `toml:"kind"`
	URL         string    `toml:"url"`
	Digest      string    `toml:"digest"`           // sha256 of the artifact as fetched
	Signer      string    `toml:"signer,omitempty"` // OpenPGP key ID, if signed
	InstalledAt time.Time `toml:"installed_at"`
	Files       []File    `toml:"files"`
}

// File is one installed destination
type File struct {
	Kind          string `toml:"kind"`
	Source        string `toml:"source"`
	Dest          string `toml:"dest"`
	BundleVersion string `toml:"bundle_version,omitempty"`
}

// Ledger is the set of receipts stored in receipts.toml. It is safe for
// concurrent use.
type Ledger struct {
	mu       sync.Mutex
	path     string
	receipts map[string]Receipt
}

type ledgerFile struct {
	Version  int                `toml:"version"`
	Receipts map[string]Receipt `toml:"receipts"`
}

// NewLedger creates an empty ledger that saves to path
func NewLedger(path string) *Ledger {
	return &Ledger{
		path:     path,
		receipts: make(map[string]Receipt),
	}
}

// Load reads the ledger at path. A missing file yields an empty ledger.
func Load(path string) (*Ledger, error) {
	l := NewLedger(path)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return nil, err
	}

	var f ledgerFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	if f.Version > LedgerVersion {
		return nil, fmt.Errorf("%s has version %d, this tapctl understands %d", filepath.Base(path), f.Version, LedgerVersion)
	}
	for name, r := range f.Receipts {
		l.receipts[name] = r
	}

	return l, nil
}

// Save writes the ledger to disk
func (l *Ledger) Save() error {
	l.mu.Lock()
	f := ledgerFile{Version: LedgerVersion, Receipts: make(map[string]Receipt, len(l.receipts))}
	for name, r := range l.receipts {
		f.Receipts[name] = r
	}
	l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return err
	}

	data, err := toml.Marshal(f)
	if err != nil {
		return err
	}

	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, l.path)
}

// Record stores r, replacing any earlier receipt for the same package.
// It assigns an ID and timestamp when r has none.
func (l *Ledger) Record(r Receipt) Receipt {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.InstalledAt.IsZero() {
		r.InstalledAt = time.Now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.receipts[r.Name] = r
	return r
}

// Get returns the receipt for a package
func (l *Ledger) Get(name string) (Receipt, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.receipts[name]
	return r, ok
}

// List returns all receipts sorted by package name
func (l *Ledger) List() []Receipt {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Receipt, 0, len(l.receipts))
	for _, r := range l.receipts {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// FindByDest finds which receipt installed the given destination path
func (l *Ledger) FindByDest(dest string) (Receipt, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, r := range l.receipts {
		for _, f := range r.Files {
			if f.Dest == dest {
				return r, true
			}
		}
	}
	return Receipt{}, false
}

// Count returns the number of receipts
func (l *Ledger) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.receipts)
}

// Missing returns the recorded destinations that no longer exist on disk
func (r Receipt) Missing() []string {
	var missing []string
	for _, f := range r.Files {
		if _, err := os.Lstat(f.Dest); os.IsNotExist(err) {
			missing = append(missing, f.Dest)
		}
	}
	return missing
}
