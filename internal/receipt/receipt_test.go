package receipt

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestRecordAssignsIDAndTime(t *testing.T) {
	l := NewLedger(filepath.Join(t.TempDir(), "receipts.toml"))

	r := l.Record(Receipt{Name: "debugapk", Version: "1.0"})
	if r.ID == "" {
		t.Error("Record() did not assign an ID")
	}
	if r.InstalledAt.IsZero() {
		t.Error("Record() did not assign InstalledAt")
	}

	r2 := l.Record(Receipt{Name: "debugapk", Version: "1.1"})
	if r2.ID == r.ID {
		t.Error("Record() reused an ID")
	}

	got, ok := l.Get("debugapk")
	if !ok || got.Version != "1.1" {
		t.Errorf("Get() = %v, %v, want version 1.1", got, ok)
	}
	if l.Count() != 1 {
		t.Errorf("Count() = %d, want 1", l.Count())
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "receipts.toml")
	l := NewLedger(path)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.Record(Receipt{
		Name:        "swiftformat-al",
		Version:     "0.1.0",
		Kind:        "cask",
		URL:         "https://example.com/SwiftFormat-for-Xcode.zip",
		Digest:      "sha256:f6ca221ada6eae684d2ce397c72900bbe7eb9f3674d8d33eff2c56d4df4f6810",
		InstalledAt: at,
		Files: []File{
			{Kind: "app", Source: "SwiftFormat for Xcode.app", Dest: "/Applications/SwiftFormat for Xcode.app", BundleVersion: "0.1.0"},
		},
	})
	l.Record(Receipt{Name: "aldroid", Version: "0.4.3", InstalledAt: at})

	if err := l.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("Save() left its temp file behind")
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	list := loaded.List()
	if len(list) != 2 || list[0].Name != "aldroid" || list[1].Name != "swiftformat-al" {
		t.Fatalf("List() = %v", list)
	}

	r := list[1]
	if !r.InstalledAt.Equal(at) {
		t.Errorf("InstalledAt = %v, want %v", r.InstalledAt, at)
	}
	if len(r.Files) != 1 || r.Files[0].BundleVersion != "0.1.0" {
		t.Errorf("Files = %v", r.Files)
	}

	found, ok := loaded.FindByDest("/Applications/SwiftFormat for Xcode.app")
	if !ok || found.Name != "swiftformat-al" {
		t.Errorf("FindByDest() = %v, %v", found, ok)
	}
}

func TestLoadMissingFile(t *testing.T) {
	l, err := Load(filepath.Join(t.TempDir(), "receipts.toml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if l.Count() != 0 {
		t.Errorf("Count() = %d, want 0", l.Count())
	}
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"newer version", "version = 99\n"},
		{"not toml", "version = \n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "receipts.toml")
			os.WriteFile(path, []byte(tt.content), 0644)
			if _, err := Load(path); err == nil {
				t.Error("Load() should fail")
			}
		})
	}
}

func TestMissing(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "present")
	os.WriteFile(present, []byte("x"), 0755)

	r := Receipt{Files: []File{
		{Dest: present},
		{Dest: filepath.Join(dir, "gone")},
	}}

	missing := r.Missing()
	if len(missing) != 1 || missing[0] != filepath.Join(dir, "gone") {
		t.Errorf("Missing() = %v", missing)
	}
}

func TestRecordConcurrent(t *testing.T) {
	l := NewLedger(filepath.Join(t.TempDir(), "receipts.toml"))

	var wg sync.WaitGroup
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Record(Receipt{Name: name, Version: "1"})
		}()
	}
	wg.Wait()

	if l.Count() != 8 {
		t.Errorf("Count() = %d, want 8", l.Count())
	}
}
