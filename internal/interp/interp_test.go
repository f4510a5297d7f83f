package interp

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"

	"github.com/samhoang/tapctl/internal/config"
	"github.com/samhoang/tapctl/internal/descriptor"
	taperrors "github.com/samhoang/tapctl/internal/errors"
	"github.com/samhoang/tapctl/internal/fetch"
	"github.com/samhoang/tapctl/internal/logging"
	"github.com/samhoang/tapctl/internal/receipt"
	"github.com/samhoang/tapctl/internal/verify"
)

const debugapkScript = "#!/bin/sh\n# debugapk: sign and install a debug build\necho debugapk \"$@\"\n"

const infoPlist = `<?xml version="1.0" encoding="UTF-8"?>
<plist version="1.0">
<dict>
	<key>CFBundleShortVersionString</key>
	<string>0.1.0</string>
</dict>
</plist>
`

// tarGz builds a gzipped tarball. Names ending in "/" become directories.
func tarGz(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)
	for name, body := range files {
		hdr := &tar.Header{Name: name, Mode: 0755, Typeflag: tar.TypeReg, Size: int64(len(body))}
		if strings.HasSuffix(name, "/") {
			hdr = &tar.Header{Name: name, Mode: 0755, Typeflag: tar.TypeDir}
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if hdr.Typeflag == tar.TypeReg {
			tw.Write([]byte(body))
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func zipArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		hdr := &zip.FileHeader{Name: name, Method: zip.Deflate}
		hdr.SetMode(0644)
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			t.Fatal(err)
		}
		w.Write([]byte(body))
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// artifactServer serves fixed bodies by path and counts requests
type artifactServer struct {
	*httptest.Server
	hits atomic.Int32
}

func newArtifactServer(t *testing.T, bodies map[string][]byte) *artifactServer {
	t.Helper()
	s := &artifactServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		body, ok := bodies[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write(body)
	}))
	t.Cleanup(s.Close)
	return s
}

type fixture struct {
	paths  *config.Paths
	ledger *receipt.Ledger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	paths := &config.Paths{
		DataDir:  filepath.Join(root, "data"),
		CacheDir: filepath.Join(root, "cache"),
		BinDir:   filepath.Join(root, "bin"),
		AppDir:   filepath.Join(root, "Applications"),
	}
	return &fixture{paths: paths, ledger: receipt.NewLedger(paths.ReceiptsPath())}
}

func (f *fixture) interpreter(srv *artifactServer, opts Options) *Interpreter {
	return New(f.paths, fetch.NewRegistry(fetch.NewHTTPProvider(srv.Client())), f.ledger, logging.Discard(), opts)
}

func debugapk(srv *artifactServer, checksums ...string) descriptor.Descriptor {
	return descriptor.Descriptor{
		Name:      "debugapk",
		Kind:      descriptor.KindFormula,
		Version:   "1.0.0",
		URL:       srv.URL + "/AppLovin/debugapk/archive/v#{version}.tar.gz",
		Checksums: checksums,
		Actions:   []descriptor.Action{descriptor.InstallExecutable("debugapk")},
	}
}

func debugapkArtifact(t *testing.T) []byte {
	return tarGz(t, map[string]string{
		"debugapk-1.0.0/":         "",
		"debugapk-1.0.0/debugapk": debugapkScript,
		"debugapk-1.0.0/README":   "readme",
	})
}

func TestRunInstallsVerifiedArtifact(t *testing.T) {
	artifact := debugapkArtifact(t)
	srv := newArtifactServer(t, map[string][]byte{"/AppLovin/debugapk/archive/v1.0.0.tar.gz": artifact})
	f := newFixture(t)
	sum := verify.Digest(verify.SHA256, artifact)

	res, err := f.interpreter(srv, Options{}).Run(context.Background(), debugapk(srv, sum))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if want := srv.URL + "/AppLovin/debugapk/archive/v1.0.0.tar.gz"; res.URL != want {
		t.Errorf("URL = %q, want %q", res.URL, want)
	}

	dest := filepath.Join(f.paths.BinDir, "debugapk")
	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("executable not installed: %v", err)
	}
	if string(got) != debugapkScript {
		t.Errorf("installed content = %q, want %q", got, debugapkScript)
	}
	if _, err := os.Stat(filepath.Join(f.paths.BinDir, "README")); !os.IsNotExist(err) {
		t.Error("files without an install action should not be installed")
	}

	r, ok := f.ledger.Get("debugapk")
	if !ok {
		t.Fatal("no receipt recorded")
	}
	if r.Digest != "sha256:"+sum {
		t.Errorf("receipt digest = %q, want sha256:%s", r.Digest, sum)
	}
	if len(r.Files) != 1 || r.Files[0].Dest != dest {
		t.Errorf("receipt files = %v", r.Files)
	}
	if res.Receipt.ID != r.ID {
		t.Errorf("Result.Receipt.ID = %q, want %q", res.Receipt.ID, r.ID)
	}

	entries, _ := os.ReadDir(f.paths.StagingDir())
	if len(entries) != 0 {
		t.Errorf("staging left %d entries behind", len(entries))
	}
}

func TestRunRejectsChecksumMismatch(t *testing.T) {
	artifact := debugapkArtifact(t)
	srv := newArtifactServer(t, map[string][]byte{"/AppLovin/debugapk/archive/v1.0.0.tar.gz": artifact})
	f := newFixture(t)

	tampered := append(bytes.Clone(artifact), 0)
	_, err := f.interpreter(srv, Options{}).Run(context.Background(), debugapk(srv, verify.Digest(verify.SHA256, tampered)))

	var ie *taperrors.IntegrityError
	if !errors.As(err, &ie) {
		t.Fatalf("Run() error = %v, want *IntegrityError", err)
	}
	if !errors.Is(err, taperrors.ErrChecksumMismatch) {
		t.Errorf("Run() error = %v, want ErrChecksumMismatch", err)
	}
	if _, err := os.Stat(filepath.Join(f.paths.BinDir, "debugapk")); !os.IsNotExist(err) {
		t.Error("nothing may be installed after a failed verification")
	}
	if f.ledger.Count() != 0 {
		t.Error("no receipt may be recorded after a failed verification")
	}
}

func TestRunInstallStageErrors(t *testing.T) {
	tests := []struct {
		name     string
		artifact []byte
		setup    func(f *fixture) error
	}{
		{"corrupt archive", []byte("not a tarball"), func(f *fixture) error { return nil }},
		{
			"staging not writable",
			debugapkArtifact(t),
			func(f *fixture) error { return os.WriteFile(f.paths.CacheDir, []byte("x"), 0644) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newArtifactServer(t, map[string][]byte{"/AppLovin/debugapk/archive/v1.0.0.tar.gz": tt.artifact})
			f := newFixture(t)
			if err := os.MkdirAll(filepath.Dir(f.paths.CacheDir), 0755); err != nil {
				t.Fatal(err)
			}
			if err := tt.setup(f); err != nil {
				t.Fatal(err)
			}

			sum := verify.Digest(verify.SHA256, tt.artifact)
			_, err := f.interpreter(srv, Options{}).Run(context.Background(), debugapk(srv, sum))

			var ie *taperrors.InstallError
			if !errors.As(err, &ie) {
				t.Fatalf("Run() error = %v, want *InstallError", err)
			}
			if !errors.Is(err, taperrors.ErrInstall) {
				t.Errorf("Run() error = %v, want ErrInstall", err)
			}
			if _, err := os.Stat(filepath.Join(f.paths.BinDir, "debugapk")); !os.IsNotExist(err) {
				t.Error("nothing may be installed after a failed unpack")
			}
			if f.ledger.Count() != 0 {
				t.Error("no receipt may be recorded after a failed install")
			}
		})
	}
}

func TestRunWithoutChecksum(t *testing.T) {
	artifact := debugapkArtifact(t)
	srv := newArtifactServer(t, map[string][]byte{"/AppLovin/debugapk/archive/v1.0.0.tar.gz": artifact})

	t.Run("refused by default", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.interpreter(srv, Options{}).Run(context.Background(), debugapk(srv))
		if !errors.Is(err, taperrors.ErrNoChecksums) {
			t.Errorf("Run() error = %v, want ErrNoChecksums", err)
		}
	})

	t.Run("allowed", func(t *testing.T) {
		f := newFixture(t)
		if _, err := f.interpreter(srv, Options{AllowUnverified: true}).Run(context.Background(), debugapk(srv)); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if _, err := os.Stat(filepath.Join(f.paths.BinDir, "debugapk")); err != nil {
			t.Errorf("executable not installed: %v", err)
		}
	})
}

func TestRunTemplateErrorSkipsFetch(t *testing.T) {
	srv := newArtifactServer(t, nil)
	f := newFixture(t)

	d := debugapk(srv, strings.Repeat("a", 64))
	d.URL = srv.URL + "/#{arch}/debugapk.tar.gz"

	_, err := f.interpreter(srv, Options{}).Run(context.Background(), d)
	if !errors.Is(err, taperrors.ErrTemplate) {
		t.Errorf("Run() error = %v, want ErrTemplate", err)
	}
	if srv.hits.Load() != 0 {
		t.Errorf("server received %d requests, want 0", srv.hits.Load())
	}
}

func TestRunApplicationBundle(t *testing.T) {
	app := "SwiftFormat for Xcode.app"
	artifact := zipArchive(t, map[string]string{
		app + "/Contents/Info.plist":                  infoPlist,
		app + "/Contents/MacOS/SwiftFormat for Xcode": "mach-o",
	})
	srv := newArtifactServer(t, map[string][]byte{"/swiftformat-al-v0.1.0/SwiftFormat-for-Xcode.zip": artifact})
	f := newFixture(t)

	d := descriptor.Descriptor{
		Name:      "swiftformat-al",
		Kind:      descriptor.KindCask,
		Version:   "0.1.0",
		URL:       srv.URL + "/swiftformat-al-v#{version}/SwiftFormat-for-Xcode.zip",
		Checksums: []string{verify.Digest(verify.SHA256, artifact)},
		Actions:   []descriptor.Action{descriptor.InstallApplicationBundle(app)},
	}

	res, err := f.interpreter(srv, Options{}).Run(context.Background(), d)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.Installed) != 1 || res.Installed[0].BundleVersion != "0.1.0" {
		t.Errorf("Installed = %v", res.Installed)
	}
	got, err := os.ReadFile(filepath.Join(f.paths.AppDir, app, "Contents", "Info.plist"))
	if err != nil || string(got) != infoPlist {
		t.Errorf("bundle not installed intact: %v", err)
	}
	if r, _ := f.ledger.Get("swiftformat-al"); r.Kind != "cask" {
		t.Errorf("receipt kind = %q, want cask", r.Kind)
	}
}

func signingFixture(t *testing.T, data []byte) (string, []byte) {
	t.Helper()
	entity, err := openpgp.NewEntity("tap maintainer", "", "tap@example.com", nil)
	if err != nil {
		t.Fatal(err)
	}

	var key bytes.Buffer
	w, err := armor.Encode(&key, openpgp.PublicKeyType, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := entity.Serialize(w); err != nil {
		t.Fatal(err)
	}
	w.Close()

	var sig bytes.Buffer
	if err := openpgp.ArmoredDetachSign(&sig, entity, bytes.NewReader(data), nil); err != nil {
		t.Fatal(err)
	}
	return key.String(), sig.Bytes()
}

func TestRunSignedArtifact(t *testing.T) {
	artifact := debugapkArtifact(t)
	key, sig := signingFixture(t, artifact)

	tap := t.TempDir()
	if err := os.MkdirAll(filepath.Join(tap, "keys"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tap, "keys", "maintainer.asc"), []byte(key), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		sig     []byte
		wantErr error
	}{
		{"good signature", sig, nil},
		{"signature over other data", func() []byte { _, s := signingFixture(t, []byte("other")); return s }(), taperrors.ErrIntegrity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newArtifactServer(t, map[string][]byte{
				"/AppLovin/debugapk/archive/v1.0.0.tar.gz":     artifact,
				"/AppLovin/debugapk/archive/v1.0.0.tar.gz.asc": tt.sig,
			})
			f := newFixture(t)

			d := debugapk(srv, verify.Digest(verify.SHA256, artifact))
			d.File = filepath.Join(tap, "Formula", "debugapk.toml")
			d.Signature = d.URL + ".asc"
			d.SigningKey = "../keys/maintainer.asc"

			res, err := f.interpreter(srv, Options{}).Run(context.Background(), d)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Run() error = %v, want %v", err, tt.wantErr)
				}
				if _, err := os.Stat(filepath.Join(f.paths.BinDir, "debugapk")); !os.IsNotExist(err) {
					t.Error("nothing may be installed after a failed signature check")
				}
				return
			}
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if res.Receipt.Signer == "" {
				t.Error("receipt does not name the signer")
			}
		})
	}
}

func TestRunAll(t *testing.T) {
	artifact := debugapkArtifact(t)
	aldroid := tarGz(t, map[string]string{
		"aldroid-0.4.3/aldroid":             "a",
		"aldroid-0.4.3/aldroid-running-app": "b",
	})
	srv := newArtifactServer(t, map[string][]byte{
		"/AppLovin/debugapk/archive/v1.0.0.tar.gz": artifact,
		"/aldroid/v0.4.3.tar.gz":                   aldroid,
	})
	f := newFixture(t)

	ds := []descriptor.Descriptor{
		debugapk(srv, verify.Digest(verify.SHA256, artifact)),
		{
			Name:      "aldroid",
			Kind:      descriptor.KindFormula,
			Version:   "0.4.3",
			URL:       srv.URL + "/aldroid/v#{version}.tar.gz",
			Checksums: []string{verify.Digest(verify.SHA256, aldroid)},
			Actions: []descriptor.Action{
				descriptor.InstallExecutable("aldroid"),
				descriptor.InstallExecutable("aldroid-running-app"),
			},
		},
		{
			Name:      "uncrustify-al",
			Kind:      descriptor.KindFormula,
			Version:   "0.1.0",
			URL:       srv.URL + "/uncrustify-al/v#{version}.tar.gz",
			Checksums: []string{strings.Repeat("0", 64)},
			Actions:   []descriptor.Action{descriptor.InstallExecutable("uncrustify-al")},
		},
	}

	results, err := f.interpreter(srv, Options{Jobs: 2}).RunAll(context.Background(), ds)
	if len(results) != 2 {
		t.Errorf("RunAll() returned %d results, want 2", len(results))
	}
	if !errors.Is(err, taperrors.ErrNetwork) {
		t.Errorf("RunAll() error = %v, want ErrNetwork", err)
	}
	var ne *taperrors.NetworkError
	if errors.As(err, &ne) && ne.Status != http.StatusNotFound {
		t.Errorf("Status = %d, want 404", ne.Status)
	}

	for _, name := range []string{"debugapk", "aldroid", "aldroid-running-app"} {
		if _, err := os.Stat(filepath.Join(f.paths.BinDir, name)); err != nil {
			t.Errorf("%s not installed: %v", name, err)
		}
	}

	saved, err := receipt.Load(f.paths.ReceiptsPath())
	if err != nil {
		t.Fatalf("receipt.Load() error = %v", err)
	}
	if saved.Count() != 2 {
		t.Errorf("saved receipts = %d, want 2", saved.Count())
	}
}

func TestRunAllCancelled(t *testing.T) {
	srv := newArtifactServer(t, nil)
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := f.interpreter(srv, Options{}).RunAll(ctx, []descriptor.Descriptor{
		debugapk(srv, strings.Repeat("a", 64)),
	})
	if len(results) != 0 {
		t.Errorf("RunAll() returned %d results, want 0", len(results))
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("RunAll() error = %v, want context.Canceled", err)
	}
	if _, statErr := os.Stat(f.paths.ReceiptsPath()); !os.IsNotExist(statErr) {
		t.Error("receipts saved although nothing was installed")
	}
}

func TestKeepDownloads(t *testing.T) {
	artifact := debugapkArtifact(t)
	srv := newArtifactServer(t, map[string][]byte{"/AppLovin/debugapk/archive/v1.0.0.tar.gz": artifact})
	f := newFixture(t)

	d := debugapk(srv, verify.Digest(verify.SHA256, artifact))
	if _, err := f.interpreter(srv, Options{KeepDownloads: true}).Run(context.Background(), d); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	got, err := os.ReadFile(f.paths.DownloadPath("debugapk", "1.0.0", "v1.0.0.tar.gz"))
	if err != nil {
		t.Fatalf("download not kept: %v", err)
	}
	if !bytes.Equal(got, artifact) {
		t.Error("kept download differs from the fetched artifact")
	}
}

func TestArtifactName(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://github.com/AppLovin/debugapk/archive/v1.0.0.tar.gz", "v1.0.0.tar.gz"},
		{"https://example.com/dl/tool.zip?token=abc", "tool.zip"},
		{"https://example.com/dl/tool#frag", "tool"},
		{"s3://bucket/tools/uncrustify-al-v0.1.0.tar.zst", "uncrustify-al-v0.1.0.tar.zst"},
		{"https://example.com/", "example.com"},
		{"", "artifact"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := ArtifactName(tt.url); got != tt.want {
				t.Errorf("ArtifactName(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestSigningKey(t *testing.T) {
	tests := []struct {
		name string
		d    descriptor.Descriptor
		want string
	}{
		{"relative", descriptor.Descriptor{File: "/tap/Formula/x.toml", SigningKey: "../keys/k.asc"}, "/tap/keys/k.asc"},
		{"absolute", descriptor.Descriptor{File: "/tap/Formula/x.toml", SigningKey: "/etc/k.asc"}, "/etc/k.asc"},
		{"inline", descriptor.Descriptor{File: "/tap/Formula/x.toml", SigningKey: "-----BEGIN PGP PUBLIC KEY BLOCK-----"}, "-----BEGIN PGP PUBLIC KEY BLOCK-----"},
		{"in memory", descriptor.Descriptor{SigningKey: "k.asc"}, "k.asc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := signingKey(tt.d); got != filepath.FromSlash(tt.want) {
				t.Errorf("signingKey() = %q, want %q", got, tt.want)
			}
		})
	}
}
