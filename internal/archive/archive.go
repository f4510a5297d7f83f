// Package archive unpacks fetched artifacts into a staging directory.
package archive

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Format is an artifact container type
type Format string

const (
	FormatTarGz  Format = "tar.gz"
	FormatTarXz  Format = "tar.xz"
	FormatTarZst Format = "tar.zst"
	FormatTar    Format = "tar"
	FormatZip    Format = "zip"
	FormatRaw    Format = "raw" // a single uncompressed file
)

var suffixes = []struct {
	suffix string
	format Format
}{
	{".tar.gz", FormatTarGz},
	{".tgz", FormatTarGz},
	{".tar.xz", FormatTarXz},
	{".txz", FormatTarXz},
	{".tar.zst", FormatTarZst},
	{".tzst", FormatTarZst},
	{".tar", FormatTar},
	{".zip", FormatZip},
}

// Detect picks a format from the artifact name, falling back to the
// leading magic bytes.
func Detect(name string, data []byte) Format {
	lower := strings.ToLower(name)
	if i := strings.IndexAny(lower, "?#"); i >= 0 {
		lower = lower[:i]
	}
	for _, s := range suffixes {
		if strings.HasSuffix(lower, s.suffix) {
			return s.format
		}
	}

	switch {
	case bytes.HasPrefix(data, []byte{0x1f, 0x8b}):
		return FormatTarGz
	case bytes.HasPrefix(data, []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}):
		return FormatTarXz
	case bytes.HasPrefix(data, []byte{0x28, 0xb5, 0x2f, 0xfd}):
		return FormatTarZst
	case bytes.HasPrefix(data, []byte("PK\x03\x04")):
		return FormatZip
	case len(data) > 262 && string(data[257:262]) == "ustar":
		return FormatTar
	}
	return FormatRaw
}

// Options for Extract
type Options struct {
	// StripSingleDir enters the top-level directory when it is the only
	// entry of the archive.
	StripSingleDir bool
}

// Extract unpacks data into destDir and returns the directory install
// paths are relative to. name is the artifact file name and is used for
// format detection and as the file name of raw artifacts.
func Extract(data []byte, name, destDir string, opts Options) (string, error) {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", err
	}

	var err error
	switch Detect(name, data) {
	case FormatTarGz:
		var gzr *gzip.Reader
		if gzr, err = gzip.NewReader(bytes.NewReader(data)); err == nil {
			err = extractTar(gzr, destDir)
			gzr.Close()
		}
	case FormatTarXz:
		var xzr *xz.Reader
		if xzr, err = xz.NewReader(bytes.NewReader(data)); err == nil {
			err = extractTar(xzr, destDir)
		}
	case FormatTarZst:
		var zr *zstd.Decoder
		if zr, err = zstd.NewReader(bytes.NewReader(data)); err == nil {
			err = extractTar(zr, destDir)
			zr.Close()
		}
	case FormatTar:
		err = extractTar(bytes.NewReader(data), destDir)
	case FormatZip:
		err = extractZip(data, destDir)
	default:
		err = writeRaw(data, name, destDir)
	}
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", name, err)
	}

	if opts.StripSingleDir {
		return singleDir(destDir)
	}
	return destDir, nil
}

// singleDir returns the only child of dir if it is a directory, else dir
func singleDir(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	if len(entries) == 1 && entries[0].IsDir() {
		return filepath.Join(dir, entries[0].Name()), nil
	}
	return dir, nil
}

// safeJoin resolves an archive member name inside destDir
func safeJoin(destDir, name string) (string, error) {
	clean := path.Clean("/" + strings.ReplaceAll(name, `\`, "/"))
	if clean == "/" {
		return "", nil
	}
	target := filepath.Join(destDir, filepath.FromSlash(clean))
	if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("illegal path %q", name)
	}
	return target, nil
}

// checkLink rejects symlinks that would point outside root. The link is
// resolved from the on-disk location of its parent so links created by
// earlier entries are followed.
func checkLink(root, target, linkname string) error {
	if filepath.IsAbs(linkname) {
		return fmt.Errorf("absolute symlink %q", linkname)
	}
	parent, err := realPath(root, filepath.Dir(target))
	if err != nil {
		return err
	}
	if !inside(root, filepath.Join(parent, linkname)) {
		return fmt.Errorf("symlink %q escapes archive", linkname)
	}
	return nil
}

// makeLink creates the symlink and removes it again if it resolves
// outside root.
func makeLink(root, target, linkname string) error {
	if err := checkLink(root, target, linkname); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	if err := os.Symlink(linkname, target); err != nil {
		return err
	}
	// Dangling links are allowed; their target may be a later entry.
	if real, err := filepath.EvalSymlinks(target); err == nil && !inside(root, real) {
		os.Remove(target)
		return fmt.Errorf("symlink %q escapes archive", linkname)
	}
	return nil
}

// prepare requires target's parent to resolve under root and clears a
// symlink already at target so the entry replaces it instead of writing
// through it.
func prepare(root, target string) error {
	if _, err := realPath(root, filepath.Dir(target)); err != nil {
		return err
	}
	if fi, err := os.Lstat(target); err == nil && fi.Mode()&os.ModeSymlink != 0 {
		return os.Remove(target)
	}
	return nil
}

// realPath resolves the symlinks along p that exist on disk, keeping any
// missing tail as is, and requires the result to stay under root. root
// must already be resolved.
func realPath(root, p string) (string, error) {
	cur, rest := p, ""
	for {
		real, err := filepath.EvalSymlinks(cur)
		if err == nil {
			real = filepath.Join(real, rest)
			if !inside(root, real) {
				return "", fmt.Errorf("%s resolves outside archive", p)
			}
			return real, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", err
		}
		rest = filepath.Join(filepath.Base(cur), rest)
		cur = parent
	}
}

func inside(root, p string) bool {
	return p == root || strings.HasPrefix(p, root+string(os.PathSeparator))
}

func extractTar(r io.Reader, destDir string) error {
	root, err := filepath.EvalSymlinks(destDir)
	if err != nil {
		return err
	}
	tr := tar.NewReader(r)

	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		target, err := safeJoin(destDir, header.Name)
		if err != nil {
			return err
		}
		if target == "" {
			continue
		}
		if err := prepare(root, target); err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, dirMode(header.FileInfo().Mode())); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeFile(target, tr, header.FileInfo().Mode().Perm()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := makeLink(root, target, header.Linkname); err != nil {
				return err
			}
		}
	}
}

func extractZip(data []byte, destDir string) error {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return err
	}
	root, err := filepath.EvalSymlinks(destDir)
	if err != nil {
		return err
	}

	for _, f := range zr.File {
		target, err := safeJoin(destDir, f.Name)
		if err != nil {
			return err
		}
		if target == "" {
			continue
		}
		if err := prepare(root, target); err != nil {
			return err
		}

		mode := f.Mode()
		switch {
		case mode.IsDir():
			if err := os.MkdirAll(target, dirMode(mode)); err != nil {
				return err
			}
		case mode&os.ModeSymlink != 0:
			rc, err := f.Open()
			if err != nil {
				return err
			}
			link, err := io.ReadAll(rc)
			rc.Close()
			if err != nil {
				return err
			}
			if err := makeLink(root, target, string(link)); err != nil {
				return err
			}
		default:
			rc, err := f.Open()
			if err != nil {
				return err
			}
			err = writeFile(target, rc, mode.Perm())
			rc.Close()
			if err != nil {
				return err
			}
		}
	}

	return nil
}

func writeRaw(data []byte, name, destDir string) error {
	base := path.Base(strings.ReplaceAll(name, `\`, "/"))
	if i := strings.IndexAny(base, "?#"); i >= 0 {
		base = base[:i]
	}
	if base == "" || base == "." || base == "/" {
		return fmt.Errorf("cannot name raw artifact %q", name)
	}
	return writeFile(filepath.Join(destDir, base), bytes.NewReader(data), 0644)
}

func writeFile(target string, r io.Reader, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	if perm == 0 {
		perm = 0644
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func dirMode(mode os.FileMode) os.FileMode {
	perm := mode.Perm()
	if perm&0700 != 0700 {
		perm |= 0700
	}
	return perm
}
