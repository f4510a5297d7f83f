// Package install places paths from an unpacked artifact into the
// executables and applications directories.
package install

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/samhoang/tapctl/internal/config"
	"github.com/samhoang/tapctl/internal/descriptor"
	taperrors "github.com/samhoang/tapctl/internal/errors"
)

// Installer copies action sources from a staging root to their canonical
// destination directories.
type Installer struct {
	paths  *config.Paths
	logger *log.Logger
}

// Result describes one completed install action
type Result struct {
	Action        descriptor.Action
	Dest          string
	BundleVersion string // CFBundleShortVersionString, app bundles only
}

// NewInstaller creates a new installer
func NewInstaller(paths *config.Paths, logger *log.Logger) *Installer {
	return &Installer{
		paths:  paths,
		logger: logger,
	}
}

// Install performs actions in order. root is the unpacked artifact
// directory action paths are relative to. It stops at the first failure,
// returning the results of the actions that completed.
func (i *Installer) Install(pkg, root string, actions []descriptor.Action) ([]Result, error) {
	var results []Result

	for _, action := range actions {
		res, err := i.installOne(pkg, root, action)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}

	return results, nil
}

func (i *Installer) installOne(pkg, root string, action descriptor.Action) (Result, error) {
	srcPath := filepath.Join(root, filepath.FromSlash(action.Path))
	if !strings.HasPrefix(srcPath, filepath.Clean(root)+string(os.PathSeparator)) {
		return Result{}, taperrors.NewInstallError(pkg, action.Path, "",
			fmt.Errorf("path escapes the artifact root"))
	}

	info, err := os.Stat(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{}, taperrors.NewInstallError(pkg, action.Path, "", taperrors.ErrSourceMissing)
		}
		return Result{}, taperrors.NewInstallError(pkg, action.Path, "", err)
	}
	if err := checkResolved(root, srcPath); err != nil {
		return Result{}, taperrors.NewInstallError(pkg, action.Path, "", err)
	}

	destDir := i.paths.DestinationDir(action.Kind)
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return Result{}, taperrors.NewInstallError(pkg, action.Path, destDir, err)
	}
	dest := filepath.Join(destDir, filepath.Base(srcPath))

	res := Result{Action: action, Dest: dest}

	switch action.Kind {
	case descriptor.ActionExecutable:
		if !info.Mode().IsRegular() {
			return Result{}, taperrors.NewInstallError(pkg, action.Path, dest,
				fmt.Errorf("executable source is not a regular file"))
		}
		err = replaceWith(dest, func(tmp string) error {
			return copyFile(srcPath, tmp, 0755)
		})

	case descriptor.ActionApplicationBundle:
		if !info.IsDir() {
			return Result{}, taperrors.NewInstallError(pkg, action.Path, dest,
				fmt.Errorf("application bundle source is not a directory"))
		}
		err = replaceWith(dest, func(tmp string) error {
			return copyDir(srcPath, tmp)
		})
		if err == nil {
			res.BundleVersion = BundleVersion(dest)
		}

	default:
		return Result{}, taperrors.NewInstallError(pkg, action.Path, dest,
			fmt.Errorf("unknown action kind %q", action.Kind))
	}
	if err != nil {
		return Result{}, taperrors.NewInstallError(pkg, action.Path, dest, err)
	}

	i.logger.Debug("installed", "package", pkg, "kind", action.Kind, "path", action.Path, "dest", dest)
	return res, nil
}

// checkResolved requires srcPath to stay under root once symlinks are
// followed.
func checkResolved(root, srcPath string) error {
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return err
	}
	realSrc, err := filepath.EvalSymlinks(srcPath)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(realSrc, realRoot+string(os.PathSeparator)) {
		return fmt.Errorf("path resolves outside the artifact root")
	}
	return nil
}

// replaceWith builds the new content in a sibling temp path, then swaps it
// into dest so a failed copy never leaves a half-written destination.
func replaceWith(dest string, build func(tmp string) error) error {
	tmp, err := os.MkdirTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".tapctl-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmp)

	staged := filepath.Join(tmp, filepath.Base(dest))
	if err := build(staged); err != nil {
		return err
	}

	if err := os.RemoveAll(dest); err != nil {
		return err
	}
	return os.Rename(staged, dest)
}
