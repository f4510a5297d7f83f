// Package interp runs package descriptors through the resolve, fetch,
// verify and install pipeline.
package interp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/samhoang/tapctl/internal/archive"
	"github.com/samhoang/tapctl/internal/config"
	"github.com/samhoang/tapctl/internal/descriptor"
	taperrors "github.com/samhoang/tapctl/internal/errors"
	"github.com/samhoang/tapctl/internal/fetch"
	"github.com/samhoang/tapctl/internal/install"
	"github.com/samhoang/tapctl/internal/receipt"
	"github.com/samhoang/tapctl/internal/verify"
)

// Options tune an Interpreter
type Options struct {
	AllowUnverified bool
	FetchTimeout    time.Duration // zero means no deadline
	Jobs            int           // RunAll parallelism, values below 1 mean 1
	Progress        io.Writer     // download progress output, nil for none
	KeepDownloads   bool          // copy fetched artifacts into the cache
}

// Interpreter wires the pipeline stages together
type Interpreter struct {
	paths     *config.Paths
	fetchers  *fetch.Registry
	installer *install.Installer
	ledger    *receipt.Ledger
	logger    *log.Logger
	opts      Options
}

// Result is the outcome of one successful Run
type Result struct {
	Descriptor descriptor.Descriptor
	URL        string
	Installed  []install.Result
	Receipt    receipt.Receipt
}

// New creates an interpreter. ledger may be nil, in which case no receipts
// are recorded.
func New(paths *config.Paths, fetchers *fetch.Registry, ledger *receipt.Ledger, logger *log.Logger, opts Options) *Interpreter {
	return &Interpreter{
		paths:     paths,
		fetchers:  fetchers,
		installer: install.NewInstaller(paths, logger),
		ledger:    ledger,
		logger:    logger,
		opts:      opts,
	}
}

// Resolve returns the concrete artifact URL for d
func (in *Interpreter) Resolve(d descriptor.Descriptor) (string, error) {
	return descriptor.Resolve(d)
}

// Fetch downloads url, bounded by the configured fetch timeout
func (in *Interpreter) Fetch(ctx context.Context, url, label string) ([]byte, error) {
	if in.opts.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, in.opts.FetchTimeout)
		defer cancel()
	}

	in.logger.Debug("fetching", "url", url)
	return in.fetchers.Fetch(ctx, url, fetch.Options{
		Progress: in.opts.Progress,
		Label:    label,
	})
}

// Verify checks data against d's checksums and, when declared, its
// detached signature. It returns the signer's key ID for signed packages.
func (in *Interpreter) Verify(ctx context.Context, d descriptor.Descriptor, data []byte) (string, error) {
	if !d.HasChecksums() && in.opts.AllowUnverified {
		in.logger.Warn("no checksum declared, installing unverified", "package", d.Name)
	}
	if err := verify.Verify(d.Name, data, d.Checksums, verify.Options{AllowUnverified: in.opts.AllowUnverified}); err != nil {
		return "", err
	}

	if !d.HasSignature() {
		return "", nil
	}

	sigURL, err := descriptor.ResolveSignature(d)
	if err != nil {
		return "", err
	}
	sig, err := in.Fetch(ctx, sigURL, "")
	if err != nil {
		return "", err
	}
	keyID, err := verify.VerifySignature(d.Name, data, sig, signingKey(d))
	if err != nil {
		return "", err
	}
	in.logger.Debug("signature verified", "package", d.Name, "key", keyID)
	return keyID, nil
}

// Install unpacks data into a fresh staging directory and performs d's
// install actions from it. name is the artifact file name, used to pick
// the archive format.
func (in *Interpreter) Install(d descriptor.Descriptor, data []byte, name string) ([]install.Result, error) {
	if err := os.MkdirAll(in.paths.StagingDir(), 0755); err != nil {
		return nil, taperrors.NewInstallError(d.Name, "", in.paths.StagingDir(), err)
	}
	staging, err := os.MkdirTemp(in.paths.StagingDir(), d.Name+"-")
	if err != nil {
		return nil, taperrors.NewInstallError(d.Name, "", in.paths.StagingDir(), err)
	}
	defer os.RemoveAll(staging)

	root, err := archive.Extract(data, name, staging, archive.Options{
		StripSingleDir: d.Kind != descriptor.KindCask,
	})
	if err != nil {
		return nil, taperrors.NewInstallError(d.Name, name, staging, fmt.Errorf("unpack: %w", err))
	}

	return in.installer.Install(d.Name, root, d.Actions)
}

// Run performs the whole pipeline for one descriptor
func (in *Interpreter) Run(ctx context.Context, d descriptor.Descriptor) (*Result, error) {
	url, err := in.Resolve(d)
	if err != nil {
		return nil, err
	}

	data, err := in.Fetch(ctx, url, d.ID())
	if err != nil {
		return nil, err
	}

	signer, err := in.Verify(ctx, d, data)
	if err != nil {
		return nil, err
	}

	name := ArtifactName(url)
	if in.opts.KeepDownloads {
		if err := in.keep(d, name, data); err != nil {
			in.logger.Warn("could not cache download", "package", d.Name, "err", err)
		}
	}

	installed, err := in.Install(d, data, name)
	if err != nil {
		return nil, err
	}

	res := &Result{Descriptor: d, URL: url, Installed: installed}
	if in.ledger != nil {
		res.Receipt = in.ledger.Record(newReceipt(d, url, data, signer, installed))
	}

	in.logger.Info("installed", "package", d.Name, "version", d.Version)
	return res, nil
}

// RunAll runs independent pipelines with at most Jobs in flight. Every
// descriptor is attempted; failures are returned joined. The ledger is
// saved once at the end if anything was installed.
func (in *Interpreter) RunAll(ctx context.Context, ds []descriptor.Descriptor) ([]*Result, error) {
	jobs := in.opts.Jobs
	if jobs < 1 {
		jobs = 1
	}

	results := make([]*Result, len(ds))
	errs := make([]error, len(ds))

	var g errgroup.Group
	g.SetLimit(jobs)
	for i, d := range ds {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = fmt.Errorf("%s: %w", d.Name, err)
				return nil
			}
			res, err := in.Run(ctx, d)
			if err != nil {
				errs[i] = err
				return nil
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	var done []*Result
	for _, r := range results {
		if r != nil {
			done = append(done, r)
		}
	}

	if in.ledger != nil && len(done) > 0 {
		if err := in.ledger.Save(); err != nil {
			errs = append(errs, fmt.Errorf("save receipts: %w", err))
		}
	}

	return done, errors.Join(errs...)
}

// signingKey returns d's key, resolving a relative key path against the
// descriptor file's directory.
func signingKey(d descriptor.Descriptor) string {
	key := d.SigningKey
	if strings.Contains(key, "-----BEGIN PGP") || filepath.IsAbs(key) || d.File == "" {
		return key
	}
	return filepath.Join(filepath.Dir(d.File), key)
}

func (in *Interpreter) keep(d descriptor.Descriptor, name string, data []byte) error {
	dest := in.paths.DownloadPath(d.Name, d.Version, name)
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	return os.WriteFile(dest, data, 0644)
}

// ArtifactName returns the last path segment of url, without query or
// fragment.
func ArtifactName(rawURL string) string {
	u := rawURL
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	name := path.Base(u)
	if name == "." || name == "/" || name == "" {
		return "artifact"
	}
	return name
}

func newReceipt(d descriptor.Descriptor, url string, data []byte, signer string, installed []install.Result) receipt.Receipt {
	r := receipt.Receipt{
		Name:    d.Name,
		Version: d.Version,
		Kind:    string(d.Kind),
		URL:     url,
		Digest:  verify.Checksum{Algorithm: verify.SHA256, Hex: verify.Digest(verify.SHA256, data)}.String(),
		Signer:  signer,
	}
	for _, res := range installed {
		r.Files = append(r.Files, receipt.File{
			Kind:          string(res.Action.Kind),
			Source:        res.Action.Path,
			Dest:          res.Dest,
			BundleVersion: res.BundleVersion,
		})
	}
	return r
}
