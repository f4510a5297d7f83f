package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors. Every typed error below matches its kind via errors.Is.
var (
	ErrTemplate  = errors.New("template error")
	ErrNetwork   = errors.New("network error")
	ErrIntegrity = errors.New("integrity error")
	ErrInstall   = errors.New("install error")

	ErrPackageNotFound  = errors.New("package not found")
	ErrInvalidPackage   = errors.New("invalid package descriptor")
	ErrNoChecksums      = errors.New("no checksums declared")
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrBadSignature     = errors.New("signature verification failed")
	ErrSourceMissing    = errors.New("source path not found in artifact")
)

// TemplateError reports a URL template that cannot be resolved
type TemplateError struct {
	Package  string
	Template string
	Field    string // offending placeholder, if known
	Err      error
}

func (e *TemplateError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("package %s: resolve %q: undefined field %q", e.Package, e.Template, e.Field)
	}
	return fmt.Sprintf("package %s: resolve %q: %v", e.Package, e.Template, e.Err)
}

func (e *TemplateError) Unwrap() error { return e.Err }

func (e *TemplateError) Is(target error) bool { return target == ErrTemplate }

// NewTemplateError creates a new template error
func NewTemplateError(pkg, template, field string, err error) *TemplateError {
	return &TemplateError{Package: pkg, Template: template, Field: field, Err: err}
}

// NetworkError wraps any transport failure while fetching an artifact
type NetworkError struct {
	URL    string
	Status int // HTTP status, 0 when the request never completed
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

// NewNetworkError creates a new network error
func NewNetworkError(url string, status int, err error) *NetworkError {
	return &NetworkError{URL: url, Status: status, Err: err}
}

// IntegrityError reports an artifact that failed checksum or signature checks
type IntegrityError struct {
	Package  string
	Computed []string // digests computed over the artifact
	Declared []string
	Err      error
}

func (e *IntegrityError) Error() string {
	if len(e.Computed) > 0 {
		return fmt.Sprintf("package %s: %v: computed %v, declared %v", e.Package, e.Err, e.Computed, e.Declared)
	}
	return fmt.Sprintf("package %s: %v", e.Package, e.Err)
}

func (e *IntegrityError) Unwrap() error { return e.Err }

func (e *IntegrityError) Is(target error) bool { return target == ErrIntegrity }

// NewIntegrityError creates a new integrity error
func NewIntegrityError(pkg string, err error) *IntegrityError {
	return &IntegrityError{Package: pkg, Err: err}
}

// InstallError wraps errors with install action context
type InstallError struct {
	Package string
	Path    string // source path inside the artifact
	Dest    string // destination, empty if not reached
	Err     error
}

func (e *InstallError) Error() string {
	if e.Dest != "" {
		return fmt.Sprintf("package %s: install %s -> %s: %v", e.Package, e.Path, e.Dest, e.Err)
	}
	return fmt.Sprintf("package %s: install %s: %v", e.Package, e.Path, e.Err)
}

func (e *InstallError) Unwrap() error { return e.Err }

func (e *InstallError) Is(target error) bool { return target == ErrInstall }

// NewInstallError creates a new install error
func NewInstallError(pkg, path, dest string, err error) *InstallError {
	return &InstallError{Package: pkg, Path: path, Dest: dest, Err: err}
}

// DescriptorError reports a descriptor that fails validation or decoding
type DescriptorError struct {
	File    string
	Package string
	Issues  []string
}

func (e *DescriptorError) Error() string {
	who := e.Package
	if who == "" {
		who = e.File
	}
	if len(e.Issues) == 1 {
		return fmt.Sprintf("descriptor %s: %s", who, e.Issues[0])
	}
	return fmt.Sprintf("descriptor %s has %d issues: %v", who, len(e.Issues), e.Issues)
}

func (e *DescriptorError) Is(target error) bool { return target == ErrInvalidPackage }

// NewDescriptorError creates a new descriptor error
func NewDescriptorError(file, pkg string, issues []string) *DescriptorError {
	return &DescriptorError{File: file, Package: pkg, Issues: issues}
}
