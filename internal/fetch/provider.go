// Package fetch retrieves artifacts named by resolved descriptor URLs.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"

	taperrors "github.com/samhoang/tapctl/internal/errors"
)

// Provider retrieves an artifact for one family of URLs
type Provider interface {
	// Type returns the provider identifier (e.g., "http", "file", "s3")
	Type() string

	// CanHandle returns true if this provider can fetch the given URL
	CanHandle(url string) bool

	// Fetch returns the artifact bytes. Any transport failure is an
	// *errors.NetworkError. No retries are attempted.
	Fetch(ctx context.Context, url string, opts Options) ([]byte, error)
}

// Options for Provider.Fetch
type Options struct {
	Headers  map[string]string // for HTTP
	Progress io.Writer         // progress bar output, nil for none
	Label    string            // progress bar description
}

// Registry maps URLs to providers
type Registry struct {
	providers map[string]Provider
}

// NewRegistry creates a registry holding the given providers
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider)}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register adds a provider, replacing any with the same type
func (r *Registry) Register(p Provider) {
	r.providers[p.Type()] = p
}

// Get returns a provider by type
func (r *Registry) Get(providerType string) Provider {
	return r.providers[providerType]
}

// Detect auto-selects a provider for the URL
func (r *Registry) Detect(url string) Provider {
	for _, t := range r.Types() {
		if p := r.providers[t]; p.CanHandle(url) {
			return p
		}
	}
	return nil
}

// Types returns registered provider types in sorted order
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.providers))
	for t := range r.providers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Fetch retrieves url with whichever provider handles it
func (r *Registry) Fetch(ctx context.Context, url string, opts Options) ([]byte, error) {
	p := r.Detect(url)
	if p == nil {
		return nil, taperrors.NewNetworkError(url, 0, fmt.Errorf("no provider for URL"))
	}
	return p.Fetch(ctx, url, opts)
}

// NewDefaultRegistry returns a registry with the http, file and s3 providers
func NewDefaultRegistry(client *http.Client, s3Opts S3Options) *Registry {
	return NewRegistry(
		NewHTTPProvider(client),
		&FileProvider{},
		NewS3Provider(s3Opts),
	)
}
