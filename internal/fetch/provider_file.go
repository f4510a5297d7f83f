package fetch

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	taperrors "github.com/samhoang/tapctl/internal/errors"
)

// FileProvider reads file:// URLs, for local mirrors and fixtures
type FileProvider struct{}

func (p *FileProvider) Type() string {
	return "file"
}

func (p *FileProvider) CanHandle(rawURL string) bool {
	return strings.HasPrefix(strings.ToLower(rawURL), "file://")
}

func (p *FileProvider) Fetch(ctx context.Context, rawURL string, opts Options) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, taperrors.NewNetworkError(rawURL, 0, err)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, taperrors.NewNetworkError(rawURL, 0, err)
	}
	if u.Host != "" && u.Host != "localhost" {
		return nil, taperrors.NewNetworkError(rawURL, 0, fmt.Errorf("remote file host %q not supported", u.Host))
	}

	data, err := os.ReadFile(u.Path)
	if err != nil {
		return nil, taperrors.NewNetworkError(rawURL, 0, err)
	}
	return data, nil
}
