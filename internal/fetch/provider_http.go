package fetch

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"

	taperrors "github.com/samhoang/tapctl/internal/errors"
)

// userAgent is sent with every HTTP request
const userAgent = "tapctl"

// HTTPProvider handles http:// and https:// downloads
type HTTPProvider struct {
	client *http.Client
}

// NewHTTPProvider returns a provider using client, or a TLS 1.2+ client
// when client is nil.
func NewHTTPProvider(client *http.Client) *HTTPProvider {
	if client == nil {
		client = NewSecureHTTPClient()
	}
	return &HTTPProvider{client: client}
}

// NewSecureHTTPClient returns an http.Client that refuses TLS below 1.2
func NewSecureHTTPClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{
		MinVersion: tls.VersionTLS12,
	}
	transport.ForceAttemptHTTP2 = true

	return &http.Client{Transport: transport}
}

func (p *HTTPProvider) Type() string {
	return "http"
}

func (p *HTTPProvider) CanHandle(url string) bool {
	lower := strings.ToLower(url)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

func (p *HTTPProvider) Fetch(ctx context.Context, url string, opts Options) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, taperrors.NewNetworkError(url, 0, err)
	}

	req.Header.Set("User-Agent", userAgent)
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, taperrors.NewNetworkError(url, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, taperrors.NewNetworkError(url, resp.StatusCode, fmt.Errorf("unexpected status %s", resp.Status))
	}

	var buf bytes.Buffer
	if resp.ContentLength > 0 {
		buf.Grow(int(resp.ContentLength))
	}

	var w io.Writer = &buf
	var bar *progressbar.ProgressBar
	if opts.Progress != nil && resp.ContentLength > 0 {
		bar = newProgressBar(opts.Progress, resp.ContentLength, opts.Label)
		w = io.MultiWriter(&buf, bar)
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		return nil, taperrors.NewNetworkError(url, 0, err)
	}
	if bar != nil {
		bar.Finish()
	}

	if resp.ContentLength > 0 && int64(buf.Len()) != resp.ContentLength {
		return nil, taperrors.NewNetworkError(url, 0,
			fmt.Errorf("short body: got %d of %d bytes", buf.Len(), resp.ContentLength))
	}

	return buf.Bytes(), nil
}

func newProgressBar(w io.Writer, size int64, label string) *progressbar.ProgressBar {
	if label == "" {
		label = "downloading"
	}
	return progressbar.NewOptions64(size,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(label),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowBytes(true),
		progressbar.OptionThrottle(100*time.Millisecond),
	)
}
