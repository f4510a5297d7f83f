package fetch

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	taperrors "github.com/samhoang/tapctl/internal/errors"
)

// S3Options configures the S3 client. Empty fields fall back to the
// standard AWS configuration chain.
type S3Options struct {
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// S3Provider fetches s3://bucket/key URLs from S3 or a compatible store
type S3Provider struct {
	opts S3Options

	once   sync.Once
	client *s3.Client
	err    error
}

// NewS3Provider creates a provider; the client is built on first use
func NewS3Provider(opts S3Options) *S3Provider {
	return &S3Provider{opts: opts}
}

type endpointResolver struct {
	URL string
}

func (r *endpointResolver) ResolveEndpoint(service, region string, options ...interface{}) (aws.Endpoint, error) {
	return aws.Endpoint{
		URL:               r.URL,
		HostnameImmutable: true,
	}, nil
}

func (p *S3Provider) Type() string {
	return "s3"
}

func (p *S3Provider) CanHandle(rawURL string) bool {
	return strings.HasPrefix(strings.ToLower(rawURL), "s3://")
}

// ParseS3URL splits s3://bucket/key
func ParseS3URL(rawURL string) (bucket, key string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", err
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("not an s3 URL: %s", rawURL)
	}
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3 URL needs a bucket and a key: %s", rawURL)
	}
	return bucket, key, nil
}

func (p *S3Provider) Fetch(ctx context.Context, rawURL string, opts Options) ([]byte, error) {
	bucket, key, err := ParseS3URL(rawURL)
	if err != nil {
		return nil, taperrors.NewNetworkError(rawURL, 0, err)
	}

	client, err := p.getClient(ctx)
	if err != nil {
		return nil, taperrors.NewNetworkError(rawURL, 0, err)
	}

	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, taperrors.NewNetworkError(rawURL, 0, err)
	}
	defer out.Body.Close()

	var r io.Reader = out.Body
	if opts.Progress != nil && out.ContentLength > 0 {
		r = io.TeeReader(out.Body, newProgressBar(opts.Progress, out.ContentLength, opts.Label))
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, taperrors.NewNetworkError(rawURL, 0, err)
	}
	return data, nil
}

func (p *S3Provider) getClient(ctx context.Context) (*s3.Client, error) {
	p.once.Do(func() {
		var loadOpts []func(*config.LoadOptions) error
		if p.opts.Region != "" {
			loadOpts = append(loadOpts, config.WithRegion(p.opts.Region))
		}
		if p.opts.AccessKey != "" {
			cred := aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(p.opts.AccessKey, p.opts.SecretKey, ""))
			loadOpts = append(loadOpts, config.WithCredentialsProvider(cred))
		}
		if p.opts.Endpoint != "" {
			loadOpts = append(loadOpts, config.WithEndpointResolverWithOptions(&endpointResolver{URL: p.opts.Endpoint}))
		}

		cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			p.err = fmt.Errorf("load aws config: %w", err)
			return
		}

		p.client = s3.NewFromConfig(cfg, func(o *s3.Options) {
			o.UsePathStyle = p.opts.UsePathStyle
		})
	})
	return p.client, p.err
}
