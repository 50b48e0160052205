package cmr

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	internalhttp "github.com/example/go-maap/internal/http"
)

const (
	defaultS3Region = "us-west-2"
	// credentialSkew refreshes temporary credentials slightly before they expire.
	credentialSkew = time.Minute
)

var credentialTimeLayouts = []string{
	"2006-01-02 15:04:05-07:00",
	time.RFC3339,
	time.RFC3339Nano,
}

// WithS3CredentialsURL sets the endpoint that issues temporary AWS credentials
// for s3:// granules.
func WithS3CredentialsURL(u string) Option {
	return func(c *Client) {
		c.s3.credentialsURL = u
	}
}

// WithS3Region overrides the region of the granule buckets.
func WithS3Region(region string) Option {
	return func(c *Client) {
		if region != "" {
			c.s3.region = region
		}
	}
}

// s3Downloader is the subset of manager.Downloader used for granule fetches.
type s3Downloader interface {
	Download(ctx context.Context, w io.WriterAt, input *s3.GetObjectInput, options ...func(*manager.Downloader)) (int64, error)
}

type s3Config struct {
	credentialsURL string
	region         string
	now            func() time.Time
	newDownloader  func(cfg aws.Config) s3Downloader

	mu      sync.Mutex
	creds   aws.Credentials
	fetched bool
}

func newS3Config() *s3Config {
	return &s3Config{
		region: defaultS3Region,
		now:    time.Now,
		newDownloader: func(cfg aws.Config) s3Downloader {
			return manager.NewDownloader(s3.NewFromConfig(cfg))
		},
	}
}

type temporaryCredentials struct {
	AccessKeyID     string `json:"accessKeyId"`
	SecretAccessKey string `json:"secretAccessKey"`
	SessionToken    string `json:"sessionToken"`
	Expiration      string `json:"expiration"`
}

// splitS3URL returns the bucket and key of an s3://bucket/key reference.
func splitS3URL(raw string) (string, string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("cmr: parse s3 url: %w", err)
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("cmr: not an s3 url: %q", raw)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", fmt.Errorf("cmr: s3 url %q has no object key", raw)
	}
	return u.Host, key, nil
}

// awsConfig returns an aws.Config carrying valid temporary credentials,
// fetching new ones when none are cached or the cached ones expired.
func (c *Client) awsConfig(ctx context.Context) (aws.Config, error) {
	cfg := c.s3
	if cfg.credentialsURL == "" {
		return aws.Config{}, ErrS3NotConfigured
	}

	cfg.mu.Lock()
	defer cfg.mu.Unlock()

	if !cfg.fetched || (cfg.creds.CanExpire && !cfg.now().Add(credentialSkew).Before(cfg.creds.Expires)) {
		creds, err := c.fetchS3Credentials(ctx)
		if err != nil {
			return aws.Config{}, err
		}
		cfg.creds = creds
		cfg.fetched = true
	}

	provider := credentials.NewStaticCredentialsProvider(cfg.creds.AccessKeyID, cfg.creds.SecretAccessKey, cfg.creds.SessionToken)
	return aws.Config{
		Region:      cfg.region,
		Credentials: aws.NewCredentialsCache(provider),
	}, nil
}

func (c *Client) fetchS3Credentials(ctx context.Context) (aws.Credentials, error) {
	endpoint := c.s3.credentialsURL
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return aws.Credentials{}, &TransportError{Endpoint: endpoint, Err: err}
	}
	resp, err := c.send(req)
	if err != nil {
		return aws.Credentials{}, &TransportError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	if !internalhttp.IsSuccess(resp.StatusCode) {
		return aws.Credentials{}, &ResponseError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: internalhttp.ReadErrorBody(resp)}
	}

	var payload temporaryCredentials
	if err := internalhttp.DecodeJSON(resp.Body, &payload); err != nil {
		return aws.Credentials{}, &ParseError{Endpoint: endpoint, Err: err}
	}
	if payload.AccessKeyID == "" || payload.SecretAccessKey == "" {
		return aws.Credentials{}, &ParseError{Endpoint: endpoint, Reason: "credentials missing access key"}
	}

	creds := aws.Credentials{
		AccessKeyID:     payload.AccessKeyID,
		SecretAccessKey: payload.SecretAccessKey,
		SessionToken:    payload.SessionToken,
		Source:          "cmr-s3credentials",
	}
	if payload.Expiration != "" {
		expires, err := parseCredentialTime(payload.Expiration)
		if err != nil {
			return aws.Credentials{}, &ParseError{Endpoint: endpoint, Reason: "credentials expiration", Err: err}
		}
		creds.CanExpire = true
		creds.Expires = expires
	}
	return creds, nil
}

func parseCredentialTime(value string) (time.Time, error) {
	var lastErr error
	for _, layout := range credentialTimeLayouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// downloadS3 fetches an s3:// granule into w.
func (c *Client) downloadS3(ctx context.Context, ref GranuleReference, w io.WriterAt) (int64, error) {
	bucket, key, err := splitS3URL(ref)
	if err != nil {
		return 0, err
	}
	cfg, err := c.awsConfig(ctx)
	if err != nil {
		return 0, err
	}
	downloader := c.s3.newDownloader(cfg)
	n, err := downloader.Download(ctx, w, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return n, fmt.Errorf("cmr: s3 download %s: %w", ref, err)
	}
	return n, nil
}
