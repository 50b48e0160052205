package cmr

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"time"

	internalhttp "github.com/example/go-maap/internal/http"
)

const (
	// DefaultBaseURL is the MAAP CMR host.
	DefaultBaseURL = "https://cmr.maap-project.org"
	// DefaultProvider scopes collection searches to MAAP-hosted datasets.
	DefaultProvider = "NASA_MAAP"
	// CollectionPageSize is the fixed page size of collection searches.
	CollectionPageSize = 100
)

// CollectionName is the short name identifying a dataset.
type CollectionName = string

// GranuleReference is the URL of a downloadable granule asset.
type GranuleReference = string

// Client provides access to the CMR search endpoints and granule downloads.
type Client struct {
	baseURL       string
	provider      string
	userAgent     string
	httpClient    *http.Client
	authenticator Authenticator
	retry         internalhttp.RetryPolicy
	s3            *s3Config
}

// Option mutates the client when constructing it.
type Option func(*Client)

// WithBaseURL overrides the default catalog host.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithProvider overrides the provider used to scope collection searches.
func WithProvider(provider string) Option {
	return func(c *Client) {
		if provider != "" {
			c.provider = provider
		}
	}
}

// WithHTTPClient configures a custom HTTP client instance.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc == nil {
			hc = newDefaultHTTPClient()
		}
		c.httpClient = hc
	}
}

// WithUserAgent sets a custom user-agent header for outbound requests.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithRetryPolicy enables retries. Without it every request is sent once.
func WithRetryPolicy(policy internalhttp.RetryPolicy) Option {
	return func(c *Client) {
		c.retry = policy
	}
}

// WithAuthToken configures the bearer token used for authenticated requests.
func WithAuthToken(token string) Option {
	return WithAuthenticator(BearerToken(token))
}

// WithAuthenticator sets a custom authenticator for outbound requests.
func WithAuthenticator(auth Authenticator) Option {
	return func(c *Client) {
		c.authenticator = auth
	}
}

// NewClient creates a Client with sensible defaults.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		provider:   DefaultProvider,
		httpClient: newDefaultHTTPClient(),
		retry:      internalhttp.NoRetryPolicy{},
		s3:         newS3Config(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = newDefaultHTTPClient()
	}
	return c
}

// BaseURL returns the catalog host the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Provider returns the provider used for collection searches.
func (c *Client) Provider() string {
	return c.provider
}

// Do applies authentication and the user agent before sending req. It lets
// the client serve as an internalhttp.Doer.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c == nil {
		return nil, ErrNilClient
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.authenticator != nil {
		if err := c.authenticator(req); err != nil {
			return nil, fmt.Errorf("cmr: authenticate request: %w", err)
		}
	}
	return c.httpClient.Do(req)
}

func (c *Client) send(req *http.Request) (*http.Response, error) {
	return internalhttp.Do(req.Context(), c, req, c.retry)
}

// Authenticator applies authentication information to a request.
type Authenticator = func(*http.Request) error

// BearerToken returns an authenticator that adds an Authorization header.
func BearerToken(token string) Authenticator {
	return func(req *http.Request) error {
		if token == "" {
			return nil
		}
		req.Header.Set("Authorization", "Bearer "+token)
		return nil
	}
}

// BasicAuth returns an authenticator that applies HTTP basic authentication.
func BasicAuth(username, password string) Authenticator {
	return func(req *http.Request) error {
		req.SetBasicAuth(username, password)
		return nil
	}
}

// HeaderAuth returns an authenticator that copies the provided headers.
func HeaderAuth(headers map[string]string) Authenticator {
	return func(req *http.Request) error {
		for key, value := range headers {
			if value == "" {
				continue
			}
			req.Header.Set(key, value)
		}
		return nil
	}
}

func newDefaultHTTPClient() *http.Client {
	return NewHTTPClient(30 * time.Second)
}

// NewHTTPClient returns an HTTP client with a cookie jar that keeps the
// Authorization header across redirects. A negative timeout means none.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout < 0 {
		timeout = 0
	}
	jar, _ := cookiejar.New(nil)
	httpClient := &http.Client{
		Timeout: timeout,
		Jar:     jar,
	}
	httpClient.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) == 0 {
			return nil
		}
		prev := via[len(via)-1]

		// Only re-apply auth header on redirect
		if authHeader := prev.Header.Get("Authorization"); authHeader != "" {
			req.Header.Set("Authorization", authHeader)
		}
		return nil
	}
	return httpClient
}
