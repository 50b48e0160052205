package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxErrorBody bounds how much of a failed response is kept for error messages.
const maxErrorBody = 4096

// RetryPolicy controls retry behaviour for HTTP requests.
type RetryPolicy interface {
	NextDelay(attempt int, resp *http.Response, err error) (time.Duration, bool)
}

type backoffPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	statuses    map[int]struct{}
}

// BackoffPolicy retries transport failures and throttling/server statuses with
// exponential backoff. Catalog searches do not retry unless a caller opts in.
func BackoffPolicy(maxAttempts int, baseDelay time.Duration) RetryPolicy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &backoffPolicy{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		statuses: map[int]struct{}{
			http.StatusTooManyRequests:     {},
			http.StatusInternalServerError: {},
			http.StatusBadGateway:          {},
			http.StatusServiceUnavailable:  {},
			http.StatusGatewayTimeout:      {},
		},
	}
}

// NoRetryPolicy disables retries.
type NoRetryPolicy struct{}

// NextDelay implements RetryPolicy.
func (NoRetryPolicy) NextDelay(int, *http.Response, error) (time.Duration, bool) {
	return 0, false
}

func (p *backoffPolicy) NextDelay(attempt int, resp *http.Response, err error) (time.Duration, bool) {
	if attempt >= p.maxAttempts {
		return 0, false
	}
	if err != nil {
		return backoff(p.baseDelay, attempt), true
	}
	if resp != nil {
		if _, ok := p.statuses[resp.StatusCode]; ok {
			return backoff(p.baseDelay, attempt), true
		}
	}
	return 0, false
}

func backoff(base time.Duration, attempt int) time.Duration {
	shift := attempt - 1
	if shift < 0 {
		shift = 0
	}
	return base * time.Duration(1<<uint(shift))
}

// Doer is satisfied by *http.Client and by anything that applies extra
// behaviour (authentication, user agent) before sending.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Do issues the HTTP request honouring the provided retry policy. A nil policy
// sends the request exactly once.
func Do(ctx context.Context, client Doer, req *http.Request, policy RetryPolicy) (*http.Response, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if client == nil {
		return nil, errors.New("http client is required")
	}
	if policy == nil {
		policy = NoRetryPolicy{}
	}

	attempt := 1
	for {
		attemptReq, err := cloneRequest(req, ctx)
		if err != nil {
			return nil, err
		}

		resp, err := client.Do(attemptReq)
		if err == nil && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}

		delay, retry := policy.NextDelay(attempt, resp, err)
		if !retry {
			if err != nil {
				return nil, err
			}
			return resp, nil
		}

		if resp != nil {
			resp.Body.Close()
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		attempt++
	}
}

func cloneRequest(req *http.Request, ctx context.Context) (*http.Request, error) {
	clone := req.Clone(ctx)
	if req.Body != nil && req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		clone.Body = body
	}
	return clone, nil
}

// IsSuccess reports whether the status code is in the 2xx range.
func IsSuccess(code int) bool {
	return code >= 200 && code < 300
}

// ReadErrorBody returns a bounded prefix of the response body for diagnostics.
func ReadErrorBody(resp *http.Response) string {
	if resp == nil || resp.Body == nil {
		return ""
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return string(data)
}

// DecodeJSON decodes a single JSON document from r into v and rejects
// trailing content after it.
func DecodeJSON(r io.Reader, v interface{}) error {
	dec := json.NewDecoder(r)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	if dec.More() {
		return errors.New("decode json: unexpected data after document")
	}
	return nil
}
