package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/pkg/logger"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// ErrBadPayload marks a directory answer that could not be decoded. It is not retried.
var ErrBadPayload = errors.New("malformed directory response")

// RetryPolicy controls how directory calls are retried.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Jitter    float64       // fraction of the delay, 0.2 means ±20%
	Timeout   time.Duration // per attempt
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:  3,
		BaseDelay: 200 * time.Millisecond,
		MaxDelay:  2 * time.Second,
		Jitter:    0.2,
		Timeout:   10 * time.Second,
	}
}

// Backoff returns the wait after the given failed attempt (0-based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	d := p.BaseDelay << attempt
	if d <= 0 || (p.MaxDelay > 0 && d > p.MaxDelay) {
		d = p.MaxDelay
	}
	if p.Jitter > 0 && d > 0 {
		delta := float64(d) * p.Jitter
		d += time.Duration(delta*2*rand.Float64() - delta)
	}
	if d < 0 {
		d = 0
	}
	return d
}

// StatusError is returned for a non-2xx directory answer.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("directory %s returned status %d", e.URL, e.StatusCode)
}

// Transient reports whether another attempt could succeed.
func (e *StatusError) Transient() bool {
	return transientStatus(e.StatusCode)
}

func transientStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// RetryClient performs authenticated GET requests against the directory and
// retries transient failures with exponential backoff.
type RetryClient struct {
	policy RetryPolicy
	http   *http.Client
}

func NewRetryClient(policy RetryPolicy, base *http.Client) *RetryClient {
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}
	inner := &http.Client{}
	if base != nil {
		*inner = *base
	}
	inner.Timeout = policy.Timeout

	rc := retryablehttp.NewClient()
	rc.HTTPClient = inner
	rc.RetryMax = policy.Attempts - 1
	rc.RetryWaitMin = policy.BaseDelay
	rc.RetryWaitMax = policy.MaxDelay
	rc.CheckRetry = checkRetry
	rc.Backoff = policy.backoff
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.Logger = retryLogger{}

	return &RetryClient{policy: policy, http: rc.StandardClient()}
}

func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return true, nil
	}
	return transientStatus(resp.StatusCode), nil
}

// backoff honours a Retry-After hint on 429 and 503 answers when it fits
// under MaxDelay, and falls back to the policy curve otherwise.
func (p RetryPolicy) backoff(lo, hi time.Duration, attempt int, resp *http.Response) time.Duration {
	if resp != nil && resp.Header.Get("Retry-After") != "" &&
		(resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable) {
		if d := retryablehttp.DefaultBackoff(lo, hi, attempt, resp); p.MaxDelay == 0 || d <= p.MaxDelay {
			return d
		}
	}
	return p.Backoff(attempt)
}

// GetJSON fetches url with credential as bearer token and decodes the body into dest.
func (c *RetryClient) GetJSON(ctx context.Context, url, credential string, dest interface{}) error {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: credential,
		TokenType:   "Bearer",
	}))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("after %d attempts: %w", c.policy.Attempts, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		se := &StatusError{StatusCode: resp.StatusCode, URL: url}
		if se.Transient() {
			return fmt.Errorf("after %d attempts: %w", c.policy.Attempts, se)
		}
		return se
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return nil
}

// retryLogger routes retryablehttp's leveled logging through zerolog.
type retryLogger struct{}

func (retryLogger) Error(msg string, kv ...interface{}) { withFields(logger.Warn(), kv).Msg(msg) }
func (retryLogger) Warn(msg string, kv ...interface{})  { withFields(logger.Warn(), kv).Msg(msg) }
func (retryLogger) Info(msg string, kv ...interface{})  { withFields(logger.Debug(), kv).Msg(msg) }
func (retryLogger) Debug(msg string, kv ...interface{}) { withFields(logger.Debug(), kv).Msg(msg) }

func withFields(e *zerolog.Event, kv []interface{}) *zerolog.Event {
	return e.Str("component", "directory").Fields(kv)
}
