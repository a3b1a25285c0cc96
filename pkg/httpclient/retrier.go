package httpclient

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/evplatform/eventplane/pkg/retry"
)

// Class is the status-code classification from spec §4.2's HTTP client
// requirements: client errors never retry, rate_limit and server/network
// errors do (server/network up to MaxRetries; rate_limit honors Retry-After).
type Class string

const (
	ClassSuccess    Class = "success"
	ClassClient     Class = "client"
	ClassRateLimit  Class = "rate_limit"
	ClassServer     Class = "server"
	ClassNetwork    Class = "network"
)

// Classify buckets an HTTP response status code, or a transport error when
// resp is nil, into one of the retry classes.
func Classify(resp *http.Response, err error) Class {
	if err != nil {
		return ClassNetwork
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode == http.StatusRequestTimeout:
		return ClassRateLimit
	case resp.StatusCode >= 500:
		return ClassServer
	case resp.StatusCode >= 400:
		return ClassClient
	default:
		return ClassSuccess
	}
}

// Retrier wraps an *http.Client with the retry policy shared by every IAF
// adapter's outbound calls: exponential backoff with jitter (pkg/retry),
// retrying only the rate_limit/server/network classes, honoring a
// Retry-After header on 429s, and tagging each attempt with an
// Idempotency-Key so a provider can dedupe retried side effects.
type Retrier struct {
	client *http.Client
	policy retry.Policy
	max    int
}

// NewRetrier builds a Retrier around client, retrying up to maxRetries
// times using policy for backoff timing.
func NewRetrier(client *http.Client, policy retry.Policy, maxRetries int) *Retrier {
	return &Retrier{client: client, policy: policy, max: maxRetries}
}

// Do executes req, retrying on rate_limit/server/network classes per the
// configured policy. idempotencyKey, when non-empty, is sent on every
// attempt so the provider can collapse retried writes. The request body, if
// any, is buffered up front so it can be replayed across attempts.
func (r *Retrier) Do(ctx context.Context, req *http.Request, idempotencyKey string) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		req.Body.Close()
	}

	operation := func() (*http.Response, error) {
		attemptReq := req.Clone(ctx)
		if body != nil {
			attemptReq.Body = io.NopCloser(bytes.NewReader(body))
			attemptReq.ContentLength = int64(len(body))
		}
		if idempotencyKey != "" {
			attemptReq.Header.Set("Idempotency-Key", idempotencyKey)
		}

		resp, err := r.client.Do(attemptReq)
		class := Classify(resp, err)

		switch class {
		case ClassSuccess, ClassClient:
			return resp, err
		case ClassRateLimit:
			if resp != nil {
				delay := retryAfterDelay(resp)
				if resp.Body != nil {
					resp.Body.Close()
				}
				return nil, &backoff.RetryAfterError{Duration: delay}
			}
			return nil, &backoff.RetryAfterError{Duration: 0}
		default: // ClassServer, ClassNetwork
			if resp != nil && resp.Body != nil {
				resp.Body.Close()
			}
			if err == nil {
				err = errStatus(resp)
			}
			return nil, err
		}
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(&jitterBackoff{policy: r.policy}),
		backoff.WithMaxTries(uint(r.max+1)),
	)
}

// retryAfterDelay parses the Retry-After header as seconds, falling back to
// 0 (meaning: use the policy's own computed delay) when absent/invalid.
func retryAfterDelay(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

type statusError struct {
	status int
}

func (e *statusError) Error() string {
	return "httpclient: non-retryable response status " + strconv.Itoa(e.status)
}

func errStatus(resp *http.Response) error {
	if resp == nil {
		return &statusError{status: 0}
	}
	return &statusError{status: resp.StatusCode}
}

// jitterBackoff adapts pkg/retry.Policy's asymmetric jitter formula to
// backoff/v5's BackOff interface so the retry loop's timing matches spec
// §4.4 exactly rather than v5's own symmetric RandomizationFactor jitter.
type jitterBackoff struct {
	policy  retry.Policy
	attempt int
}

func (j *jitterBackoff) NextBackOff() time.Duration {
	d := j.policy.Delay(j.attempt)
	j.attempt++
	return d
}

func (j *jitterBackoff) Reset() {
	j.attempt = 0
}
