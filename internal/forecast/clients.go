package forecast

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

const (
	httpTimeout  = 10 * time.Second
	maxBodyBytes = 4 << 20

	breakerTripAfter = 5
)

// newHTTPClient returns an http.Client with a 10-second timeout.
func newHTTPClient() *http.Client {
	return &http.Client{Timeout: httpTimeout}
}

// newBreaker opens on the fifth consecutive failed call and probes again
// after thirty seconds.
func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerTripAfter
		},
	})
}

type response struct {
	status int
	body   []byte
}

// doGet performs a single GET through the circuit breaker and returns the
// status and body. Transport failures, 5xx answers and oversized bodies count
// against the breaker; a 5xx is returned as a *StatusError and a body over
// maxBodyBytes as ErrResponseTooLarge. Other statuses are left to the caller.
func doGet(ctx context.Context, client *http.Client, cb *gobreaker.CircuitBreaker, rawURL string, header http.Header) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating %s request: %w", cb.Name(), err)
	}
	for k, v := range header {
		req.Header[k] = v
	}

	out, err := cb.Execute(func() (interface{}, error) {
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusInternalServerError {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
			return nil, &StatusError{Code: resp.StatusCode}
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
		if err != nil {
			return nil, fmt.Errorf("reading body: %w", err)
		}
		if len(body) > maxBodyBytes {
			return nil, fmt.Errorf("%w: over %d bytes", ErrResponseTooLarge, maxBodyBytes)
		}
		return &response{status: resp.StatusCode, body: body}, nil
	})
	if err != nil {
		// The request URL may carry an API key, so only the breaker name is reported.
		return nil, fmt.Errorf("GET %s: %w", cb.Name(), err)
	}

	res, ok := out.(*response)
	if !ok {
		return nil, fmt.Errorf("GET %s: unexpected result type %T", cb.Name(), out)
	}
	return res, nil
}
