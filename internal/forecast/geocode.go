package forecast

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

const (
	nominatimDefaultURL = "https://nominatim.openstreetmap.org/search"
	defaultUserAgent    = "skycast/1.0"
)

// GeocodeClient checks locations against the Nominatim search API.
type GeocodeClient struct {
	baseURL   string
	userAgent string
	client    *http.Client
	limiter   *rate.Limiter
	breaker   *gobreaker.CircuitBreaker
}

// NewGeocodeClient constructs a GeocodeClient for the public Nominatim host.
// Nominatim allows at most one request per second, so calls are throttled.
func NewGeocodeClient(userAgent string) *GeocodeClient {
	return newGeocodeClient(nominatimDefaultURL, userAgent, rate.NewLimiter(rate.Limit(1), 1))
}

// NewGeocodeClientWithURL constructs an unthrottled GeocodeClient pointing at a custom base URL (for tests).
func NewGeocodeClientWithURL(baseURL, userAgent string) *GeocodeClient {
	return newGeocodeClient(baseURL, userAgent, rate.NewLimiter(rate.Inf, 1))
}

func newGeocodeClient(baseURL, userAgent string, limiter *rate.Limiter) *GeocodeClient {
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &GeocodeClient{
		baseURL:   baseURL,
		userAgent: userAgent,
		client:    newHTTPClient(),
		limiter:   limiter,
		breaker:   newBreaker("nominatim"),
	}
}

// queryEscape percent-encodes s for a query string, with spaces as %20.
func queryEscape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// BuildSearchURL returns the geocoding search URL for a location.
// Country is always sent; state and city only when non-empty.
func BuildSearchURL(baseURL, city, state, country string) string {
	var b strings.Builder
	b.WriteString(baseURL)
	b.WriteString("?format=json&country=")
	b.WriteString(queryEscape(country))
	if strings.TrimSpace(state) != "" {
		b.WriteString("&state=")
		b.WriteString(queryEscape(state))
	}
	if strings.TrimSpace(city) != "" {
		b.WriteString("&city=")
		b.WriteString(queryEscape(city))
	}
	return b.String()
}

type nominatimPlace struct {
	PlaceID json.RawMessage `json:"place_id"`
}

// HasResult reports whether a search response body holds at least one place.
// Bodies that are not a JSON array of places count as empty.
func HasResult(body []byte) bool {
	var places []nominatimPlace
	if err := json.Unmarshal(body, &places); err != nil {
		return false
	}
	for _, p := range places {
		if len(p.PlaceID) > 0 && string(p.PlaceID) != "null" {
			return true
		}
	}
	return false
}

// IsValidLocation reports whether the location resolves to at least one place.
// A lookup that cannot be completed returns an error wrapping
// ErrValidationUnavailable rather than false.
func (c *GeocodeClient) IsValidLocation(ctx context.Context, city, state, country string) (bool, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return false, fmt.Errorf("%w: waiting for rate limiter: %w", ErrValidationUnavailable, err)
	}

	header := http.Header{}
	header.Set("User-Agent", c.userAgent)
	header.Set("Accept", "application/json")

	res, err := doGet(ctx, c.client, c.breaker, BuildSearchURL(c.baseURL, city, state, country), header)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrValidationUnavailable, err)
	}
	if res.status < 200 || res.status >= 300 {
		return false, fmt.Errorf("%w: GET %s: %w", ErrValidationUnavailable, c.breaker.Name(), &StatusError{Code: res.status})
	}

	return HasResult(res.body), nil
}
