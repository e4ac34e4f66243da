// Package geocode resolves one-line addresses to coordinates through a
// Nominatim-compatible search endpoint.
package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL   = "https://nominatim.openstreetmap.org"
	defaultUserAgent = "roster-cli/1.0 (roster enrichment pipeline)"
	defaultInterval  = time.Second
)

// Client geocodes one-line addresses.
type Client interface {
	Geocode(ctx context.Context, address string) (*Result, error)
}

// Result holds the geocoding output for an address. Matched false means
// the provider answered but found nothing; provider failures are errors.
type Result struct {
	Lat     float64
	Lng     float64
	Matched bool
}

// Option configures the geocoder.
type Option func(*geocoder)

// WithBaseURL points the client at a different Nominatim-compatible host.
func WithBaseURL(base string) Option {
	return func(g *geocoder) {
		g.baseURL = base
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *geocoder) {
		g.httpClient = hc
	}
}

// WithUserAgent overrides the User-Agent header. The provider's usage
// policy requires a descriptive one; requests without it get banned.
func WithUserAgent(ua string) Option {
	return func(g *geocoder) {
		g.userAgent = ua
	}
}

// WithInterval sets the minimum spacing between requests. The public
// endpoint allows one request per second.
func WithInterval(d time.Duration) Option {
	return func(g *geocoder) {
		if d > 0 {
			g.limiter = rate.NewLimiter(rate.Every(d), 1)
		}
	}
}

type geocoder struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a geocoding Client with the given options.
func NewClient(opts ...Option) Client {
	g := &geocoder{
		baseURL:    defaultBaseURL,
		userAgent:  defaultUserAgent,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(defaultInterval), 1),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// searchResult is one entry of the provider's JSON array response.
// Coordinates arrive as strings.
type searchResult struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// Geocode resolves one address. The limiter spaces calls before the
// request is made; failed lookups are spaced the same as successful ones.
func (g *geocoder) Geocode(ctx context.Context, address string) (*Result, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: rate limit")
	}

	params := url.Values{
		"q":      {address},
		"format": {"json"},
		"limit":  {"1"},
	}
	reqURL := g.baseURL + "/search?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: build request")
	}
	req.Header.Set("User-Agent", g.userAgent)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("geocode: provider returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: read body")
	}

	var results []searchResult
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, eris.Wrap(err, "geocode: parse response")
	}
	if len(results) == 0 {
		return &Result{Matched: false}, nil
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: parse lat")
	}
	lng, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: parse lon")
	}
	return &Result{Lat: lat, Lng: lng, Matched: true}, nil
}
