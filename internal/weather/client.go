// ABOUTME: Minimal client for the US National Weather Service API (api.weather.gov)
// ABOUTME: Caches raw responses per URL and requires a User-Agent on every request

// Package weather provides an NWS API client and the forecast and alert tools.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultBaseURL is the public NWS API.
const DefaultBaseURL = "https://api.weather.gov"

// DefaultUserAgent identifies this server to the NWS, which rejects anonymous clients.
const DefaultUserAgent = "tokengate-mcp-weather/1.0"

// DefaultCacheSize bounds the number of cached responses.
const DefaultCacheSize = 512

// maxBody caps upstream responses; alert feeds for large states run to a few MB.
const maxBody = 8 << 20

// ErrUpstream wraps any failure talking to the NWS API.
var ErrUpstream = errors.New("weather api request failed")

// Client is an HTTP client for the NWS API.
type Client struct {
	BaseURL   string
	UserAgent string
	HTTP      *http.Client

	// nil when caching is disabled
	cache *expirable.LRU[string, []byte]
}

// Options configures a Client. Zero values pick defaults.
type Options struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	CacheTTL  time.Duration
	CacheSize int
	HTTP      *http.Client
}

// New returns a client. If opts.HTTP is nil, a client with opts.Timeout
// (default 15s) is used. Responses are cached only when opts.CacheTTL is
// positive, in an LRU of opts.CacheSize entries (default DefaultCacheSize).
func New(opts Options) *Client {
	httpClient := opts.HTTP
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	c := &Client{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		UserAgent: userAgent,
		HTTP:      httpClient,
	}
	if opts.CacheTTL > 0 {
		size := opts.CacheSize
		if size <= 0 {
			size = DefaultCacheSize
		}
		c.cache = expirable.NewLRU[string, []byte](size, nil, opts.CacheTTL)
	}
	return c
}

// Period is one forecast period ("Tonight", "Tuesday", ...).
type Period struct {
	Name             string `json:"name"`
	Temperature      int    `json:"temperature"`
	TemperatureUnit  string `json:"temperatureUnit"`
	WindSpeed        string `json:"windSpeed"`
	WindDirection    string `json:"windDirection"`
	ShortForecast    string `json:"shortForecast"`
	DetailedForecast string `json:"detailedForecast"`
}

// Alert is the subset of an active alert's properties we report.
type Alert struct {
	Event       string `json:"event"`
	AreaDesc    string `json:"areaDesc"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
	Instruction string `json:"instruction"`
}

type pointsResponse struct {
	Properties struct {
		Forecast string `json:"forecast"`
	} `json:"properties"`
}

type forecastResponse struct {
	Properties struct {
		Periods []Period `json:"periods"`
	} `json:"properties"`
}

type alertsResponse struct {
	Features []struct {
		Properties Alert `json:"properties"`
	} `json:"features"`
}

// Forecast resolves the grid point for a coordinate and returns its forecast periods.
func (c *Client) Forecast(ctx context.Context, lat, lon float64) ([]Period, error) {
	pointsURL := fmt.Sprintf("%s/points/%s,%s", c.BaseURL, formatCoord(lat), formatCoord(lon))

	var points pointsResponse
	if err := c.getJSON(ctx, pointsURL, &points); err != nil {
		return nil, err
	}
	if points.Properties.Forecast == "" {
		return nil, fmt.Errorf("%w: grid point has no forecast url", ErrUpstream)
	}

	var forecast forecastResponse
	if err := c.getJSON(ctx, points.Properties.Forecast, &forecast); err != nil {
		return nil, err
	}
	return forecast.Properties.Periods, nil
}

// Alerts returns the active alerts for a two-letter state code.
func (c *Client) Alerts(ctx context.Context, state string) ([]Alert, error) {
	alertsURL := fmt.Sprintf("%s/alerts/active/area/%s", c.BaseURL, url.PathEscape(strings.ToUpper(state)))

	var resp alertsResponse
	if err := c.getJSON(ctx, alertsURL, &resp); err != nil {
		return nil, err
	}

	alerts := make([]Alert, 0, len(resp.Features))
	for _, f := range resp.Features {
		alerts = append(alerts, f.Properties)
	}
	return alerts, nil
}

// getJSON fetches reqURL, consulting the response cache first.
func (c *Client) getJSON(ctx context.Context, reqURL string, out any) error {
	var body []byte
	ok := false
	if c.cache != nil {
		body, ok = c.cache.Get(reqURL)
	}
	if !ok {
		var err error
		body, err = c.fetch(ctx, reqURL)
		if err != nil {
			return err
		}
		if c.cache != nil {
			c.cache.Add(reqURL, body)
		}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decoding %s: %v", ErrUpstream, reqURL, err)
	}
	return nil
}

func (c *Client) fetch(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("Accept", "application/geo+json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s returned status %d", ErrUpstream, reqURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrUpstream, err)
	}
	return body, nil
}

// formatCoord renders a coordinate with at most four decimals, the precision
// the points endpoint accepts without redirecting.
func formatCoord(v float64) string {
	return strconv.FormatFloat(math.Round(v*1e4)/1e4, 'f', -1, 64)
}
