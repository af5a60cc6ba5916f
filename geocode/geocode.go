package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Sentinel values returned in both fields when no lookup could be made.
const (
	APIKeyMissing = "API Key Missing"
	APIError      = "API Error"
)

const requestTimeout = 5 * time.Second

var lookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "taja_geocode_lookups_total",
	Help: "Reverse geocoding lookups by outcome.",
}, []string{"result"})

func init() {
	prometheus.MustRegister(lookupsTotal)
}

type Location struct {
	State               string `json:"state"`
	LocalGovernmentArea string `json:"local_government_area"`
}

func sentinel(s string) Location {
	return Location{State: s, LocalGovernmentArea: s}
}

// IsSentinel reports whether l is a failure marker rather than a place.
func (l Location) IsSentinel() bool {
	return l == sentinel(APIKeyMissing) || l == sentinel(APIError)
}

func (l Location) IsEmpty() bool {
	return l.State == "" && l.LocalGovernmentArea == ""
}

// Geocoder resolves coordinates to administrative areas.
type Geocoder interface {
	Lookup(ctx context.Context, lat, lon float64) Location
}

// Client is an OpenCage reverse geocoder with a result cache. Concurrent
// misses for the same coordinates share one upstream request.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	cache   Cache
	ttl     time.Duration
	group   singleflight.Group
}

func NewClient(apiKey, baseURL string, cache Cache, ttl time.Duration) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		http:    &http.Client{Timeout: requestTimeout},
		cache:   cache,
		ttl:     ttl,
	}
}

// RoundCoordinate rounds to the 6 decimal places stored for shops.
func RoundCoordinate(f float64) float64 {
	return math.Round(f*1e6) / 1e6
}

func CacheKey(lat, lon float64) string {
	return fmt.Sprintf("geocode:%.6f:%.6f", RoundCoordinate(lat), RoundCoordinate(lon))
}

// Lookup never fails: a missing API key or an upstream failure yields the
// matching sentinel and no results yield an empty Location. Only real
// places are cached.
func (c *Client) Lookup(ctx context.Context, lat, lon float64) Location {
	lat, lon = RoundCoordinate(lat), RoundCoordinate(lon)
	key := CacheKey(lat, lon)

	if loc, ok := c.cache.Get(ctx, key); ok {
		lookupsTotal.WithLabelValues("hit").Inc()
		return loc
	}
	if c.apiKey == "" {
		zap.S().Error("OpenCage API key is not configured")
		lookupsTotal.WithLabelValues("missing_key").Inc()
		return sentinel(APIKeyMissing)
	}

	// The shared fetch outlives any single caller; the client timeout bounds it.
	shared := context.WithoutCancel(ctx)
	v, _, _ := c.group.Do(key, func() (interface{}, error) {
		loc := c.fetch(shared, lat, lon)
		if !loc.IsSentinel() && !loc.IsEmpty() {
			c.cache.Set(shared, key, loc, c.ttl)
			zap.S().Debugf("geocode cache set for %s", key)
		}
		return loc, nil
	})
	return v.(Location)
}

type openCageResponse struct {
	Results []struct {
		Components map[string]interface{} `json:"components"`
	} `json:"results"`
}

func (c *Client) fetch(ctx context.Context, lat, lon float64) Location {
	params := url.Values{}
	params.Set("q", fmt.Sprintf("%.6f,%.6f", lat, lon))
	params.Set("key", c.apiKey)
	params.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return c.failed(err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return c.failed(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.failed(fmt.Errorf("unexpected status %s", resp.Status))
	}

	var body openCageResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return c.failed(fmt.Errorf("decode response: %w", err))
	}
	if len(body.Results) == 0 {
		lookupsTotal.WithLabelValues("empty").Inc()
		return Location{}
	}

	comp := body.Results[0].Components
	lookupsTotal.WithLabelValues("miss").Inc()
	return Location{
		State:               firstComponent(comp, "state", "province", "region"),
		LocalGovernmentArea: firstComponent(comp, "city_district", "county", "state_district", "local_administrative_area"),
	}
}

func (c *Client) failed(err error) Location {
	zap.S().Errorf("OpenCage API error: %v", err)
	lookupsTotal.WithLabelValues("error").Inc()
	return sentinel(APIError)
}

func firstComponent(comp map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if s, ok := comp[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
