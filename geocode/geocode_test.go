package geocode

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type mapCache struct {
	mu sync.Mutex
	m  map[string]Location
}

func newMapCache() *mapCache { return &mapCache{m: map[string]Location{}} }

func (c *mapCache) Get(_ context.Context, key string) (Location, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	loc, ok := c.m[key]
	return loc, ok
}

func (c *mapCache) Set(_ context.Context, key string, loc Location, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = loc
}

func (c *mapCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.m)
}

func fakeOpenCage(t *testing.T, status int, body string) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestLookupComponentPrecedence(t *testing.T) {
	tests := []struct {
		name string
		body string
		want Location
	}{
		{
			name: "state and city district",
			body: `{"results":[{"components":{"state":"Lagos","county":"Ikeja","city_district":"Ikeja GRA"}}]}`,
			want: Location{State: "Lagos", LocalGovernmentArea: "Ikeja GRA"},
		},
		{
			name: "province and state district",
			body: `{"results":[{"components":{"province":"Kano Province","state_district":"Nassarawa","_type":"road","ISO_3166-1_alpha-2":"NG"}}]}`,
			want: Location{State: "Kano Province", LocalGovernmentArea: "Nassarawa"},
		},
		{
			name: "region and local administrative area",
			body: `{"results":[{"components":{"region":"South West","local_administrative_area":"Ibadan North","postcode":100001}}]}`,
			want: Location{State: "South West", LocalGovernmentArea: "Ibadan North"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := fakeOpenCage(t, http.StatusOK, tt.body)
			c := NewClient("test-key", srv.URL, newMapCache(), time.Hour)
			assert.Equal(t, tt.want, c.Lookup(context.Background(), 6.5, 3.3))
		})
	}
}

func TestLookupCachesRealPlacesOnly(t *testing.T) {
	srv, calls := fakeOpenCage(t, http.StatusOK, `{"results":[{"components":{"state":"Lagos","county":"Ikeja"}}]}`)
	cache := newMapCache()
	c := NewClient("test-key", srv.URL, cache, time.Hour)

	first := c.Lookup(context.Background(), 6.5244001, 3.3792)
	second := c.Lookup(context.Background(), 6.5244004, 3.3792)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))

	_, ok := cache.Get(context.Background(), "geocode:6.524400:3.379200")
	assert.True(t, ok)
}

func TestLookupSentinels(t *testing.T) {
	ctx := context.Background()

	cache := newMapCache()
	missing := NewClient("", "http://127.0.0.1:1", cache, time.Hour)
	assert.Equal(t, Location{APIKeyMissing, APIKeyMissing}, missing.Lookup(ctx, 1, 1))

	srv, calls := fakeOpenCage(t, http.StatusInternalServerError, `oops`)
	failing := NewClient("test-key", srv.URL, cache, time.Hour)
	loc := failing.Lookup(ctx, 1, 1)
	assert.Equal(t, Location{APIError, APIError}, loc)
	assert.True(t, loc.IsSentinel())
	failing.Lookup(ctx, 1, 1)
	assert.Equal(t, int32(2), atomic.LoadInt32(calls), "errors are not cached")

	garbled, _ := fakeOpenCage(t, http.StatusOK, `{"results":`)
	assert.Equal(t, Location{APIError, APIError}, NewClient("test-key", garbled.URL, cache, time.Hour).Lookup(ctx, 1, 1))

	empty, _ := fakeOpenCage(t, http.StatusOK, `{"results":[]}`)
	loc = NewClient("test-key", empty.URL, cache, time.Hour).Lookup(ctx, 1, 1)
	assert.True(t, loc.IsEmpty())
	assert.False(t, loc.IsSentinel())

	assert.Zero(t, cache.len())
}

func TestLookupCollapsesConcurrentMisses(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var calls int32
	arrived := make(chan struct{}, 1)
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		select {
		case arrived <- struct{}{}:
		default:
		}
		<-release
		w.Write([]byte(`{"results":[{"components":{"state":"Oyo","county":"Ibadan"}}]}`))
	}))
	defer srv.Close()

	c := NewClient("test-key", srv.URL, newMapCache(), time.Hour)
	defer c.http.CloseIdleConnections()

	var wg sync.WaitGroup
	results := make([]Location, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.Lookup(context.Background(), 7.3775, 3.947)
		}(i)
	}
	<-arrived
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, loc := range results {
		assert.Equal(t, Location{State: "Oyo", LocalGovernmentArea: "Ibadan"}, loc)
	}
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache(2, time.Hour)
	ctx := context.Background()
	c.Set(ctx, "a", Location{State: "A"}, 0)
	c.Set(ctx, "b", Location{State: "B"}, 0)
	c.Set(ctx, "c", Location{State: "C"}, 0)

	_, ok := c.Get(ctx, "a")
	assert.False(t, ok, "evicted")
	loc, ok := c.Get(ctx, "c")
	require.True(t, ok)
	assert.Equal(t, "C", loc.State)
}

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	ctx := context.Background()
	key := CacheKey(9.0765, 7.3986)

	c := NewRedisCache(client)
	_, ok := c.Get(ctx, key)
	assert.False(t, ok)

	c.Set(ctx, key, Location{State: "FCT", LocalGovernmentArea: "AMAC"}, time.Minute)
	loc, ok := c.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, "AMAC", loc.LocalGovernmentArea)
	assert.Equal(t, time.Minute, mr.TTL(key))

	mr.FastForward(2 * time.Minute)
	_, ok = c.Get(ctx, key)
	assert.False(t, ok, "expired")

	require.NoError(t, mr.Set(key, "not json"))
	_, ok = c.Get(ctx, key)
	assert.False(t, ok, "undecodable values are misses")
}

func TestRedisCacheDownIsAMiss(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	ctx := context.Background()
	c := NewRedisCache(client)
	c.Set(ctx, "geocode:1.000000:1.000000", Location{State: "X"}, time.Minute)
	_, ok := c.Get(ctx, "geocode:1.000000:1.000000")
	assert.False(t, ok)
}

func TestLookupOutlivesCallerContext(t *testing.T) {
	srv, calls := fakeOpenCage(t, http.StatusOK, `{"results":[{"components":{"state":"Lagos","county":"Ikeja"}}]}`)
	c := NewClient("test-key", srv.URL, newMapCache(), time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	loc := c.Lookup(ctx, 6.5244, 3.3792)
	assert.Equal(t, Location{State: "Lagos", LocalGovernmentArea: "Ikeja"}, loc)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestReverseHandler(t *testing.T) {
	srv, _ := fakeOpenCage(t, http.StatusOK, `{"results":[{"components":{"state":"Lagos","county":"Ikeja"}}]}`)
	h := ReverseHandler(NewClient("test-key", srv.URL, newMapCache(), time.Hour))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?lat=6.52443719&lon=3.3792", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Lagos", body["state"])
	assert.Equal(t, "Ikeja", body["local_government_area"])
	assert.InDelta(t, 6.524437, body["latitude"], 1e-9)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?lat=91&lon=x", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"lat"`)
	assert.Contains(t, rec.Body.String(), `"lon"`)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?lat=NaN&lon=Inf", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"lat"`)
	assert.Contains(t, rec.Body.String(), `"lon"`)
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "geocode:6.524400:-3.379200", CacheKey(6.52440049, -3.3792))
}
