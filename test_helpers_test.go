package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cor0nius/rainodds/internal/database"
	"github.com/cor0nius/rainodds/internal/stats"
	"github.com/go-playground/validator/v10"
)

// --- Mocks ---

// mockGeocodingService is a mock for the GeocodingService interface.
type mockGeocodingService struct {
	GeocodeFunc func(ctx context.Context, city, country string) ([]Location, error)
}

func (m *mockGeocodingService) Geocode(ctx context.Context, city, country string) ([]Location, error) {
	if m.GeocodeFunc != nil {
		return m.GeocodeFunc(ctx, city, country)
	}
	return nil, errors.New("GeocodeFunc not implemented in mock")
}

// mockCache is a mock for the Cache interface. Without overrides it behaves
// like an empty cache that accepts writes.
type mockCache struct {
	getFunc   func(ctx context.Context, key string) ([]byte, error)
	setFunc   func(ctx context.Context, key string, value []byte, expiration time.Duration) error
	flushFunc func(ctx context.Context) error
	pingFunc  func(ctx context.Context) error

	mu       sync.Mutex
	setCalls int
}

func (m *mockCache) Get(ctx context.Context, key string) ([]byte, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx, key)
	}
	return nil, ErrCacheMiss
}

func (m *mockCache) Set(ctx context.Context, key string, value []byte, expiration time.Duration) error {
	m.mu.Lock()
	m.setCalls++
	m.mu.Unlock()
	if m.setFunc != nil {
		return m.setFunc(ctx, key, value, expiration)
	}
	return nil
}

func (m *mockCache) Flush(ctx context.Context) error {
	if m.flushFunc != nil {
		return m.flushFunc(ctx)
	}
	return nil
}

func (m *mockCache) Ping(ctx context.Context) error {
	if m.pingFunc != nil {
		return m.pingFunc(ctx)
	}
	return nil
}

// mapCache is an in-memory Cache used where tests need real round trips.
type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMapCache() *mapCache {
	return &mapCache{data: map[string][]byte{}}
}

func (c *mapCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return v, nil
}

func (c *mapCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *mapCache) Flush(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = map[string][]byte{}
	return nil
}

func (c *mapCache) Ping(_ context.Context) error { return nil }

// mockQuerier is a mock for the dbQuerier interface. It fails the test if
// a method without an override is called.
type mockQuerier struct {
	t *testing.T

	UpsertAPIResponseFunc         func(ctx context.Context, arg database.UpsertAPIResponseParams) (database.ApiResponse, error)
	GetFreshAPIResponseFunc       func(ctx context.Context, arg database.GetFreshAPIResponseParams) (database.ApiResponse, error)
	DeleteExpiredAPIResponsesFunc func(ctx context.Context, expiresAt time.Time) (int64, error)
	DeleteAllAPIResponsesFunc     func(ctx context.Context) error
}

func (m *mockQuerier) fail(method string) {
	m.t.Fatalf("unexpected call to mockQuerier method: %s", method)
}

func (m *mockQuerier) UpsertAPIResponse(ctx context.Context, arg database.UpsertAPIResponseParams) (database.ApiResponse, error) {
	if m.UpsertAPIResponseFunc != nil {
		return m.UpsertAPIResponseFunc(ctx, arg)
	}
	m.fail("UpsertAPIResponse")
	return database.ApiResponse{}, nil
}

func (m *mockQuerier) GetFreshAPIResponse(ctx context.Context, arg database.GetFreshAPIResponseParams) (database.ApiResponse, error) {
	if m.GetFreshAPIResponseFunc != nil {
		return m.GetFreshAPIResponseFunc(ctx, arg)
	}
	m.fail("GetFreshAPIResponse")
	return database.ApiResponse{}, nil
}

func (m *mockQuerier) DeleteExpiredAPIResponses(ctx context.Context, expiresAt time.Time) (int64, error) {
	if m.DeleteExpiredAPIResponsesFunc != nil {
		return m.DeleteExpiredAPIResponsesFunc(ctx, expiresAt)
	}
	m.fail("DeleteExpiredAPIResponses")
	return 0, nil
}

func (m *mockQuerier) DeleteAllAPIResponses(ctx context.Context) error {
	if m.DeleteAllAPIResponsesFunc != nil {
		return m.DeleteAllAPIResponsesFunc(ctx)
	}
	m.fail("DeleteAllAPIResponses")
	return nil
}

// mockNarrator records its input and returns a fixed narrative.
type mockNarrator struct {
	mu    sync.Mutex
	input *NarrativeInput
}

func (m *mockNarrator) Narrate(_ context.Context, in NarrativeInput) NarrativeJSON {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.input = &in
	return NarrativeJSON{Text: "bawk, bring an umbrella"}
}

// --- Test configuration ---

// testNow is the fixed "today" used by test configurations.
var testNow = time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// noSleep replaces the retry wait in tests.
func noSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

// newTestAPIConfig returns a configuration wired to in-memory fakes. The
// archive client points at archiveURL and never waits between retries.
func newTestAPIConfig(t *testing.T, archiveURL string) *apiConfig {
	t.Helper()
	logger := discardLogger()
	client := &http.Client{Transport: &metricsTransport{wrapped: http.DefaultTransport}}
	policy := RetryPolicy{MaxRetries: 2, Base: time.Millisecond, RateLimitStep: time.Millisecond}

	archive := newUpstreamClient("archive-test", client, policy, logger)
	archive.sleep = noSleep

	sc := stats.DefaultConfig()
	return &apiConfig{
		logger:         logger,
		port:           "8080",
		cacheBackend:   "redis",
		cache:          &mockCache{},
		cacheTTL:       24 * time.Hour,
		pruneInterval:  time.Hour,
		httpClient:     client,
		archiveBaseURL: archiveURL,
		archive:        archive,
		geocoder:       &mockGeocodingService{},
		fetch: FetchConfig{
			HourlyConcurrency: 3,
			MaxHourlyYears:    20,
			DailyTimeout:      5 * time.Second,
			HourlyTimeout:     5 * time.Second,
			GeocodeTimeout:    5 * time.Second,
		},
		statsConfig: sc,
		aggregator:  stats.NewAggregator(sc),
		recentYears: defaultRecentYears,
		narrator:    FallbackNarrator{},
		validate:    validator.New(),
		now:         func() time.Time { return testNow },
	}
}

// --- Fake archive ---

// archiveFixture controls the fake Open-Meteo archive server.
type archiveFixture struct {
	daily []byte
	// hourlyStatus overrides the status code of the hourly response per year.
	hourlyStatus map[int]int
	// rainyMorning lists years with 0.5 mm of rain from 09:00 to 11:00.
	rainyMorning map[int]bool

	mu           sync.Mutex
	dailyCalls   int
	hourlyCalls  map[int]int
	lastDailyURL string
}

func (f *archiveFixture) hourlyCallsFor(year int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hourlyCalls[year]
}

// newArchiveServer serves the daily fixture for "daily" requests and a
// generated day of hourly data for "hourly" requests.
func newArchiveServer(t *testing.T, f *archiveFixture) *httptest.Server {
	t.Helper()
	if f.hourlyCalls == nil {
		f.hourlyCalls = map[int]int{}
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("daily") != "" {
			f.mu.Lock()
			f.dailyCalls++
			f.lastDailyURL = r.URL.String()
			f.mu.Unlock()
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(f.daily)
			return
		}

		date, err := time.Parse("2006-01-02", q.Get("start_date"))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		year := date.Year()
		f.mu.Lock()
		f.hourlyCalls[year]++
		f.mu.Unlock()

		if code, ok := f.hourlyStatus[year]; ok {
			w.WriteHeader(code)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(hourlyDayJSON(date, f.rainyMorning[year]))
	}))
	t.Cleanup(server.Close)
	return server
}

// hourlyDayJSON builds an archive hourly response for one day. The
// temperature is 10 + hour/2 and the weather code is 3, or 61 during a rainy
// morning.
func hourlyDayJSON(date time.Time, rainyMorning bool) []byte {
	var sb strings.Builder
	sb.WriteString(`{"timezone":"Europe/Paris","hourly":{"time":[`)
	for h := 0; h < 24; h++ {
		if h > 0 {
			sb.WriteString(",")
		}
		fmt.Fprintf(&sb, "%q", fmt.Sprintf("%sT%02d:00", date.Format("2006-01-02"), h))
	}
	writeSeries := func(name string, value func(h int) string) {
		fmt.Fprintf(&sb, `],"%s":[`, name)
		for h := 0; h < 24; h++ {
			if h > 0 {
				sb.WriteString(",")
			}
			sb.WriteString(value(h))
		}
	}
	morning := func(h int) bool { return rainyMorning && h >= 9 && h < 12 }
	writeSeries("rain", func(h int) string {
		if morning(h) {
			return "0.5"
		}
		return "0.0"
	})
	writeSeries("precipitation", func(h int) string {
		if morning(h) {
			return "0.5"
		}
		return "0.0"
	})
	writeSeries("temperature_2m", func(h int) string { return fmt.Sprintf("%.1f", 10+float64(h)/2) })
	writeSeries("apparent_temperature", func(h int) string { return fmt.Sprintf("%.1f", 9+float64(h)/2) })
	writeSeries("dew_point_2m", func(h int) string { return "8.0" })
	writeSeries("weathercode", func(h int) string {
		if morning(h) {
			return "61"
		}
		return "3"
	})
	writeSeries("cloud_cover", func(h int) string { return "50" })
	sb.WriteString("]}}")
	return []byte(sb.String())
}

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile("testdata/" + name)
	if err != nil {
		t.Fatalf("failed to read test data %s: %v", name, err)
	}
	return data
}

func fp(v float64) *float64 { return &v }
