package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var reims = Location{Name: "Reims", Country: "France", CountryCode: "FR", Latitude: 49.25, Longitude: 4.03, Timezone: "Europe/Paris"}

func geocodeTo(loc Location) *mockGeocodingService {
	return &mockGeocodingService{GeocodeFunc: func(ctx context.Context, city, country string) ([]Location, error) {
		return []Location{loc}, nil
	}}
}

func newProbabilityTestConfig(t *testing.T, fixture *archiveFixture) *apiConfig {
	t.Helper()
	if fixture.daily == nil {
		fixture.daily = readFixture(t, "archive_daily.json")
	}
	server := newArchiveServer(t, fixture)
	cfg := newTestAPIConfig(t, server.URL)
	cfg.geocoder = geocodeTo(reims)
	return cfg
}

func getJSON(t *testing.T, handler http.HandlerFunc, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rr := httptest.NewRecorder()
	handler(rr, req)
	return rr
}

func TestHandlerProbability(t *testing.T) {
	fixture := &archiveFixture{rainyMorning: map[int]bool{2024: true}}
	cfg := newProbabilityTestConfig(t, fixture)
	narrator := &mockNarrator{}
	cfg.narrator = narrator

	rr := getJSON(t, cfg.handlerProbability, http.MethodGet, "/api/probability?city=Reims&country=FR&date=2025-06-15&session=morning")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var resp ProbabilityResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))

	assert.Equal(t, "Reims", resp.Location.Name)
	assert.Equal(t, "2025-06-15", resp.Date)
	assert.Equal(t, 0.2, resp.ThresholdMM)

	require.NotNil(t, resp.Daily.Probability)
	assert.InDelta(t, 0.6, *resp.Daily.Probability, 1e-9)
	assert.Equal(t, []int{2020, 2021, 2022, 2023, 2024}, resp.Daily.Years)
	assert.Equal(t, 5, resp.Daily.TotalYears)
	assert.Equal(t, 3, resp.Daily.RainyYears)
	assert.Equal(t, "60%", resp.DailyPercentage)

	assert.InDelta(t, 20.8, *resp.DailyTemperature.High.P10, 1e-9)
	assert.InDelta(t, 27.2, *resp.DailyTemperature.High.P90, 1e-9)
	assert.InDelta(t, 10.4, *resp.DailyTemperature.Low.P10, 1e-9)
	assert.InDelta(t, 13.6, *resp.DailyTemperature.Low.P90, 1e-9)

	require.NotNil(t, resp.Hourly[9])
	assert.InDelta(t, 0.2, *resp.Hourly[9], 1e-9)
	require.NotNil(t, resp.Hourly[0])
	assert.Equal(t, 0.0, *resp.Hourly[0])

	assert.InDelta(t, 0.2, *resp.Windows["morning"].Probability, 1e-9)
	assert.Equal(t, 0.0, *resp.Windows["noon"].Probability)
	assert.Equal(t, "Morning", resp.Windows["morning"].Label)
	assert.Equal(t, "09:00–12:00", resp.Windows["morning"].TimeRange)

	morningTemps := resp.SessionTemperature["morning"]
	assert.InDelta(t, 15.5, *morningTemps.High.P90, 1e-9)
	assert.InDelta(t, 14.5, *morningTemps.Low.P10, 1e-9)

	require.Len(t, resp.History, 5)
	assert.Equal(t, 2020, resp.History[0].Year)
	assert.Equal(t, 0, resp.History[0].WeatherCode)
	assert.Equal(t, 20, resp.History[0].High)
	assert.Equal(t, 2024, resp.History[4].Year)
	assert.Equal(t, 65, resp.History[4].WeatherCode)
	assert.NotEmpty(t, resp.History[4].Emoji)
	assert.NotEmpty(t, resp.History[4].Condition)

	require.NotNil(t, resp.Session)
	assert.Equal(t, "morning", resp.Session.Key)
	assert.Equal(t, "09:00–12:00", resp.Session.TimeRange)
	assert.Equal(t, "20%", resp.Session.Percentage)
	require.Len(t, resp.Session.History, 5)
	last := resp.Session.History[4]
	assert.Equal(t, 2024, last.Year)
	assert.Equal(t, 61, last.WeatherCode)
	assert.Equal(t, 16, last.High)
	assert.Equal(t, 15, last.Low)
	assert.Equal(t, 3, resp.Session.History[0].WeatherCode)

	assert.Equal(t, HourlyCoverageJSON{Requested: 5, Succeeded: 5}, resp.HourlyYears)

	assert.Equal(t, "bawk, bring an umbrella", resp.Narrative.Text)
	require.NotNil(t, narrator.input)
	assert.Equal(t, "Reims, France", narrator.input.Location)
	assert.Equal(t, "Morning", narrator.input.Session)
	assert.InDelta(t, 0.2, *narrator.input.RainProbability, 1e-9)
	assert.InDelta(t, 14.5, *narrator.input.TempLow, 1e-9)
	assert.InDelta(t, 15.5, *narrator.input.TempHigh, 1e-9)
}

func TestHandlerProbability_PartialHourlyFailure(t *testing.T) {
	fixture := &archiveFixture{
		rainyMorning: map[int]bool{2024: true},
		hourlyStatus: map[int]int{2020: http.StatusInternalServerError},
	}
	cfg := newProbabilityTestConfig(t, fixture)

	rr := getJSON(t, cfg.handlerProbability, http.MethodGet, "/api/probability?city=Reims&date=2025-06-15")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp ProbabilityResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))

	assert.Equal(t, HourlyCoverageJSON{Requested: 5, Succeeded: 4}, resp.HourlyYears)
	assert.InDelta(t, 0.25, *resp.Windows["morning"].Probability, 1e-9)
	assert.Nil(t, resp.Session)
	assert.True(t, resp.Narrative.Fallback)
}

func TestHandlerProbability_AllHourlyYearsMissing(t *testing.T) {
	fixture := &archiveFixture{hourlyStatus: map[int]int{
		2020: http.StatusInternalServerError,
		2021: http.StatusInternalServerError,
		2022: http.StatusBadRequest,
		2023: http.StatusBadRequest,
		2024: http.StatusBadRequest,
	}}
	cfg := newProbabilityTestConfig(t, fixture)

	rr := getJSON(t, cfg.handlerProbability, http.MethodGet, "/api/probability?city=Reims&date=2025-06-15&session=evening")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var raw map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &raw))
	windows := raw["windows"].(map[string]any)
	for key, w := range windows {
		assert.Nil(t, w.(map[string]any)["probability"], "window %s must be null, not zero", key)
	}
	hourly := raw["hourly"].([]any)
	require.Len(t, hourly, 24)
	for _, h := range hourly {
		assert.Nil(t, h)
	}
	session := raw["session"].(map[string]any)
	assert.Equal(t, "N/A", session["percentage"])

	daily := raw["daily"].(map[string]any)
	assert.InDelta(t, 0.6, daily["probability"].(float64), 1e-9, "daily statistics do not depend on hourly data")
}

func TestHandlerProbability_Errors(t *testing.T) {
	testCases := []struct {
		name       string
		method     string
		target     string
		geocoder   *mockGeocodingService
		daily      []byte
		wantStatus int
		wantError  string
	}{
		{
			name:       "Method not allowed",
			method:     http.MethodPost,
			target:     "/api/probability?city=Reims&date=2025-06-15",
			wantStatus: http.StatusMethodNotAllowed,
		},
		{
			name:       "Missing city",
			method:     http.MethodGet,
			target:     "/api/probability?date=2025-06-15",
			wantStatus: http.StatusBadRequest,
			wantError:  "City",
		},
		{
			name:       "Missing date",
			method:     http.MethodGet,
			target:     "/api/probability?city=Reims",
			wantStatus: http.StatusBadRequest,
			wantError:  "Date",
		},
		{
			name:       "Malformed date",
			method:     http.MethodGet,
			target:     "/api/probability?city=Reims&date=15/06/2025",
			wantStatus: http.StatusBadRequest,
			wantError:  "expected YYYY-MM-DD",
		},
		{
			name:       "Impossible date",
			method:     http.MethodGet,
			target:     "/api/probability?city=Reims&date=2025-13-01",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Bad country code",
			method:     http.MethodGet,
			target:     "/api/probability?city=Reims&country=FRA&date=2025-06-15",
			wantStatus: http.StatusBadRequest,
			wantError:  "Country",
		},
		{
			name:       "Unknown session",
			method:     http.MethodGet,
			target:     "/api/probability?city=Reims&date=2025-06-15&session=night",
			wantStatus: http.StatusBadRequest,
			wantError:  "unknown session",
		},
		{
			name:   "Location not found",
			method: http.MethodGet,
			target: "/api/probability?city=Atlantis&date=2025-06-15",
			geocoder: &mockGeocodingService{GeocodeFunc: func(ctx context.Context, city, country string) ([]Location, error) {
				return nil, ErrNoResultsFound
			}},
			wantStatus: http.StatusNotFound,
		},
		{
			name:   "Geocoding upstream failure",
			method: http.MethodGet,
			target: "/api/probability?city=Reims&date=2025-06-15",
			geocoder: &mockGeocodingService{GeocodeFunc: func(ctx context.Context, city, country string) ([]Location, error) {
				return nil, errors.New("geocoding request failed: circuit breaker open")
			}},
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "No historical data for the date",
			method:     http.MethodGet,
			target:     "/api/probability?city=Reims&date=2025-01-01",
			wantStatus: http.StatusUnprocessableEntity,
			wantError:  "no historical data available for this location and date",
		},
		{
			name:       "Archive returns no daily object",
			method:     http.MethodGet,
			target:     "/api/probability?city=Reims&date=2025-06-15",
			daily:      []byte(`{"timezone":"UTC"}`),
			wantStatus: http.StatusBadGateway,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := newProbabilityTestConfig(t, &archiveFixture{daily: tc.daily})
			if tc.geocoder != nil {
				cfg.geocoder = tc.geocoder
			}

			rr := getJSON(t, cfg.handlerProbability, tc.method, tc.target)
			assert.Equal(t, tc.wantStatus, rr.Code, rr.Body.String())

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.NotEmpty(t, body.Error)
			if tc.wantError != "" {
				assert.Contains(t, body.Error, tc.wantError)
			}
		})
	}
}

func TestHandlerGeocode(t *testing.T) {
	cfg := newTestAPIConfig(t, "http://unused")
	var gotCountry string
	cfg.geocoder = &mockGeocodingService{GeocodeFunc: func(ctx context.Context, city, country string) ([]Location, error) {
		gotCountry = country
		if city == "Atlantis" {
			return nil, ErrNoResultsFound
		}
		return []Location{reims, {Name: "Reims", CountryCode: "US"}}, nil
	}}

	rr := getJSON(t, cfg.handlerGeocode, http.MethodGet, "/api/geocode?city=Reims&country=FR")
	require.Equal(t, http.StatusOK, rr.Code)
	var resp GeocodeResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Len(t, resp.Results, 2)
	assert.Equal(t, "FR", gotCountry)
	assert.Contains(t, rr.Body.String(), `"countryCode":"FR"`)
	assert.NotContains(t, rr.Body.String(), "country_code")

	assert.Equal(t, http.StatusBadRequest, getJSON(t, cfg.handlerGeocode, http.MethodGet, "/api/geocode").Code)
	assert.Equal(t, http.StatusNotFound, getJSON(t, cfg.handlerGeocode, http.MethodGet, "/api/geocode?city=Atlantis").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, getJSON(t, cfg.handlerGeocode, http.MethodDelete, "/api/geocode?city=Reims").Code)
}

func TestHandlerWindowsAndConfig(t *testing.T) {
	cfg := newTestAPIConfig(t, "http://unused")
	cfg.devMode = true

	rr := getJSON(t, cfg.handlerWindows, http.MethodGet, "/api/windows")
	require.Equal(t, http.StatusOK, rr.Code)
	var windows WindowsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &windows))
	assert.Equal(t, 0.2, windows.ThresholdMM)
	require.Len(t, windows.Windows, 4)
	assert.Equal(t, "morning", windows.Windows[0].Key)
	assert.Equal(t, "evening", windows.Windows[3].Key)

	rr = getJSON(t, cfg.handlerConfig, http.MethodGet, "/api/config")
	require.Equal(t, http.StatusOK, rr.Code)
	var config ConfigResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &config))
	assert.JSONEq(t, `{
		"devMode": true,
		"thresholdMm": 0.2,
		"startYear": 1940,
		"hourlyConcurrency": 3,
		"maxHourlyYears": 20,
		"cacheBackend": "redis"
	}`, rr.Body.String())
	assert.Equal(t, ConfigResponse{
		DevMode:           true,
		ThresholdMM:       0.2,
		StartYear:         1940,
		HourlyConcurrency: 3,
		MaxHourlyYears:    20,
		CacheBackend:      "redis",
	}, config)

	assert.Equal(t, http.StatusMethodNotAllowed, getJSON(t, cfg.handlerWindows, http.MethodPost, "/api/windows").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, getJSON(t, cfg.handlerConfig, http.MethodPost, "/api/config").Code)
}

func TestHandlerResetCache(t *testing.T) {
	testCases := []struct {
		name       string
		method     string
		flushErr   error
		wantStatus int
	}{
		{name: "Success", method: http.MethodPost, wantStatus: http.StatusOK},
		{name: "Wrong method", method: http.MethodGet, wantStatus: http.StatusMethodNotAllowed},
		{name: "Flush failure", method: http.MethodPost, flushErr: errors.New("flush error"), wantStatus: http.StatusInternalServerError},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := newTestAPIConfig(t, "http://unused")
			cfg.cache = &mockCache{flushFunc: func(ctx context.Context) error { return tc.flushErr }}

			rr := getJSON(t, cfg.handlerResetCache, tc.method, "/dev/reset-cache")
			assert.Equal(t, tc.wantStatus, rr.Code)
		})
	}
}

func TestHandlerHealthz(t *testing.T) {
	cfg := newTestAPIConfig(t, "http://unused")
	assert.Equal(t, http.StatusOK, getJSON(t, cfg.handlerHealthz, http.MethodGet, "/healthz").Code)

	cfg.cache = &mockCache{pingFunc: func(ctx context.Context) error { return errors.New("connection refused") }}
	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, cfg.handlerHealthz, http.MethodGet, "/healthz").Code)
}

func TestRoutes(t *testing.T) {
	testCases := []struct {
		name       string
		devMode    bool
		method     string
		path       string
		wantStatus int
	}{
		{name: "Windows", method: http.MethodGet, path: "/api/windows", wantStatus: http.StatusOK},
		{name: "Health", method: http.MethodGet, path: "/healthz", wantStatus: http.StatusOK},
		{name: "Reset hidden outside dev mode", method: http.MethodPost, path: "/dev/reset-cache", wantStatus: http.StatusNotFound},
		{name: "Reset in dev mode", devMode: true, method: http.MethodPost, path: "/dev/reset-cache", wantStatus: http.StatusOK},
		{name: "Manual prune in dev mode", devMode: true, method: http.MethodPost, path: "/dev/run-prune", wantStatus: http.StatusAccepted},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := newTestAPIConfig(t, "http://unused")
			cfg.devMode = tc.devMode
			scheduler := NewScheduler(cfg, cfg.pruneInterval)
			scheduler.pruneJobs = func() {}
			handler := cfg.routes(scheduler)

			req := httptest.NewRequest(tc.method, tc.path, nil)
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			assert.Equal(t, tc.wantStatus, rr.Code)
			assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
			assert.NotEmpty(t, rr.Header().Get(requestIDHeader))
		})
	}

	t.Run("Metrics exposition", func(t *testing.T) {
		cfg := newTestAPIConfig(t, "http://unused")
		handler := cfg.routes(nil)

		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/windows", nil))

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		require.Equal(t, http.StatusOK, rr.Code)
		assert.True(t, strings.Contains(rr.Body.String(), "rainodds_http_requests_total"))
	})
}
