package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// This file provides the application's geocoding capabilities, converting a
// city name (optionally qualified by a country code) into coordinates. The
// provider sits behind the GeocodingService interface so handlers can be
// tested without network access.

// ErrNoResultsFound is returned when a geocoding query yields no results.
var ErrNoResultsFound = errors.New("no results found for the given query")

const geocodeResultCount = "5"

// GeocodingService resolves a place name into candidate locations, best match first.
type GeocodingService interface {
	Geocode(ctx context.Context, city, country string) ([]Location, error)
}

// fetchFunc retrieves the body of rawURL, possibly from a cache entry stored under key.
type fetchFunc func(ctx context.Context, key, rawURL string) ([]byte, error)

// OpenMeteoGeocodingService implements GeocodingService on top of the
// Open-Meteo geocoding API, which requires no API key.
type OpenMeteoGeocodingService struct {
	geocodeURL string
	fetch      fetchFunc
}

func NewOpenMeteoGeocodingService(geocodeURL string, fetch fetchFunc) *OpenMeteoGeocodingService {
	return &OpenMeteoGeocodingService{
		geocodeURL: geocodeURL,
		fetch:      fetch,
	}
}

func (s *OpenMeteoGeocodingService) Geocode(ctx context.Context, city, country string) ([]Location, error) {
	baseURL, err := url.Parse(s.geocodeURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse base geocode URL: %w", err)
	}
	q := baseURL.Query()
	q.Set("name", city)
	q.Set("count", geocodeResultCount)
	q.Set("language", "en")
	q.Set("format", "json")
	baseURL.RawQuery = q.Encode()

	normalized, err := normalizeCityName(city)
	if err != nil {
		return nil, fmt.Errorf("could not normalize city name: %w", err)
	}
	key := cacheKey("geocode", normalized+"|"+strings.ToUpper(country))

	body, err := s.fetch(ctx, key, baseURL.String())
	if err != nil {
		return nil, fmt.Errorf("geocoding request failed: %w", err)
	}

	var response geocodeResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to decode geocoding response: %w", err)
	}
	if len(response.Results) == 0 {
		return nil, ErrNoResultsFound
	}

	locations := make([]Location, len(response.Results))
	for i, r := range response.Results {
		locations[i] = r.toLocation()
	}
	return sortByCountry(locations, country), nil
}

// sortByCountry moves results in the requested country to the front while
// keeping the provider's relevance order otherwise.
func sortByCountry(locations []Location, country string) []Location {
	if country == "" {
		return locations
	}
	want := strings.ToUpper(country)
	sort.SliceStable(locations, func(i, j int) bool {
		return locations[i].CountryCode == want && locations[j].CountryCode != want
	})
	return locations
}

// geocodeResponse mirrors the Open-Meteo geocoding JSON response.
type geocodeResponse struct {
	Results []geocodeResult `json:"results"`
}

type geocodeResult struct {
	Name        string  `json:"name"`
	Country     string  `json:"country"`
	CountryCode string  `json:"country_code"`
	Admin1      string  `json:"admin1"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Timezone    string  `json:"timezone"`
}

func (r geocodeResult) toLocation() Location {
	return Location{
		Name:        r.Name,
		Country:     r.Country,
		CountryCode: r.CountryCode,
		Admin1:      r.Admin1,
		Latitude:    r.Latitude,
		Longitude:   r.Longitude,
		Timezone:    r.Timezone,
	}
}
