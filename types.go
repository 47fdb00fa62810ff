package main

import "github.com/cor0nius/rainodds/internal/stats"

type Location struct {
	Name        string  `json:"name"`
	Country     string  `json:"country"`
	CountryCode string  `json:"countryCode"`
	Admin1      string  `json:"admin1,omitempty"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Timezone    string  `json:"timezone,omitempty"`
}

// archiveDailyResponse and archiveHourlyResponse mirror the parts of the
// Open-Meteo archive response the application reads.
type archiveDailyResponse struct {
	Timezone string             `json:"timezone"`
	Daily    *stats.DailySeries `json:"daily"`
}

type archiveHourlyResponse struct {
	Timezone string            `json:"timezone"`
	Hourly   *archiveHourlyData `json:"hourly"`
}

type archiveHourlyData struct {
	Time                []string   `json:"time"`
	Rain                []*float64 `json:"rain"`
	Precipitation       []*float64 `json:"precipitation"`
	Temperature         []*float64 `json:"temperature_2m"`
	ApparentTemperature []*float64 `json:"apparent_temperature"`
	DewPoint            []*float64 `json:"dew_point_2m"`
	WeatherCode         []*int     `json:"weathercode"`
	CloudCover          []*float64 `json:"cloud_cover"`
}

type RecentDayJSON struct {
	stats.RecentDay
	Emoji     string `json:"emoji"`
	Condition string `json:"condition"`
}

type SessionJSON struct {
	Key         string                       `json:"key"`
	Label       string                       `json:"label"`
	TimeRange   string                       `json:"timeRange"`
	Probability *float64                     `json:"probability"`
	Percentage  string                       `json:"percentage"`
	Temperature stats.TemperaturePercentiles `json:"temperature"`
	History     []RecentDayJSON              `json:"history"`
}

type NarrativeJSON struct {
	Text     string `json:"text"`
	Fallback bool   `json:"fallback"`
}

type ProbabilityResponse struct {
	Location           Location                            `json:"location"`
	Date               string                              `json:"date"`
	ThresholdMM        float64                             `json:"thresholdMm"`
	Daily              stats.DailyRainResult               `json:"daily"`
	DailyPercentage    string                              `json:"dailyPercentage"`
	Hourly             [24]*float64                        `json:"hourly"`
	Windows            stats.WindowProbabilities           `json:"windows"`
	DailyTemperature   stats.TemperaturePercentiles        `json:"dailyTemperature"`
	SessionTemperature stats.SessionTemperaturePercentiles `json:"sessionTemperature"`
	History            []RecentDayJSON                     `json:"history"`
	Session            *SessionJSON                        `json:"session,omitempty"`
	HourlyYears        HourlyCoverageJSON                  `json:"hourlyYears"`
	Narrative          NarrativeJSON                       `json:"narrative"`
}

type HourlyCoverageJSON struct {
	Requested int `json:"requested"`
	Succeeded int `json:"succeeded"`
}

type GeocodeResponse struct {
	Results []Location `json:"results"`
}

type WindowsResponse struct {
	ThresholdMM float64        `json:"thresholdMm"`
	Windows     []stats.Window `json:"windows"`
}

type ConfigResponse struct {
	DevMode           bool    `json:"devMode"`
	ThresholdMM       float64 `json:"thresholdMm"`
	StartYear         int     `json:"startYear"`
	HourlyConcurrency int     `json:"hourlyConcurrency"`
	MaxHourlyYears    int     `json:"maxHourlyYears"`
	CacheBackend      string  `json:"cacheBackend"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
