package stats

import "fmt"

// This file defines the data shapes consumed and produced by the aggregators.
// Absent values are modelled as nil pointers so that they serialize as JSON null
// and can never be confused with a measured zero.

// DefaultRainThresholdMM is the amount of rain, in millimetres, that an observation
// must strictly exceed to count as rainy.
const DefaultRainThresholdMM = 0.2

// DefaultStartYear is the first year of history requested from the archive.
const DefaultStartYear = 1940

// Window is a named, half-open range of local hours [Start, End).
type Window struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Contains reports whether the given hour of day falls inside the window.
func (w Window) Contains(hour int) bool {
	return hour >= w.Start && hour < w.End
}

// TimeRange renders the window as "HH:00–HH:00".
func (w Window) TimeRange() string {
	return fmt.Sprintf("%02d:00–%02d:00", w.Start, w.End)
}

// DefaultWindows returns the four daytime sessions in chronological order.
func DefaultWindows() []Window {
	return []Window{
		{Key: "morning", Label: "Morning", Start: 9, End: 12},
		{Key: "noon", Label: "Noon", Start: 12, End: 15},
		{Key: "afternoon", Label: "Afternoon", Start: 15, End: 18},
		{Key: "evening", Label: "Evening", Start: 18, End: 21},
	}
}

// Config carries the tunables of the aggregators. Nothing in this package
// reads a threshold or a window definition from anywhere else.
type Config struct {
	RainThresholdMM float64
	Windows         []Window
	StartYear       int
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		RainThresholdMM: DefaultRainThresholdMM,
		Windows:         DefaultWindows(),
		StartYear:       DefaultStartYear,
	}
}

// WindowByKey looks up a configured window.
func (c Config) WindowByKey(key string) (Window, bool) {
	for _, w := range c.Windows {
		if w.Key == key {
			return w, true
		}
	}
	return Window{}, false
}

// DailySeries mirrors the "daily" object of the Open-Meteo archive response.
// All arrays are parallel to Time.
type DailySeries struct {
	Time             []string   `json:"time"`
	PrecipitationSum []*float64 `json:"precipitation_sum"`
	RainSum          []*float64 `json:"rain_sum"`
	TemperatureMax   []*float64 `json:"temperature_2m_max"`
	TemperatureMin   []*float64 `json:"temperature_2m_min"`
	TemperatureMean  []*float64 `json:"temperature_2m_mean"`
	WeatherCode      []*int     `json:"weather_code"`
	Sunrise          []string   `json:"sunrise"`
	Sunset           []string   `json:"sunset"`
}

// Len returns the number of days in the series.
func (s DailySeries) Len() int {
	return len(s.Time)
}

// HourlyRecord is one hour of observations. Time is local to the location.
type HourlyRecord struct {
	Time         string   `json:"time"`
	Rain         *float64 `json:"rain"`
	Precip       *float64 `json:"precip"`
	Temp         *float64 `json:"temp"`
	ApparentTemp *float64 `json:"apparentTemp"`
	DewPoint     *float64 `json:"dewPoint"`
	CloudCover   *float64 `json:"cloudCover"`
	WeatherCode  *int     `json:"weathercode"`
}

// HourlyYearSeries holds the hours of the target date for a single year.
// A nil Hours slice means the data for that year could not be obtained.
type HourlyYearSeries struct {
	Year  int            `json:"year"`
	Hours []HourlyRecord `json:"hours"`
}

// Present reports whether the year carries data.
func (s HourlyYearSeries) Present() bool {
	return s.Hours != nil
}

// DailyRainResult is the frequency of rainy years on a calendar day.
type DailyRainResult struct {
	Probability *float64 `json:"probability"`
	Years       []int    `json:"years"`
	TotalYears  int      `json:"totalYears"`
	RainyYears  int      `json:"rainyYears"`
}

// TemperatureBand is the 10th and 90th percentile of a set of temperatures.
type TemperatureBand struct {
	P10 *float64 `json:"p10"`
	P90 *float64 `json:"p90"`
}

// TemperaturePercentiles summarizes highs and lows across years.
type TemperaturePercentiles struct {
	High  TemperatureBand `json:"high"`
	Low   TemperatureBand `json:"low"`
	Years []int           `json:"years"`
}

// SessionTemperaturePercentiles maps window keys to their temperature summary.
type SessionTemperaturePercentiles map[string]TemperaturePercentiles

// WindowProbability is the rain frequency of a single window.
type WindowProbability struct {
	Probability *float64 `json:"probability"`
	Label       string   `json:"label"`
	TimeRange   string   `json:"timeRange"`
}

// WindowProbabilities maps window keys to their rain frequency.
type WindowProbabilities map[string]WindowProbability

// RecentDay is one year of the recent-history strip.
type RecentDay struct {
	Year        int `json:"year"`
	WeatherCode int `json:"weathercode"`
	High        int `json:"high"`
	Low         int `json:"low"`
}

// Summary bundles every statistic computed for one query.
type Summary struct {
	Daily              DailyRainResult               `json:"daily"`
	Hourly             [24]*float64                  `json:"hourly"`
	Windows            WindowProbabilities           `json:"windows"`
	DailyTemperature   TemperaturePercentiles        `json:"dailyTemperature"`
	SessionTemperature SessionTemperaturePercentiles `json:"sessionTemperature"`
}
