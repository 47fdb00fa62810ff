package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/cor0nius/rainodds/internal/stats"
	"golang.org/x/sync/errgroup"
)

// This file contains the Open-Meteo archive client: one request for the full
// daily history of a location, and one request per year for the hourly data
// of the target date. Hourly requests run in parallel under a concurrency
// limit and a year that cannot be fetched is reported with nil hours instead
// of failing the batch.

const (
	archiveDailyFields  = "precipitation_sum,rain_sum,temperature_2m_max,temperature_2m_min,temperature_2m_mean,weather_code,sunrise,sunset"
	archiveHourlyFields = "rain,precipitation,temperature_2m,apparent_temperature,dew_point_2m,weathercode,cloud_cover"
	archiveDateLayout   = "2006-01-02"
)

var errNoArchiveData = errors.New("archive response contained no data")

// FetchConfig holds the tunables of the archive client.
type FetchConfig struct {
	HourlyConcurrency int
	MaxHourlyYears    int
	DailyTimeout      time.Duration
	HourlyTimeout     time.Duration
	GeocodeTimeout    time.Duration
}

// archiveURL builds an archive request for the given date range.
func (cfg *apiConfig) archiveURL(loc Location, start, end, fieldsKey, fields string) (string, error) {
	u, err := url.Parse(cfg.archiveBaseURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse archive URL: %w", err)
	}
	q := u.Query()
	q.Set("latitude", strconv.FormatFloat(loc.Latitude, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(loc.Longitude, 'f', -1, 64))
	q.Set("start_date", start)
	q.Set("end_date", end)
	q.Set(fieldsKey, fields)
	q.Set("temperature_unit", "celsius")
	q.Set("timezone", "auto")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (cfg *apiConfig) archiveGet(ctx context.Context, rawURL string, timeout time.Duration) ([]byte, error) {
	return cfg.cachedGet(ctx, cacheKey("archive", rawURL), func(ctx context.Context) ([]byte, error) {
		return cfg.archive.get(ctx, rawURL, timeout)
	})
}

// fetchDaily retrieves the daily history of a location from the configured
// start year up to and including today.
func (cfg *apiConfig) fetchDaily(ctx context.Context, loc Location, today time.Time) (stats.DailySeries, error) {
	start := fmt.Sprintf("%04d-01-01", cfg.statsConfig.StartYear)
	end := today.Format(archiveDateLayout)
	rawURL, err := cfg.archiveURL(loc, start, end, "daily", archiveDailyFields)
	if err != nil {
		return stats.DailySeries{}, err
	}

	cfg.logger.Debug("fetching daily history", "city", loc.Name, "start", start, "end", end)
	body, err := cfg.archiveGet(ctx, rawURL, cfg.fetch.DailyTimeout)
	if err != nil {
		return stats.DailySeries{}, fmt.Errorf("daily history request failed: %w", err)
	}

	var resp archiveDailyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return stats.DailySeries{}, fmt.Errorf("failed to decode daily history: %w", err)
	}
	if resp.Daily == nil {
		return stats.DailySeries{}, errNoArchiveData
	}
	cfg.logger.Debug("daily history received", "city", loc.Name, "days", resp.Daily.Len())
	return *resp.Daily, nil
}

// fetchHourlyForYears fetches the hourly data of target's calendar day for
// each year, most recent first, keeping at most MaxHourlyYears years.
func (cfg *apiConfig) fetchHourlyForYears(ctx context.Context, loc Location, target time.Time, years []int) []stats.HourlyYearSeries {
	ordered := selectHourlyYears(years, cfg.fetch.MaxHourlyYears)
	results := make([]stats.HourlyYearSeries, len(ordered))

	limit := cfg.fetch.HourlyConcurrency
	if limit < 1 {
		limit = 1
	}
	var g errgroup.Group
	g.SetLimit(limit)

	for i, year := range ordered {
		i, year := i, year
		g.Go(func() error {
			hours, err := cfg.fetchHourlyYear(ctx, loc, target, year)
			if err != nil {
				cfg.logger.Warn("hourly data unavailable", "year", year, "error", err)
				hourlyYearsFetched.WithLabelValues("missing").Inc()
				results[i] = stats.HourlyYearSeries{Year: year}
				return nil
			}
			hourlyYearsFetched.WithLabelValues("ok").Inc()
			results[i] = stats.HourlyYearSeries{Year: year, Hours: hours}
			return nil
		})
	}
	_ = g.Wait()

	succeeded := 0
	for _, r := range results {
		if r.Present() {
			succeeded++
		}
	}
	cfg.logger.Info("hourly fetch completed", "city", loc.Name, "succeeded", succeeded, "requested", len(results))
	return results
}

func (cfg *apiConfig) fetchHourlyYear(ctx context.Context, loc Location, target time.Time, year int) ([]stats.HourlyRecord, error) {
	day := time.Date(year, target.Month(), target.Day(), 0, 0, 0, 0, time.UTC)
	if day.Month() != target.Month() {
		return nil, fmt.Errorf("%s does not exist in %d", target.Format("01-02"), year)
	}
	date := day.Format(archiveDateLayout)
	rawURL, err := cfg.archiveURL(loc, date, date, "hourly", archiveHourlyFields)
	if err != nil {
		return nil, err
	}

	cfg.logger.Debug("fetching hourly data", "year", year)
	body, err := cfg.archiveGet(ctx, rawURL, cfg.fetch.HourlyTimeout)
	if err != nil {
		return nil, err
	}

	var resp archiveHourlyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode hourly data: %w", err)
	}
	if resp.Hourly == nil || resp.Hourly.Time == nil {
		return nil, errNoArchiveData
	}
	return hourlyRecords(resp.Hourly), nil
}

// selectHourlyYears de-duplicates years, orders them most recent first and
// truncates to limit when limit is positive.
func selectHourlyYears(years []int, limit int) []int {
	seen := make(map[int]bool, len(years))
	out := make([]int, 0, len(years))
	for _, y := range years {
		if !seen[y] {
			seen[y] = true
			out = append(out, y)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func hourlyRecords(h *archiveHourlyData) []stats.HourlyRecord {
	records := make([]stats.HourlyRecord, len(h.Time))
	for i, t := range h.Time {
		records[i] = stats.HourlyRecord{
			Time:         t,
			Rain:         floatAt(h.Rain, i),
			Precip:       floatAt(h.Precipitation, i),
			Temp:         floatAt(h.Temperature, i),
			ApparentTemp: floatAt(h.ApparentTemperature, i),
			DewPoint:     floatAt(h.DewPoint, i),
			CloudCover:   floatAt(h.CloudCover, i),
			WeatherCode:  intAt(h.WeatherCode, i),
		}
	}
	return records
}

func floatAt(values []*float64, i int) *float64 {
	if i < len(values) {
		return values[i]
	}
	return nil
}

func intAt(values []*int, i int) *int {
	if i < len(values) {
		return values[i]
	}
	return nil
}
