package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cor0nius/rainodds/internal/stats"
	"github.com/go-playground/validator/v10"
)

// ErrNoHistoricalData is returned when no year of the daily history matches
// the requested calendar day.
var ErrNoHistoricalData = errors.New("no historical data available for this location and date")

type probabilityQuery struct {
	City    string `validate:"required,max=100"`
	Country string `validate:"omitempty,len=2,alpha"`
	Date    string `validate:"required"`
	Session string `validate:"omitempty,alpha,max=32"`
}

type geocodeQuery struct {
	City    string `validate:"required,max=100"`
	Country string `validate:"omitempty,len=2,alpha"`
}

// probabilityRequest is a validated probabilityQuery.
type probabilityRequest struct {
	City    string
	Country string
	Target  time.Time
	Window  *stats.Window
}

// parseProbabilityRequest reads and validates the query of a probability request.
func (cfg *apiConfig) parseProbabilityRequest(r *http.Request) (probabilityRequest, error) {
	q := r.URL.Query()
	query := probabilityQuery{
		City:    q.Get("city"),
		Country: q.Get("country"),
		Date:    q.Get("date"),
		Session: q.Get("session"),
	}
	if err := cfg.validate.Struct(query); err != nil {
		return probabilityRequest{}, describeValidationError(err)
	}

	target, err := stats.ParseDate(query.Date)
	if err != nil {
		return probabilityRequest{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", query.Date)
	}

	req := probabilityRequest{City: query.City, Country: query.Country, Target: target}
	if query.Session != "" {
		w, ok := cfg.aggregator.Config().WindowByKey(query.Session)
		if !ok {
			return probabilityRequest{}, fmt.Errorf("unknown session %q", query.Session)
		}
		req.Window = &w
	}
	return req, nil
}

func (cfg *apiConfig) parseGeocodeQuery(r *http.Request) (geocodeQuery, error) {
	q := r.URL.Query()
	query := geocodeQuery{City: q.Get("city"), Country: q.Get("country")}
	if err := cfg.validate.Struct(query); err != nil {
		return geocodeQuery{}, describeValidationError(err)
	}
	return query, nil
}

// describeValidationError turns the first failed validation rule into a
// message that names the offending query parameter.
func describeValidationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Errorf("invalid query parameter %s: failed %q check", fe.Field(), fe.Tag())
	}
	return err
}

// buildProbabilityReport runs the whole pipeline for one validated request:
// geocode, fetch the daily history, aggregate, fetch the hourly data of the
// years that matched and aggregate again.
func (cfg *apiConfig) buildProbabilityReport(ctx context.Context, req probabilityRequest) (ProbabilityResponse, error) {
	locations, err := cfg.geocoder.Geocode(ctx, req.City, req.Country)
	if err != nil {
		return ProbabilityResponse{}, err
	}
	loc := locations[0]

	daily, err := cfg.fetchDaily(ctx, loc, cfg.now())
	if err != nil {
		return ProbabilityResponse{}, err
	}

	dailyResult := cfg.aggregator.DailyRainProbability(daily, req.Target)
	if dailyResult.TotalYears == 0 {
		return ProbabilityResponse{}, ErrNoHistoricalData
	}

	hourly := cfg.fetchHourlyForYears(ctx, loc, req.Target, dailyResult.Years)
	summary := cfg.aggregator.Summarize(daily, req.Target, hourly)

	resp := ProbabilityResponse{
		Location:           loc,
		Date:               req.Target.Format(archiveDateLayout),
		ThresholdMM:        cfg.aggregator.Config().RainThresholdMM,
		Daily:              summary.Daily,
		DailyPercentage:    stats.FormatPercentage(summary.Daily.Probability, 0),
		Hourly:             summary.Hourly,
		Windows:            summary.Windows,
		DailyTemperature:   summary.DailyTemperature,
		SessionTemperature: summary.SessionTemperature,
		History:            recentDaysJSON(stats.RecentDailyWeather(daily, req.Target, cfg.recentYears)),
		HourlyYears:        hourlyCoverage(hourly),
	}

	narrative := NarrativeInput{
		Location:        displayName(loc),
		Session:         "the day",
		RainProbability: summary.Daily.Probability,
		TempLow:         summary.DailyTemperature.Low.P10,
		TempHigh:        summary.DailyTemperature.High.P90,
	}
	if req.Window != nil {
		w := *req.Window
		wp := summary.Windows[w.Key]
		temps := summary.SessionTemperature[w.Key]
		resp.Session = &SessionJSON{
			Key:         w.Key,
			Label:       w.Label,
			TimeRange:   w.TimeRange(),
			Probability: wp.Probability,
			Percentage:  stats.FormatPercentage(wp.Probability, 0),
			Temperature: temps,
			History:     recentDaysJSON(stats.RecentSessionWeather(hourly, w, cfg.recentYears)),
		}
		narrative.Session = w.Label
		narrative.RainProbability = wp.Probability
		narrative.TempLow = temps.Low.P10
		narrative.TempHigh = temps.High.P90
	}
	resp.Narrative = cfg.narrator.Narrate(ctx, narrative)

	return resp, nil
}

func recentDaysJSON(days []stats.RecentDay) []RecentDayJSON {
	out := make([]RecentDayJSON, len(days))
	for i, d := range days {
		out[i] = RecentDayJSON{
			RecentDay: d,
			Emoji:     stats.WeatherCodeEmoji(d.WeatherCode),
			Condition: stats.DescribeWeatherCode(d.WeatherCode),
		}
	}
	return out
}

func hourlyCoverage(years []stats.HourlyYearSeries) HourlyCoverageJSON {
	c := HourlyCoverageJSON{Requested: len(years)}
	for _, y := range years {
		if y.Present() {
			c.Succeeded++
		}
	}
	return c
}

func displayName(loc Location) string {
	if loc.Country == "" {
		return loc.Name
	}
	return loc.Name + ", " + loc.Country
}

// statusForError maps pipeline errors to HTTP status codes.
func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, ErrNoResultsFound):
		return http.StatusNotFound, "Location not found"
	case errors.Is(err, ErrNoHistoricalData):
		return http.StatusUnprocessableEntity, ErrNoHistoricalData.Error()
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "Request cancelled"
	default:
		return http.StatusBadGateway, "Error retrieving data from upstream"
	}
}
