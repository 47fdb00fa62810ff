package stats

import (
	"sort"
	"time"
)

// Aggregator turns historical daily and hourly series into empirical
// frequencies and percentile bands. It holds no mutable state and is safe
// for concurrent use.
type Aggregator struct {
	cfg Config
}

// NewAggregator creates an Aggregator. A nil window list falls back to
// DefaultWindows.
func NewAggregator(cfg Config) *Aggregator {
	if cfg.Windows == nil {
		cfg.Windows = DefaultWindows()
	}
	return &Aggregator{cfg: cfg}
}

// Config returns the configuration the aggregator was built with.
func (a *Aggregator) Config() Config {
	return a.cfg
}

func (a *Aggregator) isRainy(rain, precip *float64) bool {
	return rainAmount(rain, precip) > a.cfg.RainThresholdMM
}

// DailyRainProbability counts, over every year present in the series, how
// often the target calendar day saw more rain than the configured threshold.
func (a *Aggregator) DailyRainProbability(series DailySeries, target time.Time) DailyRainResult {
	key := monthDayOf(target)
	years := []int{}
	var total, rainy int

	for i, raw := range series.Time {
		day, ok := parseDay(raw)
		if !ok || monthDayOf(day) != key {
			continue
		}
		total++
		years = append(years, day.Year())
		if a.isRainy(floatAt(series.RainSum, i), floatAt(series.PrecipitationSum, i)) {
			rainy++
		}
	}

	sort.Ints(years)
	return DailyRainResult{
		Probability: ratio(rainy, total),
		Years:       years,
		TotalYears:  total,
		RainyYears:  rainy,
	}
}

// DailyTemperaturePercentiles computes P10/P90 of the daily maximum and
// minimum temperatures recorded on the target calendar day.
func (a *Aggregator) DailyTemperaturePercentiles(series DailySeries, target time.Time) TemperaturePercentiles {
	key := monthDayOf(target)
	var highs, lows []float64
	years := []int{}

	for i, raw := range series.Time {
		day, ok := parseDay(raw)
		if !ok || monthDayOf(day) != key {
			continue
		}
		high := floatAt(series.TemperatureMax, i)
		low := floatAt(series.TemperatureMin, i)
		if high != nil {
			highs = append(highs, *high)
		}
		if low != nil {
			lows = append(lows, *low)
		}
		if high != nil || low != nil {
			years = append(years, day.Year())
		}
	}

	sort.Ints(years)
	return TemperaturePercentiles{
		High:  band(highs),
		Low:   band(lows),
		Years: years,
	}
}

// HourlyProbabilities returns, for each hour of the day, the fraction of
// observations in that hour that were rainy. Slots without observations are nil.
func (a *Aggregator) HourlyProbabilities(years []HourlyYearSeries) [24]*float64 {
	var rainy, total [24]int

	for _, y := range years {
		if !y.Present() {
			continue
		}
		for _, h := range y.Hours {
			hour, ok := hourOf(h.Time)
			if !ok {
				continue
			}
			total[hour]++
			if a.isRainy(h.Rain, h.Precip) {
				rainy[hour]++
			}
		}
	}

	var out [24]*float64
	for i := range out {
		out[i] = ratio(rainy[i], total[i])
	}
	return out
}

// WindowProbabilities returns, per configured window, the fraction of years
// in which at least one in-window hour was rainy.
//
// Every year with data counts towards the denominator of every window, even
// when none of its hours fall inside that window; such a year counts as dry.
// Years whose hourly data is missing are excluded entirely.
func (a *Aggregator) WindowProbabilities(years []HourlyYearSeries) WindowProbabilities {
	out := make(WindowProbabilities, len(a.cfg.Windows))

	for _, w := range a.cfg.Windows {
		var total, rainy int
		for _, y := range years {
			if !y.Present() {
				continue
			}
			total++
			for _, h := range y.Hours {
				hour, ok := hourOf(h.Time)
				if !ok || !w.Contains(hour) {
					continue
				}
				if a.isRainy(h.Rain, h.Precip) {
					rainy++
					break
				}
			}
		}
		out[w.Key] = WindowProbability{
			Probability: ratio(rainy, total),
			Label:       w.Label,
			TimeRange:   w.TimeRange(),
		}
	}
	return out
}

// SessionTemperaturePercentiles computes, per window, P10/P90 of the per-year
// session high (maximum in-window temperature) and session low (minimum).
func (a *Aggregator) SessionTemperaturePercentiles(years []HourlyYearSeries) SessionTemperaturePercentiles {
	out := make(SessionTemperaturePercentiles, len(a.cfg.Windows))

	for _, w := range a.cfg.Windows {
		var highs, lows []float64
		contributing := []int{}
		for _, y := range years {
			if !y.Present() {
				continue
			}
			high, low, ok := sessionExtremes(y.Hours, w)
			if !ok {
				continue
			}
			highs = append(highs, high)
			lows = append(lows, low)
			contributing = append(contributing, y.Year)
		}
		sort.Ints(contributing)
		out[w.Key] = TemperaturePercentiles{
			High:  band(highs),
			Low:   band(lows),
			Years: contributing,
		}
	}
	return out
}

// Summarize runs every aggregation for one query.
func (a *Aggregator) Summarize(series DailySeries, target time.Time, hourly []HourlyYearSeries) Summary {
	return Summary{
		Daily:              a.DailyRainProbability(series, target),
		Hourly:             a.HourlyProbabilities(hourly),
		Windows:            a.WindowProbabilities(hourly),
		DailyTemperature:   a.DailyTemperaturePercentiles(series, target),
		SessionTemperature: a.SessionTemperaturePercentiles(hourly),
	}
}

// sessionExtremes returns the max and min non-nil in-window temperature.
func sessionExtremes(hours []HourlyRecord, w Window) (high, low float64, ok bool) {
	for _, h := range hours {
		if h.Temp == nil {
			continue
		}
		hour, valid := hourOf(h.Time)
		if !valid || !w.Contains(hour) {
			continue
		}
		t := *h.Temp
		if !ok {
			high, low, ok = t, t, true
			continue
		}
		if t > high {
			high = t
		}
		if t < low {
			low = t
		}
	}
	return high, low, ok
}

func ratio(num, den int) *float64 {
	if den == 0 {
		return nil
	}
	v := float64(num) / float64(den)
	return &v
}
