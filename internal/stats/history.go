package stats

import (
	"sort"
	"time"
)

// RecentDailyWeather returns the weather of the target calendar day for the n
// most recent years that have a weather code, a high and a low. Entries are
// ordered oldest first and temperatures are rounded to whole degrees.
func RecentDailyWeather(series DailySeries, target time.Time, n int) []RecentDay {
	key := monthDayOf(target)
	days := []RecentDay{}

	for i, raw := range series.Time {
		day, ok := parseDay(raw)
		if !ok || monthDayOf(day) != key {
			continue
		}
		code := intAt(series.WeatherCode, i)
		high := floatAt(series.TemperatureMax, i)
		low := floatAt(series.TemperatureMin, i)
		if code == nil || high == nil || low == nil {
			continue
		}
		days = append(days, RecentDay{
			Year:        day.Year(),
			WeatherCode: *code,
			High:        roundHalfUp(*high),
			Low:         roundHalfUp(*low),
		})
	}

	return lastN(days, n)
}

// RecentSessionWeather returns, for the n most recent years with usable
// in-window data, the weather code of the first in-window hour and the
// rounded session high and low.
func RecentSessionWeather(years []HourlyYearSeries, w Window, n int) []RecentDay {
	days := []RecentDay{}

	for _, y := range years {
		if !y.Present() {
			continue
		}
		var first *HourlyRecord
		for i := range y.Hours {
			hour, ok := hourOf(y.Hours[i].Time)
			if ok && w.Contains(hour) {
				first = &y.Hours[i]
				break
			}
		}
		if first == nil || first.WeatherCode == nil {
			continue
		}
		high, low, ok := sessionExtremes(y.Hours, w)
		if !ok {
			continue
		}
		days = append(days, RecentDay{
			Year:        y.Year,
			WeatherCode: *first.WeatherCode,
			High:        roundHalfUp(high),
			Low:         roundHalfUp(low),
		})
	}

	return lastN(days, n)
}

func lastN(days []RecentDay, n int) []RecentDay {
	sort.SliceStable(days, func(i, j int) bool {
		return days[i].Year < days[j].Year
	})
	if n >= 0 && len(days) > n {
		days = days[len(days)-n:]
	}
	return days
}
