package stats

// DescribeWeatherCode maps a WMO weather interpretation code to a short
// human readable condition.
func DescribeWeatherCode(code int) string {
	switch code {
	case 0:
		return "Clear Sky"
	case 1:
		return "Mainly Clear"
	case 2:
		return "Partly Cloudy"
	case 3:
		return "Overcast"
	case 45, 48:
		return "Fog"
	case 51, 53, 55:
		return "Drizzle"
	case 56, 57:
		return "Freezing Drizzle"
	case 61, 63, 65:
		return "Rain"
	case 66, 67:
		return "Freezing Rain"
	case 71, 73, 75:
		return "Snow"
	case 77:
		return "Snow Grains"
	case 80, 81, 82:
		return "Rain Showers"
	case 85, 86:
		return "Snow Showers"
	case 95:
		return "Thunderstorm"
	case 96, 99:
		return "Thunderstorm with Hail"
	default:
		return "Unknown"
	}
}

// WeatherCodeEmoji maps a WMO weather code to an icon.
func WeatherCodeEmoji(code int) string {
	switch {
	case code >= 0 && code <= 3:
		return "☀️"
	case code >= 45 && code <= 48:
		return "🌫️"
	case code >= 51 && code <= 55:
		return "🌦️"
	case code >= 56 && code <= 57:
		return "🌨️"
	case code >= 61 && code <= 65:
		return "🌧️"
	case code >= 66 && code <= 67:
		return "🌨️"
	case code >= 71 && code <= 77:
		return "🌨️"
	case code >= 80 && code <= 82:
		return "🌧️"
	case code >= 85 && code <= 86:
		return "🌨️"
	case code >= 95 && code <= 99:
		return "⛈️"
	case code >= 4 && code <= 44:
		return "☁️"
	case code >= 58 && code <= 60, code >= 83 && code <= 84:
		return "🌧️"
	case code >= 68 && code <= 70, code >= 87 && code <= 94:
		return "🌨️"
	default:
		return "❓"
	}
}
