package main

import (
	"net/http"
)

// This file contains the HTTP handlers of the application. Handlers accept
// only GET (or POST for development endpoints), validate their query, call
// into the helpers in handler_helpers.go and write a JSON response.

// @Summary      Get rain probability for a date
// @Description  Geocodes the city, loads the daily history of the location and the hourly data of every
// @Description  year that matches the calendar day, and returns the historical rain frequency for the day,
// @Description  each hour and each session together with temperature percentiles and recent history.
// @Tags         probability
// @Produce      json
// @Param        city    query     string  true   "City name (e.g., 'Reims')"
// @Param        country query     string  false  "ISO 3166-1 alpha-2 country code used to rank results (e.g., 'FR')"
// @Param        date    query     string  true   "Target date, YYYY-MM-DD. Only month and day are used."
// @Param        session query     string  false  "Session key (morning, noon, afternoon, evening)"
// @Success      200  {object}  ProbabilityResponse
// @Failure      400  {object}  ErrorResponse "Bad Request - Invalid query parameters"
// @Failure      404  {object}  ErrorResponse "Not Found - Location not found"
// @Failure      422  {object}  ErrorResponse "Unprocessable Entity - No historical data for the date"
// @Failure      502  {object}  ErrorResponse "Bad Gateway - Upstream failure"
// @Router       /api/probability [get]
func (cfg *apiConfig) handlerProbability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		cfg.respondWithError(w, http.StatusMethodNotAllowed, "Method Not Allowed", nil)
		return
	}

	req, err := cfg.parseProbabilityRequest(r)
	if err != nil {
		cfg.respondWithError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	cfg.logger.Debug("probability request", "city", req.City, "country", req.Country, "date", req.Target.Format(archiveDateLayout))

	resp, err := cfg.buildProbabilityReport(r.Context(), req)
	if err != nil {
		code, msg := statusForError(err)
		if code == http.StatusBadGateway {
			cfg.respondWithError(w, code, msg, err)
		} else {
			cfg.respondWithError(w, code, msg, nil)
		}
		return
	}

	cfg.respondWithJSON(w, http.StatusOK, resp)
}

// @Summary      Search locations
// @Description  Returns up to five candidate locations for a city name. Results in the given country come first.
// @Tags         geocoding
// @Produce      json
// @Param        city    query     string  true   "City name"
// @Param        country query     string  false  "ISO 3166-1 alpha-2 country code"
// @Success      200  {object}  GeocodeResponse
// @Failure      400  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Failure      502  {object}  ErrorResponse
// @Router       /api/geocode [get]
func (cfg *apiConfig) handlerGeocode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		cfg.respondWithError(w, http.StatusMethodNotAllowed, "Method Not Allowed", nil)
		return
	}

	query, err := cfg.parseGeocodeQuery(r)
	if err != nil {
		cfg.respondWithError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	locations, err := cfg.geocoder.Geocode(r.Context(), query.City, query.Country)
	if err != nil {
		code, msg := statusForError(err)
		if code == http.StatusBadGateway {
			cfg.respondWithError(w, code, msg, err)
		} else {
			cfg.respondWithError(w, code, msg, nil)
		}
		return
	}

	cfg.respondWithJSON(w, http.StatusOK, GeocodeResponse{Results: locations})
}

// @Summary      List sessions
// @Description  Returns the configured time-of-day sessions and the rain threshold in millimetres.
// @Tags         configuration
// @Produce      json
// @Success      200  {object}  WindowsResponse
// @Router       /api/windows [get]
func (cfg *apiConfig) handlerWindows(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		cfg.respondWithError(w, http.StatusMethodNotAllowed, "Method Not Allowed", nil)
		return
	}
	sc := cfg.aggregator.Config()
	cfg.respondWithJSON(w, http.StatusOK, WindowsResponse{
		ThresholdMM: sc.RainThresholdMM,
		Windows:     sc.Windows,
	})
}

// @Summary      Get application configuration
// @Description  Provides client-side applications with configuration details such as development mode,
// @Description  the rain threshold and the hourly fetch limits.
// @Tags         configuration
// @Produce      json
// @Success      200  {object}  ConfigResponse
// @Router       /api/config [get]
func (cfg *apiConfig) handlerConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		cfg.respondWithError(w, http.StatusMethodNotAllowed, "Method Not Allowed", nil)
		return
	}

	sc := cfg.aggregator.Config()
	cfg.respondWithJSON(w, http.StatusOK, ConfigResponse{
		DevMode:           cfg.devMode,
		ThresholdMM:       sc.RainThresholdMM,
		StartYear:         sc.StartYear,
		HourlyConcurrency: cfg.fetch.HourlyConcurrency,
		MaxHourlyYears:    cfg.fetch.MaxHourlyYears,
		CacheBackend:      cfg.cacheBackend,
	})
}

// @Summary      Reset response caches (development only)
// @Description  Empties the key-value cache and the api_responses table. Intended for development only.
// @Tags         development
// @Produce      json
// @Success      200  {object}  map[string]string "Example: `{\"status\":\"cache reset\"}`"
// @Failure      500  {object}  ErrorResponse
// @Router       /dev/reset-cache [post]
func (cfg *apiConfig) handlerResetCache(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		cfg.respondWithError(w, http.StatusMethodNotAllowed, "Method Not Allowed", nil)
		return
	}
	cfg.logger.Debug("cache reset request received")

	if err := cfg.resetCaches(r.Context()); err != nil {
		cfg.respondWithError(w, http.StatusInternalServerError, "Failed to reset cache", err)
		return
	}

	cfg.respondWithJSON(w, http.StatusOK, map[string]string{"status": "cache reset"})
}

// handlerHealthz reports whether the key-value cache is reachable.
func (cfg *apiConfig) handlerHealthz(w http.ResponseWriter, r *http.Request) {
	if err := cfg.cache.Ping(r.Context()); err != nil {
		cfg.respondWithError(w, http.StatusServiceUnavailable, "cache unavailable", err)
		return
	}
	cfg.respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
