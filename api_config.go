package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/cor0nius/rainodds/internal/stats"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

const (
	defaultArchiveURL  = "https://archive-api.open-meteo.com/v1/archive"
	defaultGeocodeURL  = "https://geocoding-api.open-meteo.com/v1/search"
	defaultOpenAIURL   = "https://api.openai.com/v1/responses"
	defaultOpenAIModel = "gpt-5-mini"
	defaultRecentYears = 5
)

type apiConfig struct {
	logger  *slog.Logger
	devMode bool
	port    string

	cacheBackend string
	cache        Cache
	badger       *BadgerCache
	compressor   *Compressor
	cacheTTL     time.Duration

	dbURL           string
	dbQueries       dbQuerier
	newDBClientFunc func(driverName, dataSourceName string) (*sql.DB, error)
	pruneInterval   time.Duration

	httpClient     *http.Client
	archiveBaseURL string
	geocodeURL     string
	archive        *upstreamClient
	geocodeClient  *upstreamClient
	geocoder       GeocodingService
	fetch          FetchConfig

	statsConfig stats.Config
	aggregator  *stats.Aggregator
	recentYears int
	narrator    Narrator
	validate    *validator.Validate
	now         func() time.Time
}

// getRequiredEnv retrieves an environment variable by key and returns an error if it's not set.
func getRequiredEnv(key string) (string, error) {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return "", fmt.Errorf("environment variable %s must be set", key)
	}
	return val, nil
}

// getEnv retrieves an environment variable by key, with a fallback value.
func getEnv(key, fallback string, logger *slog.Logger) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	logger.Info("environment variable not set, using fallback", "key", key, "fallback", fallback)
	return fallback
}

// getEnvAsInt retrieves an environment variable as an integer, with a fallback value.
func getEnvAsInt(key string, fallback int, logger *slog.Logger) int {
	valStr, ok := os.LookupEnv(key)
	if !ok || valStr == "" {
		logger.Info("environment variable not set, using fallback", "key", key, "fallback", fallback)
		return fallback
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		logger.Warn("invalid integer value for environment variable, using fallback", "key", key, "value", valStr, "error", err)
		return fallback
	}
	return val
}

// getEnvAsFloat retrieves an environment variable as a float, with a fallback value.
func getEnvAsFloat(key string, fallback float64, logger *slog.Logger) float64 {
	valStr, ok := os.LookupEnv(key)
	if !ok || valStr == "" {
		logger.Info("environment variable not set, using fallback", "key", key, "fallback", fallback)
		return fallback
	}
	val, err := strconv.ParseFloat(valStr, 64)
	if err != nil {
		logger.Warn("invalid float value for environment variable, using fallback", "key", key, "value", valStr, "error", err)
		return fallback
	}
	return val
}

// getEnvAsDuration retrieves an environment variable as a duration ("15s", "1m"), with a fallback value.
func getEnvAsDuration(key string, fallback time.Duration, logger *slog.Logger) time.Duration {
	valStr, ok := os.LookupEnv(key)
	if !ok || valStr == "" {
		logger.Info("environment variable not set, using fallback", "key", key, "fallback", fallback.String())
		return fallback
	}
	val, err := time.ParseDuration(valStr)
	if err != nil || val <= 0 {
		logger.Warn("invalid duration value for environment variable, using fallback", "key", key, "value", valStr, "error", err)
		return fallback
	}
	return val
}

func positive(v, fallback int) int {
	if v < 1 {
		return fallback
	}
	return v
}

func newLogger(w io.Writer, devMode bool) *slog.Logger {
	if devMode {
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	}
	return slog.New(slog.NewJSONHandler(w, nil))
}

// NewAPIConfig reads the environment and wires every dependency of the
// server. It performs no network calls; connectivity is checked in main.
func NewAPIConfig(w io.Writer) (*apiConfig, error) {
	devMode, err := strconv.ParseBool(os.Getenv("DEV_MODE"))
	if err != nil {
		devMode = false
	}
	logger := newLogger(w, devMode)

	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, relying on environment variables")
	}

	cfg := &apiConfig{
		logger:          logger,
		devMode:         devMode,
		port:            getEnv("PORT", "8080", logger),
		cacheBackend:    getEnv("CACHE_BACKEND", "redis", logger),
		cacheTTL:        time.Duration(positive(getEnvAsInt("CACHE_TTL_DAYS", 30, logger), 30)) * 24 * time.Hour,
		dbURL:           os.Getenv("DB_URL"),
		newDBClientFunc: sql.Open,
		pruneInterval:   time.Duration(positive(getEnvAsInt("CACHE_PRUNE_INTERVAL_MIN", 60, logger), 60)) * time.Minute,
		archiveBaseURL:  getEnv("ARCHIVE_URL", defaultArchiveURL, logger),
		geocodeURL:      getEnv("GEOCODE_URL", defaultGeocodeURL, logger),
		fetch: FetchConfig{
			HourlyConcurrency: getEnvAsInt("HOURLY_CONCURRENCY", 5, logger),
			MaxHourlyYears:    getEnvAsInt("MAX_HOURLY_YEARS", 20, logger),
			DailyTimeout:      getEnvAsDuration("DAILY_TIMEOUT", 30*time.Second, logger),
			HourlyTimeout:     getEnvAsDuration("HOURLY_TIMEOUT", 15*time.Second, logger),
			GeocodeTimeout:    getEnvAsDuration("GEOCODE_TIMEOUT", 15*time.Second, logger),
		},
		statsConfig: stats.Config{
			RainThresholdMM: getEnvAsFloat("RAIN_THRESHOLD_MM", stats.DefaultRainThresholdMM, logger),
			Windows:         stats.DefaultWindows(),
			StartYear:       getEnvAsInt("HISTORY_START_YEAR", stats.DefaultStartYear, logger),
		},
		recentYears: defaultRecentYears,
		validate:    validator.New(),
		now:         time.Now,
	}
	cfg.aggregator = stats.NewAggregator(cfg.statsConfig)

	compressor, err := NewCompressor(getEnvAsInt("CACHE_COMPRESSION_LEVEL", 2, logger))
	if err != nil {
		return nil, fmt.Errorf("could not create compressor: %w", err)
	}
	cfg.compressor = compressor

	if err := cfg.setupCache(); err != nil {
		compressor.Close()
		return nil, err
	}

	cfg.httpClient = &http.Client{
		Transport: &metricsTransport{wrapped: http.DefaultTransport},
	}
	policy := RetryPolicy{
		MaxRetries:    getEnvAsInt("MAX_RETRIES", 3, logger),
		Base:          getEnvAsDuration("RATE_LIMIT_BACKOFF_BASE", time.Second, logger),
		RateLimitStep: getEnvAsDuration("RATE_LIMIT_BACKOFF_MULTIPLIER", time.Second, logger),
		MaxDelay:      30 * time.Second,
	}
	cfg.archive = newUpstreamClient("archive", cfg.httpClient, policy, logger)
	cfg.geocodeClient = newUpstreamClient("geocoding", cfg.httpClient, policy, logger)
	cfg.geocoder = NewOpenMeteoGeocodingService(cfg.geocodeURL, cfg.geocodeFetch)

	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		cfg.narrator = NewOpenAINarrator(
			apiKey,
			getEnv("OPENAI_URL", defaultOpenAIURL, logger),
			getEnv("OPENAI_MODEL", defaultOpenAIModel, logger),
			getEnvAsDuration("OPENAI_TIMEOUT", 20*time.Second, logger),
			cfg.httpClient,
			logger.With("component", "narrator"),
		)
	} else {
		logger.Info("OPENAI_API_KEY not set, narratives will use fallback lines")
		cfg.narrator = FallbackNarrator{}
	}

	return cfg, nil
}

// setupCache builds the configured key-value cache backend.
func (cfg *apiConfig) setupCache() error {
	switch cfg.cacheBackend {
	case "redis":
		redisURL, err := getRequiredEnv("REDIS_URL")
		if err != nil {
			return err
		}
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return fmt.Errorf("could not parse Redis URL: %w", err)
		}
		cfg.cache = NewRedisCache(redis.NewClient(opt), cfg.compressor)
	case "badger":
		path := getEnv("BADGER_PATH", "", cfg.logger)
		bc, err := NewBadgerCache(path, cfg.compressor)
		if err != nil {
			return err
		}
		cfg.badger = bc
		cfg.cache = bc
	default:
		return errors.New("CACHE_BACKEND must be one of: redis, badger")
	}
	return nil
}

// geocodeFetch serves geocoding requests through the response cache.
func (cfg *apiConfig) geocodeFetch(ctx context.Context, key, rawURL string) ([]byte, error) {
	return cfg.cachedGet(ctx, key, func(ctx context.Context) ([]byte, error) {
		return cfg.geocodeClient.get(ctx, rawURL, cfg.fetch.GeocodeTimeout)
	})
}

// Close releases resources held by the configuration.
func (cfg *apiConfig) Close() {
	if cfg.badger != nil {
		if err := cfg.badger.Close(); err != nil {
			cfg.logger.Warn("error closing badger", "error", err)
		}
	}
	if cfg.compressor != nil {
		cfg.compressor.Close()
	}
}
