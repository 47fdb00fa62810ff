// Command scraper forwards the rainodds metrics to Google Cloud Monitoring.
//
// It runs as a separate container triggered on a schedule. Every request
// scrapes the /metrics endpoint of the API, keeps the rainodds_* families,
// converts them to Managed Service for Prometheus time series and writes them
// in batches.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"os"
	"strings"
	"time"

	monitoring "cloud.google.com/go/monitoring/apiv3/v2"
	"cloud.google.com/go/monitoring/apiv3/v2/monitoringpb"
	"github.com/joho/godotenv"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/genproto/googleapis/api/distribution"
	"google.golang.org/genproto/googleapis/api/metric"
	"google.golang.org/genproto/googleapis/api/monitoredres"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// maxSeriesPerRequest is the Cloud Monitoring limit for one CreateTimeSeries call.
const maxSeriesPerRequest = 200

type scraperConfig struct {
	MetricsURL   string
	ProjectID    string
	Location     string
	Namespace    string
	MetricPrefix string
}

func loadConfig() (scraperConfig, error) {
	cfg := scraperConfig{
		MetricsURL:   os.Getenv("METRICS_URL"),
		ProjectID:    os.Getenv("PROJECT_ID"),
		Location:     envOr("MONITORING_LOCATION", "europe-west1"),
		Namespace:    envOr("MONITORING_NAMESPACE", "rainodds"),
		MetricPrefix: envOr("METRIC_PREFIX", "rainodds_"),
	}
	if cfg.MetricsURL == "" {
		return scraperConfig{}, fmt.Errorf("environment variable METRICS_URL must be set")
	}
	if cfg.ProjectID == "" {
		return scraperConfig{}, fmt.Errorf("environment variable PROJECT_ID must be set")
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// timeSeriesWriter is the part of the monitoring client the scraper uses.
type timeSeriesWriter interface {
	CreateTimeSeries(ctx context.Context, req *monitoringpb.CreateTimeSeriesRequest) error
}

type scraper struct {
	cfg        scraperConfig
	httpClient *http.Client
	logger     *slog.Logger
	newWriter  func(ctx context.Context) (timeSeriesWriter, func() error, error)
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, relying on environment variables")
	}

	port := envOr("PORT", "8080")
	s := &scraper{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		newWriter:  newMonitoringWriter,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.scrapeHandler)

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       20 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("starting server", "port", port)
	if err := server.ListenAndServe(); err != nil {
		logger.Error("failed to start server", "error", err)
		os.Exit(1)
	}
}

func newMonitoringWriter(ctx context.Context) (timeSeriesWriter, func() error, error) {
	client, err := monitoring.NewMetricClient(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create monitoring client: %w", err)
	}
	return clientWriter{client}, client.Close, nil
}

type clientWriter struct {
	client *monitoring.MetricClient
}

func (w clientWriter) CreateTimeSeries(ctx context.Context, req *monitoringpb.CreateTimeSeriesRequest) error {
	return w.client.CreateTimeSeries(ctx, req)
}

func (s *scraper) scrapeHandler(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("scrape request received")

	cfg, err := loadConfig()
	if err != nil {
		s.logger.Error("invalid scraper configuration", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.cfg = cfg

	n, err := s.scrapeAndIngest(r.Context())
	if err != nil {
		s.logger.Error("error during scrape and ingest", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.logger.Info("successfully scraped and ingested metrics", "series", n)
	fmt.Fprintln(w, "Success")
}

// scrapeAndIngest fetches, converts and writes the metrics and returns the
// number of time series written.
func (s *scraper) scrapeAndIngest(ctx context.Context) (int, error) {
	families, err := s.fetchMetricFamilies(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch metrics: %w", err)
	}

	series := s.toTimeSeries(families, time.Now())
	if len(series) == 0 {
		s.logger.Info("no metric samples found to ingest")
		return 0, nil
	}

	writer, closeFn, err := s.newWriter(ctx)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := closeFn(); err != nil {
			s.logger.Warn("error closing monitoring client", "error", err)
		}
	}()

	for start := 0; start < len(series); start += maxSeriesPerRequest {
		end := min(start+maxSeriesPerRequest, len(series))
		req := &monitoringpb.CreateTimeSeriesRequest{
			Name:       "projects/" + s.cfg.ProjectID,
			TimeSeries: series[start:end],
		}
		if err := writer.CreateTimeSeries(ctx, req); err != nil {
			return start, fmt.Errorf("failed to write time series batch %d-%d: %w", start, end, err)
		}
	}
	return len(series), nil
}

func (s *scraper) fetchMetricFamilies(ctx context.Context) (map[string]*dto.MetricFamily, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.MetricsURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http request failed with status code %d", resp.StatusCode)
	}
	return parseExposition(resp.Body)
}

func parseExposition(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse prometheus metrics: %w", err)
	}
	return families, nil
}

// toTimeSeries converts the families whose name carries the configured
// prefix. Counters, gauges and untyped metrics become double points and
// histograms become distributions. Summaries are skipped.
func (s *scraper) toTimeSeries(families map[string]*dto.MetricFamily, at time.Time) []*monitoringpb.TimeSeries {
	resource := &monitoredres.MonitoredResource{
		Type: "prometheus_target",
		Labels: map[string]string{
			"project_id": s.cfg.ProjectID,
			"location":   s.cfg.Location,
			"cluster":    "__gce__",
			"namespace":  s.cfg.Namespace,
			"job":        s.cfg.Namespace,
			"instance":   s.cfg.MetricsURL,
		},
	}
	now := timestamppb.New(at)

	var out []*monitoringpb.TimeSeries
	for name, mf := range families {
		if !strings.HasPrefix(name, s.cfg.MetricPrefix) {
			continue
		}
		for _, m := range mf.GetMetric() {
			var point *monitoringpb.Point
			suffix := ""
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				point = doublePoint(now, m.GetCounter().GetValue())
				suffix = "/counter"
			case dto.MetricType_GAUGE:
				point = doublePoint(now, m.GetGauge().GetValue())
				suffix = "/gauge"
			case dto.MetricType_UNTYPED:
				point = doublePoint(now, m.GetUntyped().GetValue())
				suffix = "/unknown"
			case dto.MetricType_HISTOGRAM:
				point = distributionPoint(now, m.GetHistogram(), s.logger)
				suffix = "/histogram"
			default:
				s.logger.Debug("skipping metric with unhandled type", "metric", name, "type", mf.GetType().String())
				continue
			}

			labels := make(map[string]string, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			out = append(out, &monitoringpb.TimeSeries{
				Metric: &metric.Metric{
					Type:   "prometheus.googleapis.com/" + name + suffix,
					Labels: labels,
				},
				Resource: resource,
				Points:   []*monitoringpb.Point{point},
			})
		}
	}
	return out
}

func doublePoint(timestamp *timestamppb.Timestamp, value float64) *monitoringpb.Point {
	return &monitoringpb.Point{
		Interval: &monitoringpb.TimeInterval{
			EndTime: timestamp,
		},
		Value: &monitoringpb.TypedValue{
			Value: &monitoringpb.TypedValue_DoubleValue{
				DoubleValue: value,
			},
		},
	}
}

// distributionPoint converts cumulative Prometheus buckets into per-bucket
// counts. The trailing +Inf bucket becomes the overflow bucket.
func distributionPoint(timestamp *timestamppb.Timestamp, h *dto.Histogram, logger *slog.Logger) *monitoringpb.Point {
	buckets := h.GetBucket()
	bounds := make([]float64, 0, len(buckets))
	counts := make([]int64, 0, len(buckets)+1)
	var previous uint64

	for _, b := range buckets {
		if math.IsInf(b.GetUpperBound(), +1) {
			continue
		}
		bounds = append(bounds, b.GetUpperBound())
		counts = append(counts, clampInt64(b.GetCumulativeCount()-previous, logger))
		previous = b.GetCumulativeCount()
	}
	// Samples above the last finite bound.
	counts = append(counts, clampInt64(h.GetSampleCount()-previous, logger))

	var mean float64
	if h.GetSampleCount() > 0 {
		mean = h.GetSampleSum() / float64(h.GetSampleCount())
	}

	dist := &distribution.Distribution{
		Count: clampInt64(h.GetSampleCount(), logger),
		Mean:  mean,
		BucketOptions: &distribution.Distribution_BucketOptions{
			Options: &distribution.Distribution_BucketOptions_ExplicitBuckets{
				ExplicitBuckets: &distribution.Distribution_BucketOptions_Explicit{
					Bounds: bounds,
				},
			},
		},
		BucketCounts: counts,
	}

	return &monitoringpb.Point{
		Interval: &monitoringpb.TimeInterval{
			EndTime: timestamp,
		},
		Value: &monitoringpb.TypedValue{
			Value: &monitoringpb.TypedValue_DistributionValue{
				DistributionValue: dist,
			},
		},
	}
}

func clampInt64(v uint64, logger *slog.Logger) int64 {
	if v > math.MaxInt64 {
		logger.Warn("count exceeds MaxInt64, capping value", "value", v)
		return math.MaxInt64
	}
	return int64(v)
}
