package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// This file defines the Prometheus metrics that are exposed by the application.

// httpRequestsTotal tracks served HTTP requests by path, method and status code.
var httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "rainodds_http_requests_total",
	Help: "Total number of HTTP requests by path, method and code.",
}, []string{"path", "method", "code"})

// externalRequestDuration observes the latency of outgoing requests per host.
var externalRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "rainodds_external_request_duration_seconds",
	Help:    "Duration of outgoing HTTP requests by host.",
	Buckets: prometheus.DefBuckets,
}, []string{"host"})

// upstreamRequestsTotal counts upstream attempts by outcome
// (success, rate_limited, error, circuit_open).
var upstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "rainodds_upstream_requests_total",
	Help: "Total number of upstream request attempts by upstream and outcome.",
}, []string{"upstream", "outcome"})

// cacheLookupsTotal counts response cache lookups by tier and result.
var cacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "rainodds_cache_lookups_total",
	Help: "Total number of response cache lookups by tier and result.",
}, []string{"tier", "result"})

// hourlyYearsFetched counts per-year hourly fetches by result (ok, missing).
var hourlyYearsFetched = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "rainodds_hourly_years_fetched_total",
	Help: "Total number of per-year hourly series fetched by result.",
}, []string{"result"})
