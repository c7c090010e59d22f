// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics provides opt-in, low-overhead Prometheus counters for
// the pipeline stages: global-label-only metrics (no unbounded
// cardinality) and a single /metrics endpoint. The metrics are always
// updated in memory; nothing is exposed until Serve is called.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ingestedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bgpranking_intake_records_total",
		Help: "Total intake records produced by the parser, by source.",
	}, []string{"source"})

	sanitizedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bgpranking_sanitized_records_total",
		Help: "Total records successfully sanitized and enqueued for enrichment, by source.",
	}, []string{"source"})

	discardedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bgpranking_discarded_records_total",
		Help: "Total records dropped, by stage and reason.",
	}, []string{"stage", "reason"})

	enrichedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bgpranking_enriched_facts_total",
		Help: "Total facts written to durable storage, by source.",
	}, []string{"source"})

	retriedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bgpranking_enrichment_retries_total",
		Help: "Total records re-queued for enrichment because routing info was not yet known.",
	}, []string{"source"})

	batchSize = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bgpranking_batch_size",
		Help:    "Distribution of batch sizes processed per tick, by stage.",
		Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 100},
	}, []string{"stage"})

	externalLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bgpranking_external_call_seconds",
		Help:    "Latency of calls to the external IP-to-ASN history service, by operation.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	rankedDays = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bgpranking_ranked_days_total",
		Help: "Total number of per-day ranking recomputations.",
	})
)

func init() {
	prometheus.MustRegister(ingestedTotal, sanitizedTotal, discardedTotal, enrichedTotal,
		retriedTotal, batchSize, externalLatency, rankedDays)
}

// ObserveIntake records one parsed record for source.
func ObserveIntake(source string) { ingestedTotal.WithLabelValues(source).Inc() }

// ObserveSanitized records one record that passed sanitization.
func ObserveSanitized(source string) { sanitizedTotal.WithLabelValues(source).Inc() }

// ObserveDiscarded records one record dropped by stage for reason.
func ObserveDiscarded(stage, reason string) { discardedTotal.WithLabelValues(stage, reason).Inc() }

// ObserveEnriched records one fact written for source.
func ObserveEnriched(source string) { enrichedTotal.WithLabelValues(source).Inc() }

// ObserveRetried records one record re-queued for later enrichment.
func ObserveRetried(source string) { retriedTotal.WithLabelValues(source).Inc() }

// ObserveBatch records the size of a batch processed by stage.
func ObserveBatch(stage string, size int) {
	if size <= 0 {
		return
	}
	batchSize.WithLabelValues(stage).Observe(float64(size))
}

// ObserveExternalCall records the latency of a call to the external
// IP-to-ASN history service.
func ObserveExternalCall(operation string, d time.Duration) {
	externalLatency.WithLabelValues(operation).Observe(d.Seconds())
}

// ObserveRanked records that one day's ranking was recomputed.
func ObserveRanked() { rankedDays.Inc() }

// Serve exposes /metrics on addr in a background goroutine. Errors are
// swallowed; a failed metrics endpoint should never take down the
// pipeline.
func Serve(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		_ = server.ListenAndServe()
	}()
}
