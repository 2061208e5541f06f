// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package editor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("aleutian.reduce.editor")

var (
	tryTotal         metric.Int64Counter
	oracleDuration   metric.Float64Histogram
	oracleErrors     metric.Int64Counter
	bytesRemoved     metric.Int64Counter
	checkpointErrors metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// metricsEnabled controls whether metrics are recorded.
var metricsEnabled atomic.Bool

func init() {
	metricsEnabled.Store(true)
}

// SetMetricsEnabled controls whether metrics are recorded.
//
// Thread Safety: Safe for concurrent use.
func SetMetricsEnabled(enabled bool) {
	metricsEnabled.Store(enabled)
}

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		tryTotal, err = meter.Int64Counter(
			"reduce_editor_try_total",
			metric.WithDescription("Total try-remove attempts by pass and outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		oracleDuration, err = meter.Float64Histogram(
			"reduce_oracle_duration_seconds",
			metric.WithDescription("Oracle round-trip latency"),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120),
		)
		if err != nil {
			metricsErr = err
			return
		}

		oracleErrors, err = meter.Int64Counter(
			"reduce_oracle_errors_total",
			metric.WithDescription("Oracle invocations that produced no verdict"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		bytesRemoved, err = meter.Int64Counter(
			"reduce_bytes_removed_total",
			metric.WithDescription("Bytes deleted by accepted removals"),
			metric.WithUnit("By"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		checkpointErrors, err = meter.Int64Counter(
			"reduce_checkpoint_errors_total",
			metric.WithDescription("Checkpoint recordings that failed"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordTry(ctx context.Context, pass, outcome string, oracleTime time.Duration, removed int) {
	if !metricsEnabled.Load() || initMetrics() != nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("pass", pass),
		attribute.String("outcome", outcome),
	)
	tryTotal.Add(ctx, 1, attrs)
	oracleDuration.Record(ctx, oracleTime.Seconds(), attrs)
	if removed > 0 {
		bytesRemoved.Add(ctx, int64(removed), metric.WithAttributes(attribute.String("pass", pass)))
	}
}

func recordOracleError(ctx context.Context, pass, cause string) {
	if !metricsEnabled.Load() || initMetrics() != nil {
		return
	}
	oracleErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("pass", pass),
		attribute.String("cause", cause),
	))
}

func recordCheckpointError(ctx context.Context) {
	if !metricsEnabled.Load() || initMetrics() != nil {
		return
	}
	checkpointErrors.Add(ctx, 1)
}
