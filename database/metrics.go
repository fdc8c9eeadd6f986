/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/uptrace/bun"
)

// MetricsHook records query counts and latencies per SQL operation.
type MetricsHook struct {
	queriesTotal  *prometheus.CounterVec
	queryDuration *prometheus.HistogramVec
}

var _ bun.QueryHook = (*MetricsHook)(nil)

// NewMetricsHook creates the collectors under prefix and registers them with
// reg (prometheus.DefaultRegisterer when nil). Collectors that are already
// registered are reused, so several databases can share one registry.
func NewMetricsHook(prefix string, reg prometheus.Registerer) (*MetricsHook, error) {
	if prefix == "" {
		prefix = "querykit"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	queriesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: prefix,
		Subsystem: "db",
		Name:      "queries_total",
		Help:      "Total number of SQL queries by operation and status",
	}, []string{"operation", "status"})
	queryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: prefix,
		Subsystem: "db",
		Name:      "query_duration_seconds",
		Help:      "SQL query latency by operation",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})

	var err error
	if queriesTotal, err = registerOrReuse(reg, queriesTotal); err != nil {
		return nil, err
	}
	if queryDuration, err = registerOrReuse(reg, queryDuration); err != nil {
		return nil, err
	}
	return &MetricsHook{queriesTotal: queriesTotal, queryDuration: queryDuration}, nil
}

func registerOrReuse[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (h *MetricsHook) BeforeQuery(ctx context.Context, event *bun.QueryEvent) context.Context {
	return ctx
}

func (h *MetricsHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	operation := event.Operation()
	status := "success"
	if event.Err != nil && !errors.Is(event.Err, sql.ErrNoRows) {
		status = "error"
	}
	h.queriesTotal.WithLabelValues(operation, status).Inc()
	h.queryDuration.WithLabelValues(operation).Observe(time.Since(event.StartTime).Seconds())
}
