// Copyright (c) 2026 John Earle
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

// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "supportdesk"

var (
	// IngestResults counts ingested messages by outcome (created, skipped, failed).
	IngestResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "messages_total",
		Help:      "Inbound messages processed, labeled by outcome",
	}, []string{"outcome"})

	// PollDuration observes full mailbox poll cycles.
	PollDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "poll_duration_seconds",
		Help:      "Duration of mailbox poll cycles",
		Buckets:   prometheus.DefBuckets,
	})

	// Classifications counts classification runs by result (done, fallback, failed).
	Classifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "agent",
		Name:      "classifications_total",
		Help:      "Case classifications, labeled by result",
	}, []string{"result"})

	// ModelLatency observes text-generation calls, labeled by status.
	ModelLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "llm",
		Name:      "request_duration_seconds",
		Help:      "Latency of text-generation requests",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60},
	}, []string{"status"})

	// Notifications counts escalation alerts by result (sent, failed).
	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notify",
		Name:      "alerts_total",
		Help:      "Escalation alerts, labeled by result",
	}, []string{"result"})

	// Replies counts outbound replies by result (sent, failed).
	Replies = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reply",
		Name:      "replies_total",
		Help:      "Outbound replies, labeled by result",
	}, []string{"result"})

	// CasesReaped counts cases deleted by the lifecycle reaper.
	CasesReaped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reaper",
		Name:      "cases_deleted_total",
		Help:      "Completed cases removed after retention",
	})

	// TaskPanics counts recovered panics in background tasks.
	TaskPanics = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tasks",
		Name:      "panics_total",
		Help:      "Panics recovered at the task boundary",
	})

	// TasksRejected counts jobs refused because the backlog was full.
	TasksRejected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tasks",
		Name:      "rejected_total",
		Help:      "Jobs refused because the task backlog was full",
	})
)

// ObserveModelCall records one text-generation call.
func ObserveModelCall(start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	ModelLatency.WithLabelValues(status).Observe(time.Since(start).Seconds())
}

// Result maps an error to the sent/failed label pair used by outbound counters.
func Result(err error) string {
	if err != nil {
		return "failed"
	}
	return "sent"
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
