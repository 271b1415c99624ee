// Copyright 2025 AxonFlow
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

package bridge

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metrics
var (
	promRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_runs_total",
			Help: "Total number of runs dispatched by the bridge",
		},
		[]string{"kind", "status"},
	)
	promRunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bridge_run_duration_milliseconds",
			Help:    "Run duration in milliseconds",
			Buckets: []float64{10, 50, 100, 500, 1000, 5000, 10000, 30000, 60000},
		},
		[]string{"kind"},
	)
	promStreamChunks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bridge_stream_chunks_total",
			Help: "Total number of chunks forwarded on streamed runs",
		},
	)
	promRejectedRequests = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bridge_rejected_requests_total",
			Help: "Total number of run requests rejected before execution",
		},
	)
)

func init() {
	// Register Prometheus metrics
	prometheus.MustRegister(promRunsTotal)
	prometheus.MustRegister(promRunDuration)
	prometheus.MustRegister(promStreamChunks)
	prometheus.MustRegister(promRejectedRequests)
}
