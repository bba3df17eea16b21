// Copyright 2025 Blink Labs Software
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

package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type ledgerMetrics struct {
	entriesAppended *prometheus.CounterVec
	appendRetries   prometheus.Counter
	tailSequence    prometheus.Gauge
	unitLatency     prometheus.Histogram
}

func (m *ledgerMetrics) init(promRegistry prometheus.Registerer) {
	promautoFactory := promauto.With(promRegistry)
	m.entriesAppended = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aipx_ledger_entries_appended_total",
			Help: "total number of ledger entries appended",
		},
		[]string{"event_type"},
	)
	m.appendRetries = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "aipx_ledger_append_retries_total",
		Help: "total number of write units retried after a store conflict",
	})
	m.tailSequence = promautoFactory.NewGauge(prometheus.GaugeOpts{
		Name: "aipx_ledger_tail_sequence",
		Help: "sequence number of the most recent ledger entry",
	})
	m.unitLatency = promautoFactory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aipx_ledger_write_unit_duration_seconds",
			Help:    "duration of ledger write units including retries",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15), // 0.5ms to ~8s
		},
	)
}
