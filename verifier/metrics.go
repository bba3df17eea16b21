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

package verifier

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type verifierMetrics struct {
	runs      *prometheus.CounterVec
	lastCount prometheus.Gauge
}

func (m *verifierMetrics) init(promRegistry prometheus.Registerer) {
	promautoFactory := promauto.With(promRegistry)
	m.runs = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aipx_verifier_runs_total",
			Help: "total number of ledger verifications by result status",
		},
		[]string{"status"},
	)
	m.lastCount = promautoFactory.NewGauge(prometheus.GaugeOpts{
		Name: "aipx_verifier_last_entry_count",
		Help: "number of entries checked by the most recent verification",
	})
}
