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

package workflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type workflowMetrics struct {
	submissions prometheus.Counter
	decisions   *prometheus.CounterVec
}

func (m *workflowMetrics) init(promRegistry prometheus.Registerer) {
	promautoFactory := promauto.With(promRegistry)
	m.submissions = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "aipx_workflow_submissions_total",
		Help: "total number of submitted items",
	})
	m.decisions = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aipx_workflow_decisions_total",
			Help: "total number of recorded decisions by decision and resulting item status",
		},
		[]string{"decision", "status"},
	)
}
