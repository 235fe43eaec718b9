// Licensed to the Apache Software Foundation (ASF) under one or more
// contributor license agreements.  See the NOTICE file distributed with
// this work for additional information regarding copyright ownership.
// The ASF licenses this file to You under the Apache License, Version 2.0
// (the "License"); you may not use this file except in compliance with
// the License.  You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics aggregates the execution metrics bundles report through
// their progress callback. One Accumulator is shared by every partition
// of a job; values are keyed by stage and exported as prometheus
// collectors.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Snapshot is one progress report from a bundle: cumulative counter
// values as of the report. Snapshots are cumulative, not deltas, so
// merging is last-wins per counter.
type Snapshot struct {
	Counters map[string]int64
}

// stageAggregate is the merged view of one stage's metrics.
type stageAggregate struct {
	counters         map[string]int64
	bundlesCompleted int64
}

// Accumulator merges bundle progress into per-stage aggregates. Tentative
// snapshots arrive zero or more times per bundle, a final snapshot
// exactly once on completion. Safe for concurrent partitions.
type Accumulator struct {
	mu     sync.Mutex
	stages map[string]*stageAggregate

	counterGauge *prometheus.GaugeVec
	bundles      *prometheus.CounterVec
	progress     *prometheus.CounterVec
}

// NewAccumulator returns an Accumulator whose collectors are registered
// with reg under the given namespace. A nil reg uses the default
// registerer.
func NewAccumulator(namespace string, reg prometheus.Registerer) *Accumulator {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &Accumulator{
		stages: map[string]*stageAggregate{},
		counterGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stage_counter",
			Help:      "Latest cumulative value of a stage execution counter",
		}, []string{"stage", "counter"}),
		bundles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_bundles_completed_total",
			Help:      "Total number of bundles completed per stage",
		}, []string{"stage"}),
		progress: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_progress_reports_total",
			Help:      "Total number of tentative progress reports merged per stage",
		}, []string{"stage"}),
	}
	reg.MustRegister(a.counterGauge, a.bundles, a.progress)
	return a
}

func (a *Accumulator) aggregate(stageID string) *stageAggregate {
	agg, ok := a.stages[stageID]
	if !ok {
		agg = &stageAggregate{counters: map[string]int64{}}
		a.stages[stageID] = agg
	}
	return agg
}

func (a *Accumulator) merge(stageID string, snap Snapshot) *stageAggregate {
	agg := a.aggregate(stageID)
	for name, v := range snap.Counters {
		agg.counters[name] = v
		a.counterGauge.WithLabelValues(stageID, name).Set(float64(v))
	}
	return agg
}

// ContributeTentative merges an incremental progress snapshot for a stage.
func (a *Accumulator) ContributeTentative(stageID string, snap Snapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.merge(stageID, snap)
	a.progress.WithLabelValues(stageID).Inc()
}

// ContributeFinal merges a bundle's completion snapshot for a stage and
// counts the bundle as completed.
func (a *Accumulator) ContributeFinal(stageID string, snap Snapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	agg := a.merge(stageID, snap)
	agg.bundlesCompleted++
	a.bundles.WithLabelValues(stageID).Inc()
}

// Stage returns a copy of the merged counters for a stage.
func (a *Accumulator) Stage(stageID string) Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	agg, ok := a.stages[stageID]
	if !ok {
		return Snapshot{Counters: map[string]int64{}}
	}
	out := make(map[string]int64, len(agg.counters))
	for name, v := range agg.counters {
		out[name] = v
	}
	return Snapshot{Counters: out}
}

// BundlesCompleted returns the number of completed bundles recorded for a
// stage.
func (a *Accumulator) BundlesCompleted(stageID string) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	agg, ok := a.stages[stageID]
	if !ok {
		return 0
	}
	return agg.bundlesCompleted
}
