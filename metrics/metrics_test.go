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

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccumulator_CumulativeLastWins(t *testing.T) {
	a := NewAccumulator("fuselage", prometheus.NewRegistry())

	a.ContributeTentative("stg", Snapshot{Counters: map[string]int64{"elements": 3}})
	a.ContributeTentative("stg", Snapshot{Counters: map[string]int64{"elements": 7, "bytes": 100}})
	a.ContributeFinal("stg", Snapshot{Counters: map[string]int64{"elements": 10, "bytes": 150}})

	got := a.Stage("stg")
	assert.Equal(t, int64(10), got.Counters["elements"])
	assert.Equal(t, int64(150), got.Counters["bytes"])
	assert.Equal(t, int64(1), a.BundlesCompleted("stg"))
}

func TestAccumulator_StagesIsolated(t *testing.T) {
	a := NewAccumulator("fuselage", prometheus.NewRegistry())

	a.ContributeFinal("stg1", Snapshot{Counters: map[string]int64{"elements": 1}})
	a.ContributeFinal("stg2", Snapshot{Counters: map[string]int64{"elements": 2}})

	assert.Equal(t, int64(1), a.Stage("stg1").Counters["elements"])
	assert.Equal(t, int64(2), a.Stage("stg2").Counters["elements"])
	assert.Equal(t, int64(1), a.BundlesCompleted("stg1"))
	assert.Equal(t, int64(0), a.BundlesCompleted("unknown"))
}

func TestAccumulator_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := NewAccumulator("fuselage", reg)

	a.ContributeTentative("stg", Snapshot{Counters: map[string]int64{"elements": 5}})
	a.ContributeFinal("stg", Snapshot{Counters: map[string]int64{"elements": 9}})

	n, err := testutil.GatherAndCount(reg,
		"fuselage_stage_counter",
		"fuselage_stage_bundles_completed_total",
		"fuselage_stage_progress_reports_total")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestAccumulator_StageCopyIsDetached(t *testing.T) {
	a := NewAccumulator("fuselage", prometheus.NewRegistry())
	a.ContributeTentative("stg", Snapshot{Counters: map[string]int64{"elements": 4}})

	snap := a.Stage("stg")
	snap.Counters["elements"] = 99
	assert.Equal(t, int64(4), a.Stage("stg").Counters["elements"])
}
