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

package exec

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fuselage-dev/fuselage/config"
	"github.com/fuselage-dev/fuselage/metrics"
)

// Configure derives the processor options and the shared metrics
// accumulator from one configuration variant. The accumulator is built
// once per worker and shared by every processor it hosts; a nil reg
// uses the default registerer.
func Configure(c config.Characteristic, reg prometheus.Registerer) (Options, *metrics.Accumulator) {
	return Options{BundleTimeout: c.BundleTimeout},
		metrics.NewAccumulator(c.MetricsNamespace, reg)
}
