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

// Package stage describes fused, externally-compiled processing stages.
// A stage is a black box to the execution adapter: the descriptor only
// names the collections, timers, and states the worker will talk about.
package stage

import (
	"log/slog"

	"github.com/fuselage-dev/fuselage/engine"
	"github.com/fuselage-dev/fuselage/internal/errors"
)

// TimerSpec declares one timer of a stage. Timer-set events escape the
// stage on CollectionID, and firings are delivered back to the input
// receiver named TimerID.
type TimerSpec struct {
	TimerID      string
	CollectionID string
	Domain       engine.TimeDomain
}

// UserStateSpec declares one keyed bag state of a stage.
type UserStateSpec struct {
	StateID string
}

// SideInputSpec declares one broadcast side input of a stage, by the
// collection id the stage reads it under.
type SideInputSpec struct {
	CollectionID string
}

// Definition is an externally-compiled stage descriptor. It is immutable
// for the duration of a job; the execution adapter holds it read-only.
type Definition struct {
	// ID identifies the stage, and keys its metrics.
	ID string
	// InputID is the main input collection, fed element by element.
	InputID string
	// OutputIDs are the collections the stage emits to. Each must resolve
	// through the caller's output tag map.
	OutputIDs []string

	Timers     []TimerSpec
	UserStates []UserStateSpec
	SideInputs []SideInputSpec
}

// Validate reports structural problems with the descriptor.
func (d *Definition) Validate() error {
	if d.ID == "" {
		return errors.New("stage has no id")
	}
	if d.InputID == "" {
		return errors.Errorf("stage %v has no input collection", d.ID)
	}
	seen := map[string]bool{}
	for _, ts := range d.Timers {
		if ts.TimerID == "" || ts.CollectionID == "" {
			return errors.Errorf("stage %v declares an incomplete timer spec %+v", d.ID, ts)
		}
		if seen[ts.TimerID] {
			return errors.Errorf("stage %v declares timer %q twice", d.ID, ts.TimerID)
		}
		seen[ts.TimerID] = true
	}
	return nil
}

// HasTimers reports whether the stage declares any timers. Timer
// simulation activates only when it does.
func (d *Definition) HasTimers() bool {
	return len(d.Timers) > 0
}

// HasUserState reports whether the stage declares any keyed user state.
func (d *Definition) HasUserState() bool {
	return len(d.UserStates) > 0
}

// LogValue makes the descriptor loggable as a compact group.
func (d *Definition) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("ID", d.ID),
		slog.String("input", d.InputID),
		slog.Int("outputs", len(d.OutputIDs)),
		slog.Int("timers", len(d.Timers)),
		slog.Int("userStates", len(d.UserStates)),
		slog.Int("sideInputs", len(d.SideInputs)),
	)
}

// TimerByCollection maps each timer's escape collection to its spec.
func (d *Definition) TimerByCollection() map[string]TimerSpec {
	m := make(map[string]TimerSpec, len(d.Timers))
	for _, ts := range d.Timers {
		m[ts.CollectionID] = ts
	}
	return m
}
