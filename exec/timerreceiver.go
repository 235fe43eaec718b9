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
	"context"

	"github.com/fuselage-dev/fuselage/engine"
	"github.com/fuselage-dev/fuselage/internal/errors"
	"github.com/fuselage-dev/fuselage/stage"
)

// TimerReceiverFactory resolves a stage's timer escape collections to
// receivers that record timer-set events on the partition's simulator.
// Installed as the multiplexer's delegate on the timer path.
type TimerReceiverFactory struct {
	sim   *engine.Simulator
	specs map[string]stage.TimerSpec
}

var _ OutputReceiverFactory = (*TimerReceiverFactory)(nil)

// NewTimerReceiverFactory binds the stage's declared timers to sim.
func NewTimerReceiverFactory(sim *engine.Simulator, def *stage.Definition) *TimerReceiverFactory {
	return &TimerReceiverFactory{sim: sim, specs: def.TimerByCollection()}
}

// Output resolves a timer escape collection to its recording receiver.
func (f *TimerReceiverFactory) Output(collectionID string) (ElementReceiver, error) {
	spec, ok := f.specs[collectionID]
	if !ok {
		return nil, errors.Errorf("collection %v is not a declared timer escape", collectionID)
	}
	return &timerSetReceiver{sim: f.sim, spec: spec}, nil
}

// timerSetReceiver interprets elements pushed on a timer escape
// collection as timer-set events.
type timerSetReceiver struct {
	sim  *engine.Simulator
	spec stage.TimerSpec
}

func (r *timerSetReceiver) Accept(_ context.Context, elm WindowedElement) error {
	t, ok := elm.Value.(engine.Timer)
	if !ok {
		return errors.Errorf("timer collection %v received %T, want engine.Timer", r.spec.CollectionID, elm.Value)
	}
	// The declaration is authoritative for identity and domain.
	t.TimerID = r.spec.TimerID
	t.Domain = r.spec.Domain
	if t.Window == nil && len(elm.Windows) > 0 {
		t.Window = elm.Windows[0]
	}
	if t.FireTime == 0 {
		t.FireTime = elm.Timestamp
	}
	return r.sim.SetTimer(t)
}
