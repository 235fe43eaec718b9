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

// Package exec runs one compiled stage over one partition of input.
// The processor opens worker resources for the duration of the call,
// feeds the partition's elements through a bundle, and collects the
// stage's multiplexed outputs. Stages with timers get a second bundle
// after clocks advance past every set timer.
package exec

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fuselage-dev/fuselage/engine"
	"github.com/fuselage-dev/fuselage/internal/errors"
	"github.com/fuselage-dev/fuselage/metrics"
	"github.com/fuselage-dev/fuselage/stage"
	"github.com/fuselage-dev/fuselage/state"
	"github.com/fuselage-dev/fuselage/window"
)

// Options tunes a PartitionProcessor.
type Options struct {
	// BundleTimeout bounds one partition call end to end. Zero means no
	// deadline beyond the caller's context.
	BundleTimeout time.Duration
}

// PartitionProcessor executes a stage over partitions of its main input.
// Worker resources are scoped to each Process call; nothing persists
// between calls except the processor's own worker-local bag store, which
// is reset at the start of every stateful call.
//
// A processor is bound to one OS worker task at a time. Process must not
// be invoked concurrently on the same processor.
type PartitionProcessor struct {
	def    *stage.Definition
	tags   OutputTagMap
	create BundleFactoryCreator
	sides  *state.SideInputTable
	bags   *state.BagStore
	acc    *metrics.Accumulator
	opts   Options
}

// NewPartitionProcessor validates the stage descriptor against the output
// tag map and returns a processor for it. Every stage output must resolve
// either to a union tag or to a declared timer escape collection.
func NewPartitionProcessor(def *stage.Definition, tags OutputTagMap, create BundleFactoryCreator, sides *state.SideInputTable, acc *metrics.Accumulator, opts Options) (*PartitionProcessor, error) {
	if err := def.Validate(); err != nil {
		return nil, errors.WithContext(err, "building partition processor")
	}
	if create == nil {
		return nil, errors.Errorf("stage %v: no bundle factory creator", def.ID)
	}
	timerCols := def.TimerByCollection()
	for _, out := range def.OutputIDs {
		if _, ok := tags[out]; ok {
			continue
		}
		if _, ok := timerCols[out]; ok {
			continue
		}
		return nil, errors.Errorf("stage %v output %v has no union tag and is not a timer escape", def.ID, out)
	}
	if sides == nil {
		sides = state.NewSideInputTable()
	}
	return &PartitionProcessor{
		def:    def,
		tags:   tags,
		create: create,
		sides:  sides,
		bags:   state.NewBagStore(),
		acc:    acc,
		opts:   opts,
	}, nil
}

// Process executes the stage over one partition of input elements and
// returns the multiplexed output records. On any failure the partition
// produces no output: the result is nil and the error carries the first
// underlying cause.
func (p *PartitionProcessor) Process(ctx context.Context, inputs []WindowedElement) (out []UnionRecord, err error) {
	if p.opts.BundleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.BundleTimeout)
		defer cancel()
	}

	callID := uuid.NewString()
	slog.Debug("partition call starting", "stage", p.def, "call", callID, "elements", len(inputs))

	factory, err := p.create()
	if err != nil {
		return nil, errors.WithContextf(err, "opening bundle factory for stage %v", p.def.ID)
	}
	defer func() {
		// Resource release failure after a clean run still voids the
		// partition's output.
		if cerr := factory.Close(); cerr != nil && err == nil {
			out, err = nil, errors.WithContextf(cerr, "closing bundle factory for stage %v", p.def.ID)
		}
	}()

	sbf, err := factory.ForStage(p.def)
	if err != nil {
		return nil, errors.WithContextf(err, "binding stage %v", p.def.ID)
	}
	defer func() {
		if cerr := sbf.Close(); cerr != nil && err == nil {
			out, err = nil, errors.WithContextf(cerr, "closing stage factory for stage %v", p.def.ID)
		}
	}()

	st, err := state.NewDispatcher(p.def, p.sides, p.bags)
	if err != nil {
		return nil, err
	}
	progress := &progressForwarder{stageID: p.def.ID, acc: p.acc}

	if !p.def.HasTimers() {
		mux := NewMultiplexer(p.tags, nil)
		if err := p.processElements(ctx, sbf, mux, st, progress, inputs); err != nil {
			return nil, err
		}
		slog.Debug("partition call done", "stage", p.def.ID, "call", callID, "records", len(mux.Results()))
		return mux.Results(), nil
	}

	// Timer path. Timer-set events from the first bundle land on the
	// simulator; after end of input every clock advances to the maximum
	// timestamp and a second bundle delivers the eligible firings.
	sim := engine.NewSimulator()
	mux := NewMultiplexer(p.tags, NewTimerReceiverFactory(sim, p.def))

	if err := p.processElements(ctx, sbf, mux, st, progress, inputs); err != nil {
		return nil, err
	}
	if err := sim.Quiesce(); err != nil {
		return nil, errors.WithContextf(err, "quiescing timers for stage %v", p.def.ID)
	}
	if err := p.fireTimers(ctx, sbf, mux, st, progress, sim); err != nil {
		return nil, err
	}
	if sim.Pending() {
		// Timers set while firing are deliberately left unfired; input is
		// exhausted and the batch has nothing further to wait on.
		slog.Debug("leaving cascaded timers unfired", "stage", p.def.ID, "call", callID, "minHold", sim.MinHold())
	}

	slog.Debug("partition call done", "stage", p.def.ID, "call", callID, "records", len(mux.Results()))
	return mux.Results(), nil
}

// processElements runs the partition's main-input bundle: every element
// goes to the stage's main input receiver, then the bundle closes.
func (p *PartitionProcessor) processElements(ctx context.Context, sbf StageBundleFactory, mux *Multiplexer, st state.Handler, progress ProgressHandler, inputs []WindowedElement) (err error) {
	b, err := sbf.GetBundle(mux, st, progress)
	if err != nil {
		return errors.WithContextf(err, "opening element bundle for stage %v", p.def.ID)
	}
	defer func() {
		if cerr := b.Close(); cerr != nil && err == nil {
			err = errors.WithContextf(cerr, "closing element bundle for stage %v", p.def.ID)
		}
	}()

	recv, ok := b.InputReceivers()[p.def.InputID]
	if !ok {
		return errors.Errorf("stage %v bundle exposes no receiver for input %v", p.def.ID, p.def.InputID)
	}
	for _, elm := range inputs {
		if err := recv.Accept(ctx, elm); err != nil {
			return errors.WithContextf(err, "feeding stage %v input %v", p.def.ID, p.def.InputID)
		}
	}
	return nil
}

// fireTimers runs the firing bundle: every eligible timer is delivered to
// the input receiver named by its timer id.
func (p *PartitionProcessor) fireTimers(ctx context.Context, sbf StageBundleFactory, mux *Multiplexer, st state.Handler, progress ProgressHandler, sim *engine.Simulator) (err error) {
	b, err := sbf.GetBundle(mux, st, progress)
	if err != nil {
		return errors.WithContextf(err, "opening timer bundle for stage %v", p.def.ID)
	}
	defer func() {
		if cerr := b.Close(); cerr != nil && err == nil {
			err = errors.WithContextf(cerr, "closing timer bundle for stage %v", p.def.ID)
		}
	}()

	recvs := b.InputReceivers()
	return sim.FireEligible(func(t engine.Timer) error {
		recv, ok := recvs[t.TimerID]
		if !ok {
			return errors.Errorf("stage %v bundle exposes no receiver for timer %v", p.def.ID, t.TimerID)
		}
		if t.Key == nil {
			t.Key = sim.LastKey()
		}
		elm := WindowedElement{
			Value:     t,
			Timestamp: t.FireTime,
			Windows:   []window.Window{t.Window},
			Pane:      window.NoFiringPane(),
		}
		if err := recv.Accept(ctx, elm); err != nil {
			return errors.WithContextf(err, "delivering timer %v", t.TimerID)
		}
		return nil
	})
}

// progressForwarder bridges a bundle's progress callbacks to the metrics
// accumulator. A nil accumulator drops the snapshots.
type progressForwarder struct {
	stageID string
	acc     *metrics.Accumulator
}

func (f *progressForwarder) OnProgress(snap metrics.Snapshot) {
	if f.acc != nil {
		f.acc.ContributeTentative(f.stageID, snap)
	}
}

func (f *progressForwarder) OnCompleted(snap metrics.Snapshot) {
	if f.acc != nil {
		f.acc.ContributeFinal(f.stageID, snap)
	}
}
