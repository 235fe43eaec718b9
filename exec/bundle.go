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

	"github.com/fuselage-dev/fuselage/metrics"
	"github.com/fuselage-dev/fuselage/stage"
	"github.com/fuselage-dev/fuselage/state"
)

// The worker side of execution is an external collaborator. These
// interfaces are what the partition processor needs from it; the outer
// engine supplies implementations that speak the actual worker protocol.

// ElementReceiver accepts elements one at a time for a named bundle
// input. Accept blocks on backpressure from the worker-facing channel and
// fails on backpressure timeout or worker failure.
type ElementReceiver interface {
	Accept(ctx context.Context, elm WindowedElement) error
}

// OutputReceiverFactory resolves an output collection id to the sink the
// worker should push that collection's elements to. Resolution of an
// unknown id fails; outputs are never silently dropped.
type OutputReceiverFactory interface {
	Output(collectionID string) (ElementReceiver, error)
}

// ProgressHandler observes a bundle's execution metrics: OnProgress zero
// or more times with incremental snapshots, OnCompleted exactly once with
// the final snapshot.
type ProgressHandler interface {
	OnProgress(snap metrics.Snapshot)
	OnCompleted(snap metrics.Snapshot)
}

// Bundle is one execution session of a stage over a batch of elements.
type Bundle interface {
	// InputReceivers exposes the bundle's named input receivers, one per
	// declared main input or timer id.
	InputReceivers() map[string]ElementReceiver
	// Close signals end of input and blocks until the worker confirms the
	// bundle completed or failed.
	Close() error
}

// StageBundleFactory opens bundles for one stage. Scoped: Close releases
// the stage's worker resources.
type StageBundleFactory interface {
	GetBundle(out OutputReceiverFactory, st state.Handler, progress ProgressHandler) (Bundle, error)
	Close() error
}

// BundleFactory is the per-partition-call scope for worker resources.
type BundleFactory interface {
	ForStage(def *stage.Definition) (StageBundleFactory, error)
	Close() error
}

// BundleFactoryCreator opens a fresh BundleFactory scope. Invoked once
// per partition call.
type BundleFactoryCreator func() (BundleFactory, error)
