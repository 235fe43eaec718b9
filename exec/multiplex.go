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
	"sort"
	"sync"

	"golang.org/x/exp/maps"

	"github.com/fuselage-dev/fuselage/internal/errors"
)

// Multiplexer tags stage outputs with their union tag and collects them
// for the partition. The worker may push on multiple output streams of
// one bundle concurrently; collection is concurrency-safe, preserves
// append order within one tag, and guarantees no order across tags.
//
// A collection id outside the tag map is resolved through the timer
// delegate when one is configured; otherwise it is fatal.
type Multiplexer struct {
	tags   OutputTagMap
	timers OutputReceiverFactory // delegate for timer escape collections, may be nil

	mu      sync.Mutex
	records []UnionRecord
}

var _ OutputReceiverFactory = (*Multiplexer)(nil)

// NewMultiplexer returns a Multiplexer over the stage's fixed tag map.
// The tag assignment is immutable for the multiplexer's lifetime. timers
// may be nil for stages without declared timers.
func NewMultiplexer(tags OutputTagMap, timers OutputReceiverFactory) *Multiplexer {
	return &Multiplexer{tags: tags, timers: timers}
}

// Output resolves a collection id to its tagging sink.
func (m *Multiplexer) Output(collectionID string) (ElementReceiver, error) {
	if tag, ok := m.tags[collectionID]; ok {
		return &taggedReceiver{mux: m, tag: tag}, nil
	}
	if m.timers != nil {
		return m.timers.Output(collectionID)
	}
	known := maps.Keys(m.tags)
	sort.Strings(known)
	return nil, errors.Errorf("unknown output collection %v, known: %v", collectionID, known)
}

func (m *Multiplexer) add(rec UnionRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
}

// Results returns a copy of the collected records. Single consumer,
// after the partition's bundles have closed.
func (m *Multiplexer) Results() []UnionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]UnionRecord, len(m.records))
	copy(out, m.records)
	return out
}

// taggedReceiver appends each accepted element to the shared collector
// under its fixed tag.
type taggedReceiver struct {
	mux *Multiplexer
	tag int
}

func (r *taggedReceiver) Accept(_ context.Context, elm WindowedElement) error {
	r.mux.add(UnionRecord{Tag: r.tag, Elm: elm})
	return nil
}
