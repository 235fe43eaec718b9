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

package state

import (
	"sync"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/fuselage-dev/fuselage/internal/errors"
)

// DecodeFunc is the decode rule for one side input: it turns one
// serialized element into its value.
type DecodeFunc func([]byte) (any, error)

// sideInputEntry holds one broadcast collection: the serialized elements
// and the rule to decode them. Decoding happens on first lookup and the
// result is cached, so repeated lookups observe the identical sequence.
type sideInputEntry struct {
	raw [][]byte
	dec DecodeFunc

	once    sync.Once
	decoded []any
	err     error
}

func (e *sideInputEntry) lookup() ([]any, error) {
	e.once.Do(func() {
		decoded := make([]any, 0, len(e.raw))
		for i, b := range e.raw {
			v, err := e.dec(b)
			if err != nil {
				e.err = errors.Wrapf(err, "decoding side input element %d", i)
				return
			}
			decoded = append(decoded, v)
		}
		e.decoded = decoded
	})
	return e.decoded, e.err
}

// SideInputTable is the per-job broadcast table from side-input collection
// id to its serialized elements and decode rule. It is written once,
// before any partition runs, and read-only afterwards; lookups are safe
// for concurrent readers across partitions.
type SideInputTable struct {
	mu      sync.RWMutex
	entries map[string]*sideInputEntry
}

// NewSideInputTable returns an empty table.
func NewSideInputTable() *SideInputTable {
	return &SideInputTable{entries: map[string]*sideInputEntry{}}
}

// Put registers the broadcast elements for a collection. Registering the
// same collection twice is a population bug and fails.
func (t *SideInputTable) Put(collectionID string, elements [][]byte, dec DecodeFunc) error {
	if dec == nil {
		return errors.Errorf("side input %v registered without a decode rule", collectionID)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[collectionID]; ok {
		return errors.Errorf("side input %v registered twice", collectionID)
	}
	t.entries[collectionID] = &sideInputEntry{raw: elements, dec: dec}
	return nil
}

// PutFramed registers a collection whose broadcast is a single buffer of
// varint length-prefixed elements, as produced by the broadcast layer.
func (t *SideInputTable) PutFramed(collectionID string, buf []byte, dec DecodeFunc) error {
	elements, err := splitFramed(buf)
	if err != nil {
		return errors.WithContextf(err, "unframing side input %v", collectionID)
	}
	return t.Put(collectionID, elements, dec)
}

// Lookup returns the decoded elements of a collection. The decoded
// sequence is stable: every lookup of the same id returns the same
// values in the same order.
func (t *SideInputTable) Lookup(collectionID string) ([]any, error) {
	t.mu.RLock()
	e, ok := t.entries[collectionID]
	t.mu.RUnlock()
	if !ok {
		return nil, errors.Errorf("no broadcast data for side input %v", collectionID)
	}
	return e.lookup()
}

// Has reports whether the table holds broadcast data for a collection.
func (t *SideInputTable) Has(collectionID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.entries[collectionID]
	return ok
}

// splitFramed splits a buffer of varint length-prefixed elements.
func splitFramed(buf []byte) ([][]byte, error) {
	var out [][]byte
	for cursor := 0; cursor < len(buf); {
		l, n := protowire.ConsumeVarint(buf[cursor:])
		if n < 0 {
			return nil, errors.Errorf("invalid element length prefix at offset %d", cursor)
		}
		cursor += n
		if l > uint64(len(buf)-cursor) {
			return nil, errors.Errorf("element at offset %d overruns buffer: %d > %d", cursor, l, len(buf)-cursor)
		}
		end := cursor + int(l)
		out = append(out, buf[cursor:end])
		cursor = end
	}
	return out, nil
}

// AppendFramed appends one element to a framed buffer. Broadcast
// producers use it to build the buffers PutFramed consumes.
func AppendFramed(buf, element []byte) []byte {
	buf = protowire.AppendVarint(buf, uint64(len(element)))
	return append(buf, element...)
}
