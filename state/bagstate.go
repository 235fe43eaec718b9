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

	"github.com/fuselage-dev/fuselage/window"
)

// bagKey scopes one bag: (state id, element key, window).
type bagKey struct {
	stateID string
	key     string
	window  window.Window
}

// BagStore is a worker-local, in-memory bag user state store. It lives
// for the worker's process lifetime and is reused across partition calls
// on that worker, so it must be explicitly Reset at the top of every call
// that declares user state; object lifetime alone carries the previous
// key's bags over.
//
// A store must not be shared across concurrently executing partitions.
// The mutex only covers the worker pushing state requests concurrently
// with one partition's bundle.
type BagStore struct {
	mu         sync.Mutex
	bags       map[bagKey][][]byte
	generation uint64
}

// NewBagStore returns an empty store.
func NewBagStore() *BagStore {
	return &BagStore{bags: map[bagKey][][]byte{}}
}

// Reset discards all bags. Called once per partition call that declares
// user state, before any request is served.
func (s *BagStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bags = map[bagKey][][]byte{}
	s.generation++
}

// Generation returns the number of resets performed. It exists so tests
// and diagnostics can observe that a call reset the store.
func (s *BagStore) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Append adds values to the bag for (stateID, key, window).
func (s *BagStore) Append(stateID string, key []byte, w window.Window, values ...[]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bk := bagKey{stateID: stateID, key: string(key), window: w}
	s.bags[bk] = append(s.bags[bk], values...)
}

// Read returns the bag contents for (stateID, key, window), in append
// order. An absent bag reads as empty.
func (s *BagStore) Read(stateID string, key []byte, w window.Window) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	bag := s.bags[bagKey{stateID: stateID, key: string(key), window: w}]
	out := make([][]byte, len(bag))
	copy(out, bag)
	return out
}

// Clear removes the bag for (stateID, key, window).
func (s *BagStore) Clear(stateID string, key []byte, w window.Window) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bags, bagKey{stateID: stateID, key: string(key), window: w})
}
