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

package engine

import (
	"container/heap"
	"fmt"

	"github.com/fuselage-dev/fuselage/mtime"
)

// holdHeap is a minHeap to find the earliest hold time.
type holdHeap []mtime.Time

func (h holdHeap) Len() int { return len(h) }
func (h holdHeap) Less(i, j int) bool {
	return h[i] < h[j]
}
func (h holdHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *holdHeap) Push(x any) {
	// Push and Pop use pointer receivers because they modify the slice's length,
	// not just its contents.
	*h = append(*h, x.(mtime.Time))
}

func (h *holdHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[0 : n-1]
	return x
}

func (h *holdHeap) Remove(toRemove mtime.Time) {
	for i, v := range *h {
		if v == toRemove {
			heap.Remove(h, i)
			return
		}
	}
}

// holdTracker tracks the holds pending timers place on the simulated
// watermark.
//
// A timer holds the watermark back until it fires or is replaced, and
// multiple timers may set the same hold time. Counts are kept per hold
// time; a hold leaves the heap only when its count reaches zero.
//
// A heap of the hold times gives quick access to the minimum hold, which
// is what callers need to know how far the watermark may advance.
type holdTracker struct {
	heap   holdHeap
	counts map[mtime.Time]int
}

func newHoldTracker() *holdTracker {
	return &holdTracker{
		counts: map[mtime.Time]int{},
	}
}

// Drop the given hold count. When the count of a hold time reaches zero, it's
// removed from the heap. Drop panics if holds become negative.
func (ht *holdTracker) Drop(hold mtime.Time, v int) {
	n := ht.counts[hold] - v
	if n > 0 {
		ht.counts[hold] = n
		return
	} else if n < 0 {
		panic(fmt.Sprintf("negative hold count %v for time %v", n, hold))
	}
	delete(ht.counts, hold)
	ht.heap.Remove(hold)
}

// Add a hold a number of times to heap. If the hold time isn't already present in the heap, it is added.
func (ht *holdTracker) Add(hold mtime.Time, v int) {
	ht.counts[hold] += v
	if len(ht.counts) != len(ht.heap) {
		// Since there's a difference, the hold should not be in the heap, so we add it.
		heap.Push(&ht.heap, hold)
	}
}

// Min returns the earliest hold in the heap. Returns [mtime.MaxTimestamp] if the heap is empty.
func (ht *holdTracker) Min() mtime.Time {
	min := mtime.MaxTimestamp
	if len(ht.heap) > 0 {
		min = ht.heap[0]
	}
	return min
}

// Empty reports whether no holds remain.
func (ht *holdTracker) Empty() bool {
	return len(ht.counts) == 0
}
