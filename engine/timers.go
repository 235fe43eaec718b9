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

// Package engine emulates timer firing for bounded execution. All data for
// a processing unit is known in advance, so instead of a live timer
// service, a Simulator records timer sets while the unit's input drains,
// then advances the watermark and both processing time clocks to the
// maximum representable value so every pending timer becomes eligible.
package engine

import (
	"container/heap"

	"github.com/fuselage-dev/fuselage/internal/errors"
	"github.com/fuselage-dev/fuselage/mtime"
	"github.com/fuselage-dev/fuselage/window"
)

// TimeDomain identifies the clock a timer fires against.
type TimeDomain int

const (
	// EventTime timers fire when the input watermark passes their fire time.
	EventTime TimeDomain = iota
	// ProcessingTime timers fire when the local processing time clock
	// passes their fire time.
	ProcessingTime
	// SynchronizedProcessingTime timers fire when the synchronized
	// processing time clock passes their fire time.
	SynchronizedProcessingTime
)

func (d TimeDomain) String() string {
	switch d {
	case EventTime:
		return "event-time"
	case ProcessingTime:
		return "processing-time"
	case SynchronizedProcessingTime:
		return "synchronized-processing-time"
	default:
		return "unknown-domain"
	}
}

// domains is the defined firing order across clocks.
var domains = []TimeDomain{EventTime, ProcessingTime, SynchronizedProcessingTime}

// Timer is one timer record: set as a side effect of element processing,
// and later delivered back to the stage as a firing.
type Timer struct {
	// TimerID matches the stage's declared timer and its input receiver.
	TimerID string
	// Key is the element key the timer was set under.
	Key []byte
	// Window the timer is scoped to.
	Window window.Window
	// FireTime is when the timer becomes eligible in its domain.
	FireTime mtime.Time
	// Domain is the clock the timer fires against.
	Domain TimeDomain
}

// timerKey dedupes pending timers: setting a timer with the same id,
// window, and domain replaces the previous one.
type timerKey struct {
	id     string
	window window.Window
	domain TimeDomain
}

// pendingTimer pairs a timer with its set sequence, so equal fire times
// pop in set order and replaced entries can be skipped lazily.
type pendingTimer struct {
	timer Timer
	seq   uint64
}

type timerHeap []pendingTimer

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].timer.FireTime != h[j].timer.FireTime {
		return h[i].timer.FireTime < h[j].timer.FireTime
	}
	return h[i].seq < h[j].seq
}
func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *timerHeap) Push(x any) {
	*h = append(*h, x.(pendingTimer))
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[0 : n-1]
	return x
}

// phase is the simulator lifecycle: collecting -> quiescing -> firing -> done.
type phase int

const (
	phaseCollecting phase = iota
	phaseQuiescing
	phaseFiring
	phaseDone
)

func (p phase) String() string {
	switch p {
	case phaseCollecting:
		return "collecting"
	case phaseQuiescing:
		return "quiescing"
	case phaseFiring:
		return "firing"
	case phaseDone:
		return "done"
	default:
		return "invalid"
	}
}

// Simulator is an in-memory timer store for one partition of a bounded
// stage. It accepts timer sets while the main input drains, advances its
// clocks to exhaustion once input is complete, and yields each eligible
// timer exactly once.
//
// Precondition: a timer-bearing partition corresponds to one logical key.
// Only the latest observed key is tracked, and every firing is delivered
// under it. Partitions mixing keys need a key-indexed store instead.
//
// A Simulator serves a single partition call and is not safe for
// concurrent use.
type Simulator struct {
	phase phase

	watermark     mtime.Time // input completeness estimate
	procTime      mtime.Time
	syncProcTime  mtime.Time

	pending map[TimeDomain]*timerHeap
	live    map[timerKey]uint64 // live sequence per timer identity
	seq     uint64

	holds   *holdTracker
	lastKey []byte
}

// NewSimulator returns a collecting Simulator. The processing time clocks
// start at wall-clock now, the watermark at -infinity.
func NewSimulator() *Simulator {
	now := mtime.Now()
	s := &Simulator{
		watermark:    mtime.MinTimestamp,
		procTime:     now,
		syncProcTime: now,
		pending:      map[TimeDomain]*timerHeap{},
		live:         map[timerKey]uint64{},
		holds:        newHoldTracker(),
	}
	for _, d := range domains {
		s.pending[d] = &timerHeap{}
	}
	return s
}

// SetTimer records a timer-set event and the key it was observed under.
// Setting a timer with the same id, window, and domain as a pending one
// replaces it. Timers may be set while collecting input and while firing;
// anything set while firing stays pending and is reported by Pending.
func (s *Simulator) SetTimer(t Timer) error {
	if s.phase != phaseCollecting && s.phase != phaseFiring {
		return errors.Errorf("timer %q set in phase %v", t.TimerID, s.phase)
	}
	if t.Window == nil {
		t.Window = window.GlobalWindow{}
	}
	key := timerKey{id: t.TimerID, window: t.Window, domain: t.Domain}
	if prev, ok := s.live[key]; ok {
		s.dropPending(t.Domain, prev)
	}
	s.seq++
	s.live[key] = s.seq
	heap.Push(s.pending[t.Domain], pendingTimer{timer: t, seq: s.seq})
	s.holds.Add(t.FireTime, 1)
	s.lastKey = t.Key
	return nil
}

// dropPending unaccounts the hold of a replaced pending entry. The heap
// entry itself is skipped lazily when popped.
func (s *Simulator) dropPending(d TimeDomain, seq uint64) {
	for _, pt := range *s.pending[d] {
		if pt.seq == seq {
			s.holds.Drop(pt.timer.FireTime, 1)
			return
		}
	}
}

// LastKey returns the key from the most recent timer-set event.
func (s *Simulator) LastKey() []byte {
	return s.lastKey
}

// AdvanceInputWatermark advances the input completeness marker.
// The watermark never regresses.
func (s *Simulator) AdvanceInputWatermark(t mtime.Time) error {
	if t < s.watermark {
		return errors.Errorf("watermark regression: %v < %v", t, s.watermark)
	}
	s.watermark = t
	return nil
}

// AdvanceProcessingTime advances the processing time clock.
func (s *Simulator) AdvanceProcessingTime(t mtime.Time) error {
	if t < s.procTime {
		return errors.Errorf("processing time regression: %v < %v", t, s.procTime)
	}
	s.procTime = t
	return nil
}

// AdvanceSynchronizedProcessingTime advances the synchronized processing
// time clock.
func (s *Simulator) AdvanceSynchronizedProcessingTime(t mtime.Time) error {
	if t < s.syncProcTime {
		return errors.Errorf("synchronized processing time regression: %v < %v", t, s.syncProcTime)
	}
	s.syncProcTime = t
	return nil
}

// Quiesce marks the main input as exhausted: the watermark and both
// processing time clocks advance to the maximum representable value,
// making every pending timer eligible.
func (s *Simulator) Quiesce() error {
	if s.phase != phaseCollecting {
		return errors.Errorf("quiesce in phase %v", s.phase)
	}
	s.phase = phaseQuiescing
	if err := s.AdvanceInputWatermark(mtime.MaxTimestamp); err != nil {
		return err
	}
	if err := s.AdvanceProcessingTime(mtime.MaxTimestamp); err != nil {
		return err
	}
	return s.AdvanceSynchronizedProcessingTime(mtime.MaxTimestamp)
}

// clock returns the current reading for a domain.
func (s *Simulator) clock(d TimeDomain) mtime.Time {
	switch d {
	case ProcessingTime:
		return s.procTime
	case SynchronizedProcessingTime:
		return s.syncProcTime
	default:
		return s.watermark
	}
}

// FireEligible delivers every eligible timer exactly once, event time
// first, then processing time, then synchronized processing time, within
// each domain by fire time and set order. It is a single pass: the
// eligible set is snapshotted first, so timers set by a firing are
// recorded but not fired. The first fire error aborts the pass with that
// cause; the simulator is done afterwards either way.
func (s *Simulator) FireEligible(fire func(Timer) error) error {
	if s.phase != phaseQuiescing {
		return errors.Errorf("firing in phase %v", s.phase)
	}
	s.phase = phaseFiring

	var eligible []Timer
	for _, d := range domains {
		h := s.pending[d]
		clock := s.clock(d)
		for h.Len() > 0 && (*h)[0].timer.FireTime <= clock {
			pt := heap.Pop(h).(pendingTimer)
			key := timerKey{id: pt.timer.TimerID, window: pt.timer.Window, domain: d}
			if s.live[key] != pt.seq {
				continue // replaced; its hold was dropped at replacement.
			}
			delete(s.live, key)
			s.holds.Drop(pt.timer.FireTime, 1)
			eligible = append(eligible, pt.timer)
		}
	}

	defer func() { s.phase = phaseDone }()
	for _, t := range eligible {
		if err := fire(t); err != nil {
			return errors.WithContextf(err, "firing timer %q for window %v in domain %v", t.TimerID, t.Window, t.Domain)
		}
	}
	return nil
}

// Pending reports whether timers remain after the firing pass, which
// happens when a fired timer sets new ones. Single-pass semantics leave
// those unfired for the partition.
func (s *Simulator) Pending() bool {
	return len(s.live) > 0
}

// MinHold returns the earliest hold pending timers place on the simulated
// watermark, or mtime.MaxTimestamp when none remain.
func (s *Simulator) MinHold() mtime.Time {
	return s.holds.Min()
}
