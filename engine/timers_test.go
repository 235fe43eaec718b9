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
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/fuselage-dev/fuselage/mtime"
	"github.com/fuselage-dev/fuselage/window"
)

func collectFired(t *testing.T, s *Simulator) []Timer {
	t.Helper()
	if err := s.Quiesce(); err != nil {
		t.Fatalf("Quiesce() = %v", err)
	}
	var fired []Timer
	if err := s.FireEligible(func(tm Timer) error {
		fired = append(fired, tm)
		return nil
	}); err != nil {
		t.Fatalf("FireEligible() = %v", err)
	}
	return fired
}

func TestSimulator_FiresInFireTimeOrder(t *testing.T) {
	s := NewSimulator()
	for _, tm := range []Timer{
		{TimerID: "late", FireTime: 3000, Domain: EventTime},
		{TimerID: "early", FireTime: 1000, Domain: EventTime},
		{TimerID: "mid", FireTime: 2000, Domain: EventTime},
	} {
		if err := s.SetTimer(tm); err != nil {
			t.Fatalf("SetTimer(%q) = %v", tm.TimerID, err)
		}
	}

	fired := collectFired(t, s)
	var got []string
	for _, tm := range fired {
		got = append(got, tm.TimerID)
	}
	want := []string{"early", "mid", "late"}
	if d := cmp.Diff(want, got); d != "" {
		t.Errorf("fired order mismatch (-want, +got):\n%v", d)
	}
}

func TestSimulator_DomainOrder(t *testing.T) {
	s := NewSimulator()
	for _, tm := range []Timer{
		{TimerID: "sync", FireTime: 1, Domain: SynchronizedProcessingTime},
		{TimerID: "proc", FireTime: 1, Domain: ProcessingTime},
		{TimerID: "event", FireTime: 1, Domain: EventTime},
	} {
		if err := s.SetTimer(tm); err != nil {
			t.Fatalf("SetTimer(%q) = %v", tm.TimerID, err)
		}
	}

	fired := collectFired(t, s)
	var got []string
	for _, tm := range fired {
		got = append(got, tm.TimerID)
	}
	want := []string{"event", "proc", "sync"}
	if d := cmp.Diff(want, got); d != "" {
		t.Errorf("fired domain order mismatch (-want, +got):\n%v", d)
	}
}

func TestSimulator_FarFutureTimerFiresAfterQuiesce(t *testing.T) {
	s := NewSimulator()
	tm := Timer{TimerID: "far", FireTime: mtime.MaxTimestamp - 1, Domain: EventTime}
	if err := s.SetTimer(tm); err != nil {
		t.Fatalf("SetTimer() = %v", err)
	}

	fired := collectFired(t, s)
	if len(fired) != 1 || fired[0].TimerID != "far" {
		t.Errorf("fired = %v, want exactly the far-future timer", fired)
	}
	if s.Pending() {
		t.Errorf("Pending() = true after firing, want false")
	}
}

func TestSimulator_SetReplacesSameIdentity(t *testing.T) {
	s := NewSimulator()
	w := window.IntervalWindow{Start: 0, End: 1000}
	if err := s.SetTimer(Timer{TimerID: "t", Window: w, FireTime: 1000, Domain: EventTime}); err != nil {
		t.Fatalf("SetTimer() = %v", err)
	}
	if err := s.SetTimer(Timer{TimerID: "t", Window: w, FireTime: 5000, Domain: EventTime}); err != nil {
		t.Fatalf("SetTimer() = %v", err)
	}

	fired := collectFired(t, s)
	if len(fired) != 1 {
		t.Fatalf("fired %d timers, want 1 after replacement", len(fired))
	}
	if got, want := fired[0].FireTime, mtime.Time(5000); got != want {
		t.Errorf("fired FireTime = %v, want replacement time %v", got, want)
	}
}

func TestSimulator_SinglePassLeavesRefiredTimersPending(t *testing.T) {
	s := NewSimulator()
	if err := s.SetTimer(Timer{TimerID: "first", FireTime: 100, Domain: EventTime}); err != nil {
		t.Fatalf("SetTimer() = %v", err)
	}
	if err := s.Quiesce(); err != nil {
		t.Fatalf("Quiesce() = %v", err)
	}

	var fired []string
	err := s.FireEligible(func(tm Timer) error {
		fired = append(fired, tm.TimerID)
		// A firing may set a new timer, but the pass must not chase it.
		return s.SetTimer(Timer{TimerID: "cascade", FireTime: 200, Domain: EventTime})
	})
	if err != nil {
		t.Fatalf("FireEligible() = %v", err)
	}
	if d := cmp.Diff([]string{"first"}, fired); d != "" {
		t.Errorf("fired mismatch (-want, +got):\n%v", d)
	}
	if !s.Pending() {
		t.Errorf("Pending() = false, want true for the timer set while firing")
	}
	if got, want := s.MinHold(), mtime.Time(200); got != want {
		t.Errorf("MinHold() = %v, want %v", got, want)
	}
}

func TestSimulator_TracksLatestKey(t *testing.T) {
	s := NewSimulator()
	if err := s.SetTimer(Timer{TimerID: "a", Key: []byte("k1"), FireTime: 1, Domain: EventTime}); err != nil {
		t.Fatalf("SetTimer() = %v", err)
	}
	if err := s.SetTimer(Timer{TimerID: "b", Key: []byte("k2"), FireTime: 2, Domain: EventTime}); err != nil {
		t.Fatalf("SetTimer() = %v", err)
	}
	if got, want := string(s.LastKey()), "k2"; got != want {
		t.Errorf("LastKey() = %q, want %q", got, want)
	}
}

func TestSimulator_ClocksNeverRegress(t *testing.T) {
	s := NewSimulator()
	if err := s.AdvanceInputWatermark(1000); err != nil {
		t.Fatalf("AdvanceInputWatermark(1000) = %v", err)
	}
	if err := s.AdvanceInputWatermark(500); err == nil {
		t.Errorf("AdvanceInputWatermark regression succeeded, want error")
	}
	if err := s.AdvanceProcessingTime(mtime.MinTimestamp); err == nil {
		t.Errorf("AdvanceProcessingTime regression succeeded, want error")
	}
}

func TestSimulator_FireErrorCarriesCause(t *testing.T) {
	s := NewSimulator()
	if err := s.SetTimer(Timer{TimerID: "t", FireTime: 1, Domain: EventTime}); err != nil {
		t.Fatalf("SetTimer() = %v", err)
	}
	if err := s.Quiesce(); err != nil {
		t.Fatalf("Quiesce() = %v", err)
	}
	cause := fmt.Errorf("no receiver")
	err := s.FireEligible(func(Timer) error {
		return cause
	})
	if err == nil {
		t.Fatalf("FireEligible() = nil, want error")
	}
	if !stderrors.Is(err, cause) {
		t.Errorf("FireEligible() error %v does not carry original cause %v", err, cause)
	}
}

func TestHoldTracker(t *testing.T) {
	ht := newHoldTracker()
	ht.Add(100, 2)
	ht.Add(50, 1)
	if got, want := ht.Min(), mtime.Time(50); got != want {
		t.Errorf("Min() = %v, want %v", got, want)
	}
	ht.Drop(50, 1)
	if got, want := ht.Min(), mtime.Time(100); got != want {
		t.Errorf("Min() after drop = %v, want %v", got, want)
	}
	ht.Drop(100, 1)
	if ht.Empty() {
		t.Errorf("Empty() = true with one count remaining")
	}
	ht.Drop(100, 1)
	if !ht.Empty() {
		t.Errorf("Empty() = false after dropping all holds")
	}
	if got, want := ht.Min(), mtime.MaxTimestamp; got != want {
		t.Errorf("Min() on empty = %v, want %v", got, want)
	}
}
