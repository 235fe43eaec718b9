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

// Package window holds the window assignment types carried by elements
// through stage execution. Concrete windows are small comparable structs
// so they can key state and timer maps directly.
package window

import (
	"fmt"

	"github.com/fuselage-dev/fuselage/mtime"
)

// Window represents a window assignment for an element.
type Window interface {
	// MaxTimestamp returns the inclusive largest timestamp in the window.
	MaxTimestamp() mtime.Time
	// Equals returns true iff the window equals the given window.
	Equals(o Window) bool
}

// GlobalWindow represents the singleton, global window.
type GlobalWindow struct{}

// MaxTimestamp returns the maximum timestamp in the window.
func (GlobalWindow) MaxTimestamp() mtime.Time {
	return mtime.EndOfGlobalWindowTime
}

// Equals returns true iff the provided window is also a global window.
func (GlobalWindow) Equals(o Window) bool {
	_, ok := o.(GlobalWindow)
	return ok
}

func (GlobalWindow) String() string {
	return "[*]"
}

// IntervalWindow represents a half-open bounded window [start,end).
type IntervalWindow struct {
	Start, End mtime.Time
}

// MaxTimestamp returns the maximum timestamp in the window.
func (w IntervalWindow) MaxTimestamp() mtime.Time {
	return w.End - 1
}

// Equals returns true iff the provided window is an interval window
// sharing the start and end timestamps.
func (w IntervalWindow) Equals(o Window) bool {
	ow, ok := o.(IntervalWindow)
	return ok && w.Start == ow.Start && w.End == ow.End
}

func (w IntervalWindow) String() string {
	return fmt.Sprintf("[%v:%v)", w.Start, w.End)
}

// IsEqualList returns true iff the lists of windows are equal.
// Note that ordering matters and that this is not set equality.
func IsEqualList(from, to []Window) bool {
	if len(from) != len(to) {
		return false
	}
	for i, w := range from {
		if !w.Equals(to[i]) {
			return false
		}
	}
	return true
}

// PaneTiming indicates the relationship of a pane's firing to the watermark.
type PaneTiming byte

const (
	// PaneEarly occurs before the watermark passes the end of the window.
	PaneEarly PaneTiming = 0
	// PaneOnTime occurs when the watermark passes the end of the window.
	PaneOnTime PaneTiming = 1
	// PaneLate occurs after the watermark passes the end of the window.
	PaneLate PaneTiming = 2
	// PaneUnknown is for when the timing is unknown.
	PaneUnknown PaneTiming = 3
)

func (p PaneTiming) String() string {
	switch p {
	case PaneEarly:
		return "early"
	case PaneOnTime:
		return "on-time"
	case PaneLate:
		return "late"
	case PaneUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("unknown-timing(%d)", p)
	}
}

// PaneInfo is the metadata for a given pane of a window's firing.
type PaneInfo struct {
	Timing                     PaneTiming
	IsFirst, IsLast            bool
	Index, NonSpeculativeIndex int64
}

// NoFiringPane returns the pane used when no triggering has occurred.
func NoFiringPane() PaneInfo {
	return PaneInfo{Timing: PaneUnknown, IsFirst: true, IsLast: true}
}
