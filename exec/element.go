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
	"github.com/fuselage-dev/fuselage/mtime"
	"github.com/fuselage-dev/fuselage/window"
)

// WindowedElement is one element value with its window assignment,
// timestamp, and pane metadata. Elements are immutable once created.
type WindowedElement struct {
	Value     any
	Timestamp mtime.Time
	Windows   []window.Window
	Pane      window.PaneInfo
}

// OutputTagMap is the fixed mapping from output collection id to union
// tag. It is built once by the caller and shared verbatim with the
// downstream demultiplexer, which holds the inverse mapping.
type OutputTagMap map[string]int

// UnionRecord is the multiplexed output unit: the element tagged with the
// union tag of the collection it was emitted to.
type UnionRecord struct {
	Tag int
	Elm WindowedElement
}
