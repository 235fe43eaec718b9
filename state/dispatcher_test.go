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
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/fuselage-dev/fuselage/stage"
	"github.com/fuselage-dev/fuselage/window"
)

func stringDecode(b []byte) (any, error) {
	return string(b), nil
}

func TestDispatcher_SideInputLookup(t *testing.T) {
	sides := NewSideInputTable()
	if err := sides.Put("col-side", [][]byte{[]byte("a"), []byte("b")}, stringDecode); err != nil {
		t.Fatalf("Put() = %v", err)
	}
	def := &stage.Definition{
		ID:         "stg",
		InputID:    "col-in",
		SideInputs: []stage.SideInputSpec{{CollectionID: "col-side"}},
	}
	d, err := NewDispatcher(def, sides, NewBagStore())
	if err != nil {
		t.Fatalf("NewDispatcher() = %v", err)
	}

	req := Request{Kind: KindSideInput, CollectionID: "col-side"}
	first, err := d.Handle(context.Background(), req)
	if err != nil {
		t.Fatalf("Handle() = %v", err)
	}
	second, err := d.Handle(context.Background(), req)
	if err != nil {
		t.Fatalf("Handle() = %v", err)
	}
	want := []any{"a", "b"}
	if diff := cmp.Diff(want, first.SideInput); diff != "" {
		t.Errorf("first lookup mismatch (-want, +got):\n%v", diff)
	}
	if diff := cmp.Diff(first.SideInput, second.SideInput); diff != "" {
		t.Errorf("lookups of the same side input differ (-first, +second):\n%v", diff)
	}
}

func TestDispatcher_UndeclaredSideInput(t *testing.T) {
	sides := NewSideInputTable()
	if err := sides.Put("col-side", [][]byte{[]byte("a")}, stringDecode); err != nil {
		t.Fatalf("Put() = %v", err)
	}
	def := &stage.Definition{
		ID:         "stg",
		InputID:    "col-in",
		SideInputs: []stage.SideInputSpec{{CollectionID: "col-side"}},
	}
	d, err := NewDispatcher(def, sides, NewBagStore())
	if err != nil {
		t.Fatalf("NewDispatcher() = %v", err)
	}
	if _, err := d.Handle(context.Background(), Request{Kind: KindSideInput, CollectionID: "col-other"}); err == nil {
		t.Errorf("Handle() on undeclared side input succeeded, want error")
	}
}

func TestDispatcher_MissingBroadcastIsSetupFailure(t *testing.T) {
	def := &stage.Definition{
		ID:         "stg",
		InputID:    "col-in",
		SideInputs: []stage.SideInputSpec{{CollectionID: "col-missing"}},
	}
	if _, err := NewDispatcher(def, NewSideInputTable(), NewBagStore()); err == nil {
		t.Errorf("NewDispatcher() succeeded with no broadcast data, want setup failure")
	}
}

func TestDispatcher_BagStateRoundTrip(t *testing.T) {
	def := &stage.Definition{
		ID:         "stg",
		InputID:    "col-in",
		UserStates: []stage.UserStateSpec{{StateID: "st"}},
	}
	bags := NewBagStore()
	d, err := NewDispatcher(def, NewSideInputTable(), bags)
	if err != nil {
		t.Fatalf("NewDispatcher() = %v", err)
	}
	ctx := context.Background()
	w := window.GlobalWindow{}

	if _, err := d.Handle(ctx, Request{Kind: KindBagState, Op: BagAppend, StateID: "st", Key: []byte("k"), Window: w, Values: [][]byte{[]byte("v1"), []byte("v2")}}); err != nil {
		t.Fatalf("append: Handle() = %v", err)
	}
	got, err := d.Handle(ctx, Request{Kind: KindBagState, Op: BagRead, StateID: "st", Key: []byte("k"), Window: w})
	if err != nil {
		t.Fatalf("read: Handle() = %v", err)
	}
	want := [][]byte{[]byte("v1"), []byte("v2")}
	if diff := cmp.Diff(want, got.Bag); diff != "" {
		t.Errorf("bag read mismatch (-want, +got):\n%v", diff)
	}

	if _, err := d.Handle(ctx, Request{Kind: KindBagState, Op: BagClear, StateID: "st", Key: []byte("k"), Window: w}); err != nil {
		t.Fatalf("clear: Handle() = %v", err)
	}
	got, err = d.Handle(ctx, Request{Kind: KindBagState, Op: BagRead, StateID: "st", Key: []byte("k"), Window: w})
	if err != nil {
		t.Fatalf("read after clear: Handle() = %v", err)
	}
	if len(got.Bag) != 0 {
		t.Errorf("bag after clear = %v, want empty", got.Bag)
	}
}

func TestDispatcher_ResetsBagStorePerCall(t *testing.T) {
	def := &stage.Definition{
		ID:         "stg",
		InputID:    "col-in",
		UserStates: []stage.UserStateSpec{{StateID: "st"}},
	}
	bags := NewBagStore()
	ctx := context.Background()

	// Call 1 appends.
	d1, err := NewDispatcher(def, NewSideInputTable(), bags)
	if err != nil {
		t.Fatalf("NewDispatcher() = %v", err)
	}
	if _, err := d1.Handle(ctx, Request{Kind: KindBagState, Op: BagAppend, StateID: "st", Key: []byte("k"), Values: [][]byte{[]byte("v")}}); err != nil {
		t.Fatalf("append: Handle() = %v", err)
	}
	gen := bags.Generation()

	// Call 2 must not see call 1's values.
	d2, err := NewDispatcher(def, NewSideInputTable(), bags)
	if err != nil {
		t.Fatalf("NewDispatcher() = %v", err)
	}
	if got := bags.Generation(); got != gen+1 {
		t.Errorf("Generation() = %d, want %d (one reset per call)", got, gen+1)
	}
	got, err := d2.Handle(ctx, Request{Kind: KindBagState, Op: BagRead, StateID: "st", Key: []byte("k")})
	if err != nil {
		t.Fatalf("read: Handle() = %v", err)
	}
	if len(got.Bag) != 0 {
		t.Errorf("second call read %v, want empty after reset", got.Bag)
	}
}

func TestDispatcher_BagStateUnsupportedWithoutUserState(t *testing.T) {
	def := &stage.Definition{ID: "stg", InputID: "col-in"}
	bags := NewBagStore()
	d, err := NewDispatcher(def, NewSideInputTable(), bags)
	if err != nil {
		t.Fatalf("NewDispatcher() = %v", err)
	}
	if got := bags.Generation(); got != 0 {
		t.Errorf("Generation() = %d, want 0 (no reset without user state)", got)
	}
	if _, err := d.Handle(context.Background(), Request{Kind: KindBagState, Op: BagRead, StateID: "st"}); err == nil {
		t.Errorf("bag request on stateless stage succeeded, want unsupported error")
	}
}

func TestDispatcher_UnknownKind(t *testing.T) {
	def := &stage.Definition{ID: "stg", InputID: "col-in"}
	d, err := NewDispatcher(def, NewSideInputTable(), NewBagStore())
	if err != nil {
		t.Fatalf("NewDispatcher() = %v", err)
	}
	if _, err := d.Handle(context.Background(), Request{Kind: KindUnspecified}); err == nil {
		t.Errorf("Handle() with unspecified kind succeeded, want error")
	}
	if _, err := d.Handle(context.Background(), Request{Kind: Kind(42)}); err == nil {
		t.Errorf("Handle() with unknown kind succeeded, want error")
	}
}
