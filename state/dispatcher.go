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

// Package state routes the state requests a worker raises while executing
// a bundle: side-input lookups against the job's broadcast table, and bag
// user state access against a worker-local store. Requests are
// discriminated by a closed request kind; anything else is fatal to the
// partition.
package state

import (
	"context"

	"github.com/fuselage-dev/fuselage/internal/errors"
	"github.com/fuselage-dev/fuselage/stage"
	"github.com/fuselage-dev/fuselage/window"
)

// Kind discriminates state requests.
type Kind int

const (
	// KindUnspecified is the zero value; requests carrying it fail.
	KindUnspecified Kind = iota
	// KindSideInput is a read of a broadcast side-input collection.
	KindSideInput
	// KindBagState is an access to keyed bag user state.
	KindBagState
)

func (k Kind) String() string {
	switch k {
	case KindSideInput:
		return "side-input"
	case KindBagState:
		return "bag-state"
	default:
		return "unspecified"
	}
}

// BagOp is the operation of a bag state request.
type BagOp int

const (
	// BagRead returns the bag contents in append order.
	BagRead BagOp = iota
	// BagAppend adds values to the bag.
	BagAppend
	// BagClear removes the bag.
	BagClear
)

func (o BagOp) String() string {
	switch o {
	case BagRead:
		return "read"
	case BagAppend:
		return "append"
	case BagClear:
		return "clear"
	default:
		return "invalid"
	}
}

// Request is one state request from the worker. Kind selects which of the
// remaining fields apply.
type Request struct {
	Kind Kind

	// CollectionID names the side-input collection for KindSideInput.
	CollectionID string

	// Bag state access, for KindBagState.
	Op      BagOp
	StateID string
	Key     []byte
	Window  window.Window
	Values  [][]byte // values to append for BagAppend
}

// Response carries the result of a request. SideInput is set for
// side-input lookups, Bag for bag reads.
type Response struct {
	SideInput []any
	Bag       [][]byte
}

// Handler serves state requests for one bundle.
type Handler interface {
	Handle(ctx context.Context, req Request) (Response, error)
}

type handlerFunc func(ctx context.Context, req Request) (Response, error)

// Dispatcher routes requests by kind through a closed dispatch table
// built per partition call.
type Dispatcher struct {
	handlers map[Kind]handlerFunc
}

var _ Handler = (*Dispatcher)(nil)

// NewDispatcher builds the dispatch table for one partition call on the
// given stage.
//
// Side-input lookups are bound to the job's broadcast table; a declared
// side input with no broadcast data is a setup failure. If the stage
// declares user state the bag store is reset, exactly once, before any
// request can be served; otherwise bag requests fail as unsupported.
func NewDispatcher(def *stage.Definition, sides *SideInputTable, bags *BagStore) (*Dispatcher, error) {
	declared := make(map[string]bool, len(def.SideInputs))
	for _, si := range def.SideInputs {
		if !sides.Has(si.CollectionID) {
			return nil, errors.Errorf("setting up state handler for stage %v: side input %v has no broadcast data", def.ID, si.CollectionID)
		}
		declared[si.CollectionID] = true
	}

	sideHandler := func(_ context.Context, req Request) (Response, error) {
		if !declared[req.CollectionID] {
			return Response{}, errors.Errorf("stage %v does not declare side input %v", def.ID, req.CollectionID)
		}
		elms, err := sides.Lookup(req.CollectionID)
		if err != nil {
			return Response{}, errors.WithContextf(err, "side input lookup for stage %v", def.ID)
		}
		return Response{SideInput: elms}, nil
	}

	var bagHandler handlerFunc
	if def.HasUserState() {
		// Discard the previous key's state before serving this call.
		bags.Reset()
		bagHandler = func(_ context.Context, req Request) (Response, error) {
			w := req.Window
			if w == nil {
				w = window.GlobalWindow{}
			}
			switch req.Op {
			case BagRead:
				return Response{Bag: bags.Read(req.StateID, req.Key, w)}, nil
			case BagAppend:
				bags.Append(req.StateID, req.Key, w, req.Values...)
				return Response{}, nil
			case BagClear:
				bags.Clear(req.StateID, req.Key, w)
				return Response{}, nil
			default:
				return Response{}, errors.Errorf("invalid bag state op %v", req.Op)
			}
		}
	} else {
		bagHandler = func(_ context.Context, req Request) (Response, error) {
			return Response{}, errors.Errorf("stage %v declares no user state; bag state %q unsupported", def.ID, req.StateID)
		}
	}

	return &Dispatcher{
		handlers: map[Kind]handlerFunc{
			KindSideInput: sideHandler,
			KindBagState:  bagHandler,
		},
	}, nil
}

// Handle routes one request to its kind's handler. Unknown kinds fail.
func (d *Dispatcher) Handle(ctx context.Context, req Request) (Response, error) {
	h, ok := d.handlers[req.Kind]
	if !ok {
		return Response{}, errors.Errorf("unknown state request kind %v", req.Kind)
	}
	return h(ctx, req)
}
