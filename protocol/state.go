// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package protocol

import (
	"time"

	"github.com/blinklabs-io/ferret/irc"
)

// Agency values denote which side of the connection is expected to act in a
// given protocol state
const (
	AgencyNone   uint = 0
	AgencyClient uint = 1
	AgencyServer uint = 2
)

// State is an individual state in a protocol state machine
type State struct {
	Id   uint
	Name string
}

// NewState returns a new State with the specified ID and name
func NewState(id uint, name string) State {
	return State{
		Id:   id,
		Name: name,
	}
}

func (s State) String() string {
	return s.Name
}

// StateTransitionMatchFunc filters transitions beyond the command match. It's
// used when multiple transitions share a command, or when a transition should
// only fire for messages correlated with the pending request
type StateTransitionMatchFunc func(irc.Message) bool

// StateTransition describes a transition between protocol states triggered by
// a message with a particular command. Transitions apply to both sent and
// received messages
type StateTransition struct {
	MsgType   string
	NewState  State
	MatchFunc StateTransitionMatchFunc
}

// StateMapEntry describes a protocol state, which side has agency in it, and
// its outbound transitions. A non-zero Timeout limits how long the protocol
// may remain in the state: when it expires, the protocol moves to
// TimeoutState if one is set and reports an error otherwise
type StateMapEntry struct {
	Agency       uint
	Transitions  []StateTransition
	Timeout      time.Duration
	TimeoutState *State
}

// StateMap maps protocol states to their definitions
type StateMap map[State]StateMapEntry

// Copy returns a copy of the state map. This is mostly for convenience,
// since we need to copy the state map in various places
func (s StateMap) Copy() StateMap {
	ret := StateMap{}
	for k, v := range s {
		ret[k] = v
	}
	return ret
}
