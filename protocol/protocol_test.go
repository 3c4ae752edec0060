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
	"net"
	"testing"
	"time"

	"github.com/blinklabs-io/ferret/irc"
	"go.uber.org/goleak"
)

func TestIsDone(t *testing.T) {
	stateIdle := NewState(1, "Idle")
	stateDone := NewState(2, "Done")
	stateWorking := NewState(3, "Working")

	stateMap := StateMap{
		stateIdle: StateMapEntry{
			Agency: AgencyClient,
		},
		stateDone: StateMapEntry{
			Agency: AgencyNone,
		},
		stateWorking: StateMapEntry{
			Agency: AgencyServer,
		},
	}

	t.Run("returns false when protocol is active and in working state", func(t *testing.T) {
		p := &Protocol{
			doneChan:     make(chan struct{}),
			currentState: stateWorking,
			config: ProtocolConfig{
				InitialState: stateIdle,
				StateMap:     stateMap,
			},
		}

		if p.IsDone() {
			t.Error("IsDone() should return false when in a non-terminal working state")
		}
	})

	t.Run("returns false when in initial state", func(t *testing.T) {
		p := &Protocol{
			doneChan:     make(chan struct{}),
			currentState: stateIdle,
			config: ProtocolConfig{
				InitialState: stateIdle,
				StateMap:     stateMap,
			},
		}

		if p.IsDone() {
			t.Error("IsDone() should return false when in initial state")
		}
	})

	t.Run("returns true when done channel is closed", func(t *testing.T) {
		doneChan := make(chan struct{})
		p := &Protocol{
			doneChan:     doneChan,
			currentState: stateWorking,
			config: ProtocolConfig{
				InitialState: stateIdle,
				StateMap:     stateMap,
			},
		}

		close(doneChan)

		if !p.IsDone() {
			t.Error("IsDone() should return true when doneChan is closed")
		}
	})

	t.Run("returns true when in AgencyNone state", func(t *testing.T) {
		p := &Protocol{
			doneChan:     make(chan struct{}),
			currentState: stateDone,
			config: ProtocolConfig{
				InitialState: stateIdle,
				StateMap:     stateMap,
			},
		}

		if !p.IsDone() {
			t.Error("IsDone() should return true when in AgencyNone (Done) state")
		}
	})
}

// protocolTestHarness wires a Protocol to a real router over an in-memory
// connection and drains everything the protocol writes
type protocolTestHarness struct {
	client      net.Conn
	server      net.Conn
	router      *irc.Router
	proto       *Protocol
	errorChan   chan error
	handlerChan chan irc.Message
	timeoutChan chan State
}

func newProtocolTestHarness(
	t *testing.T,
	stateMap StateMap,
	initialState State,
	commands []string,
) *protocolTestHarness {
	t.Helper()
	h := &protocolTestHarness{
		errorChan:   make(chan error, 10),
		handlerChan: make(chan irc.Message, 10),
		timeoutChan: make(chan State, 10),
	}
	h.client, h.server = net.Pipe()
	h.router = irc.NewRouter(h.client, nil)
	h.proto = New(ProtocolConfig{
		Name:      "test",
		Router:    h.router,
		ErrorChan: h.errorChan,
		Commands:  commands,
		MessageHandlerFunc: func(msg irc.Message) error {
			h.handlerChan <- msg
			return nil
		},
		TimeoutHandlerFunc: func(state State) error {
			h.timeoutChan <- state
			return nil
		},
		StateMap:     stateMap,
		InitialState: initialState,
	})
	h.proto.Start()
	h.router.Start()
	// Drain anything written to the connection so sends don't block
	go func() {
		buf := make([]byte, 1024)
		for {
			if _, err := h.server.Read(buf); err != nil {
				return
			}
		}
	}()
	return h
}

func (h *protocolTestHarness) shutdown() {
	h.proto.Stop()
	h.router.Stop()
	h.client.Close()
	h.server.Close()
}

func TestProtocolTransitions(t *testing.T) {
	defer goleak.VerifyNone(t)

	stateIdle := NewState(1, "Idle")
	stateBusy := NewState(2, "Busy")
	stateMap := StateMap{
		stateIdle: StateMapEntry{
			Agency: AgencyClient,
			Transitions: []StateTransition{
				{
					MsgType:  "STATS",
					NewState: stateBusy,
				},
			},
		},
		stateBusy: StateMapEntry{
			Agency:  AgencyServer,
			Timeout: 5 * time.Second,
			Transitions: []StateTransition{
				{
					MsgType:  "211",
					NewState: stateIdle,
				},
			},
		},
	}

	h := newProtocolTestHarness(t, stateMap, stateIdle, []string{"211"})
	defer h.shutdown()

	// A sent message matching a transition moves the state machine
	if err := h.proto.SendMessage(irc.NewMessage("STATS", "l", "bob")); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if state := h.proto.State(); state != stateBusy {
		t.Fatalf("expected state %s after send, got %s", stateBusy, state)
	}

	// A received message matching a transition moves it back and invokes the
	// message handler
	go func() {
		_, _ = h.server.Write(
			[]byte(":irc.example.net 211 ferret bob[be@198.51.100.7] 0 1 1 1 1 :10\r\n"),
		)
	}()
	select {
	case msg := <-h.handlerChan:
		if msg.Command != "211" {
			t.Errorf("expected 211 in handler, got %s", msg.Command)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message handler")
	}
	if state := h.proto.State(); state != stateIdle {
		t.Errorf("expected state %s after reply, got %s", stateIdle, state)
	}

	// A received message with no matching transition in the current state is
	// dropped without invoking the handler or changing state
	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		_, _ = h.server.Write(
			[]byte(":irc.example.net 211 ferret stray[sy@203.0.113.9] 0 1 1 1 1 :10\r\n"),
		)
	}()
	select {
	case <-writeDone:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for write")
	}
	time.Sleep(10 * time.Millisecond)
	select {
	case msg := <-h.handlerChan:
		t.Errorf("unexpected handler invocation for stray message: %s", msg.Command)
	default:
	}
	if state := h.proto.State(); state != stateIdle {
		t.Errorf("expected state %s after stray message, got %s", stateIdle, state)
	}
}

func TestProtocolTransitionMatchFunc(t *testing.T) {
	defer goleak.VerifyNone(t)

	stateAwaiting := NewState(1, "Awaiting")
	stateResolved := NewState(2, "Resolved")
	stateMap := StateMap{
		stateAwaiting: StateMapEntry{
			Agency: AgencyServer,
			Transitions: []StateTransition{
				{
					MsgType:  "211",
					NewState: stateResolved,
					MatchFunc: func(msg irc.Message) bool {
						return msg.Param(1) == "bob[be@198.51.100.7]"
					},
				},
			},
		},
		stateResolved: StateMapEntry{
			Agency: AgencyNone,
		},
	}

	h := newProtocolTestHarness(t, stateMap, stateAwaiting, []string{"211"})
	defer h.shutdown()

	// A message that fails the match function should not transition
	go func() {
		_, _ = h.server.Write(
			[]byte(":irc.example.net 211 ferret other[ot@203.0.113.9] 0 1 1 1 1 :10\r\n" +
				":irc.example.net 211 ferret bob[be@198.51.100.7] 0 1 1 1 1 :10\r\n"),
		)
	}()

	select {
	case msg := <-h.handlerChan:
		if msg.Param(1) != "bob[be@198.51.100.7]" {
			t.Errorf("handler invoked for non-matching message: %v", msg.Params)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for matching message")
	}
	if state := h.proto.State(); state != stateResolved {
		t.Errorf("expected state %s, got %s", stateResolved, state)
	}
	if !h.proto.IsDone() {
		t.Error("expected IsDone() in terminal state")
	}
}

func TestProtocolTimeoutState(t *testing.T) {
	defer goleak.VerifyNone(t)

	stateIdle := NewState(1, "Idle")
	stateBusy := NewState(2, "Busy")
	stateMap := StateMap{
		stateIdle: StateMapEntry{
			Agency: AgencyClient,
			Transitions: []StateTransition{
				{
					MsgType:  "STATS",
					NewState: stateBusy,
				},
			},
		},
		stateBusy: StateMapEntry{
			Agency:       AgencyServer,
			Timeout:      10 * time.Millisecond,
			TimeoutState: &stateIdle,
			Transitions: []StateTransition{
				{
					MsgType:  "211",
					NewState: stateIdle,
				},
			},
		},
	}

	h := newProtocolTestHarness(t, stateMap, stateIdle, []string{"211"})
	defer h.shutdown()

	if err := h.proto.SendMessage(irc.NewMessage("STATS", "l", "bob")); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	select {
	case state := <-h.timeoutChan:
		if state != stateBusy {
			t.Errorf("expected timeout in state %s, got %s", stateBusy, state)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for timeout handler")
	}
	if state := h.proto.State(); state != stateIdle {
		t.Errorf("expected state %s after timeout, got %s", stateIdle, state)
	}

	// No error should have been reported, since the state declared a timeout
	// target
	select {
	case err := <-h.errorChan:
		t.Errorf("unexpected error: %s", err)
	default:
	}
}

func TestProtocolTimeoutError(t *testing.T) {
	defer goleak.VerifyNone(t)

	stateIdle := NewState(1, "Idle")
	stateBusy := NewState(2, "Busy")
	stateMap := StateMap{
		stateIdle: StateMapEntry{
			Agency: AgencyClient,
			Transitions: []StateTransition{
				{
					MsgType:  "STATS",
					NewState: stateBusy,
				},
			},
		},
		stateBusy: StateMapEntry{
			Agency:  AgencyServer,
			Timeout: 10 * time.Millisecond,
			Transitions: []StateTransition{
				{
					MsgType:  "211",
					NewState: stateIdle,
				},
			},
		},
	}

	h := newProtocolTestHarness(t, stateMap, stateIdle, []string{"211"})
	defer h.shutdown()

	if err := h.proto.SendMessage(irc.NewMessage("STATS", "l", "bob")); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	select {
	case err := <-h.errorChan:
		if err == nil {
			t.Fatal("expected non-nil error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for timeout error")
	}
}

func TestProtocolSendAfterStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	stateIdle := NewState(1, "Idle")
	stateMap := StateMap{
		stateIdle: StateMapEntry{
			Agency: AgencyClient,
		},
	}

	h := newProtocolTestHarness(t, stateMap, stateIdle, []string{"211"})
	defer h.shutdown()

	h.proto.Stop()

	if err := h.proto.SendMessage(irc.NewMessage("STATS", "l", "bob")); err != ErrProtocolShuttingDown {
		t.Errorf("expected ErrProtocolShuttingDown, got %v", err)
	}
}
