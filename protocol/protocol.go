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

// Package protocol provides a generic state-machine framework for the IRC
// sub-protocols implemented in this library. Each sub-protocol declares the
// commands it cares about and a state map describing the legal transitions,
// and the framework takes care of routing, transition matching, and
// per-state timeouts.
package protocol

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/blinklabs-io/ferret/irc"
)

// ProtocolOptions contains the common arguments passed to each sub-protocol
// when it's created for a connection
type ProtocolOptions struct {
	ConnectionId irc.ConnectionId
	Router       *irc.Router
	Logger       *slog.Logger
	ErrorChan    chan error
}

// MessageHandlerFunc is called for each inbound message that matched a
// transition in the current protocol state
type MessageHandlerFunc func(irc.Message) error

// TimeoutHandlerFunc is called when a state with a TimeoutState times out.
// The argument is the state that timed out
type TimeoutHandlerFunc func(State) error

// ProtocolConfig provides the configuration for Protocol
type ProtocolConfig struct {
	Name               string
	Router             *irc.Router
	Logger             *slog.Logger
	ErrorChan          chan error
	ConnectionId       irc.ConnectionId
	Commands           []string
	MessageHandlerFunc MessageHandlerFunc
	TimeoutHandlerFunc TimeoutHandlerFunc
	StateMap           StateMap
	InitialState       State
}

// Protocol implements the shared logic between the IRC sub-protocols. It
// subscribes to the configured commands on the connection's router and drives
// the state machine from both sent and received messages
type Protocol struct {
	config          ProtocolConfig
	logger          *slog.Logger
	recvChan        chan irc.Message
	stateMutex      sync.Mutex
	currentState    State
	transitionTimer *time.Timer
	// timerSeq invalidates timers belonging to states we've already left
	timerSeq  uint64
	doneChan  chan struct{}
	onceStart sync.Once
	onceStop  sync.Once
}

// New returns a new Protocol object for the specified configuration. The
// returned protocol is not registered with the router until Start is called
func New(config ProtocolConfig) *Protocol {
	if config.Logger == nil {
		config.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	p := &Protocol{
		config:   config,
		logger:   config.Logger,
		doneChan: make(chan struct{}),
	}
	return p
}

// Start subscribes the protocol to its commands and begins processing
// inbound messages
func (p *Protocol) Start() {
	p.onceStart.Do(func() {
		p.logger.Debug(
			"starting protocol",
			"component", "network",
			"protocol", p.config.Name,
			"connection_id", p.config.ConnectionId.String(),
		)
		p.stateMutex.Lock()
		p.setState(p.config.InitialState)
		p.stateMutex.Unlock()
		p.recvChan = p.config.Router.Subscribe(p.config.Commands...)
		go p.recvLoop()
	})
}

// Stop shuts down the protocol and removes its router subscription. It's
// safe to call multiple times
func (p *Protocol) Stop() {
	p.onceStop.Do(func() {
		p.logger.Debug(
			"stopping protocol",
			"component", "network",
			"protocol", p.config.Name,
			"connection_id", p.config.ConnectionId.String(),
		)
		if p.recvChan != nil {
			p.config.Router.Unsubscribe(p.recvChan)
		}
		p.stateMutex.Lock()
		p.timerSeq++
		if p.transitionTimer != nil {
			p.transitionTimer.Stop()
			p.transitionTimer = nil
		}
		p.stateMutex.Unlock()
		close(p.doneChan)
	})
}

// DoneChan returns a channel that is closed when the protocol shuts down
func (p *Protocol) DoneChan() <-chan struct{} {
	return p.doneChan
}

// Logger returns the logger for the protocol
func (p *Protocol) Logger() *slog.Logger {
	return p.logger
}

// State returns the current protocol state
func (p *Protocol) State() State {
	p.stateMutex.Lock()
	defer p.stateMutex.Unlock()
	return p.currentState
}

// IsDone returns whether the protocol has shut down or reached a terminal
// state
func (p *Protocol) IsDone() bool {
	select {
	case <-p.doneChan:
		return true
	default:
	}
	p.stateMutex.Lock()
	defer p.stateMutex.Unlock()
	// The initial state is never terminal, even when it has no agency
	if p.currentState == p.config.InitialState {
		return false
	}
	entry, ok := p.config.StateMap[p.currentState]
	if !ok {
		return false
	}
	return entry.Agency == AgencyNone
}

// SendMessage sends a message via the connection's router and applies any
// state transition that the sent command matches in the current state
func (p *Protocol) SendMessage(msg irc.Message) error {
	select {
	case <-p.doneChan:
		return ErrProtocolShuttingDown
	default:
	}
	p.stateMutex.Lock()
	defer p.stateMutex.Unlock()
	if err := p.config.Router.Send(msg); err != nil {
		return err
	}
	if transition, ok := p.matchTransition(msg); ok {
		p.setState(transition.NewState)
	}
	return nil
}

// SendError sends an error to the error channel provided at creation
func (p *Protocol) SendError(err error) {
	select {
	case p.config.ErrorChan <- err:
	case <-p.doneChan:
	}
}

func (p *Protocol) recvLoop() {
	for {
		select {
		case <-p.doneChan:
			return
		case <-p.config.Router.DoneChan():
			p.Stop()
			return
		case msg := <-p.recvChan:
			p.handleMessage(msg)
		}
	}
}

func (p *Protocol) handleMessage(msg irc.Message) {
	p.stateMutex.Lock()
	transition, ok := p.matchTransition(msg)
	if !ok {
		// IRC servers send replies we didn't ask for and replies for
		// requests that have already been abandoned. Anything that doesn't
		// match a transition in the current state is dropped rather than
		// treated as a protocol violation
		p.logger.Debug(
			fmt.Sprintf(
				"%s: ignoring %s message in protocol state %s",
				p.config.Name,
				msg.Command,
				p.currentState,
			),
			"component", "network",
			"protocol", p.config.Name,
		)
		p.stateMutex.Unlock()
		return
	}
	p.setState(transition.NewState)
	p.stateMutex.Unlock()
	// The handler runs outside the state mutex so that it can send messages
	// that trigger further transitions
	if p.config.MessageHandlerFunc != nil {
		if err := p.config.MessageHandlerFunc(msg); err != nil {
			p.SendError(err)
		}
	}
}

// matchTransition returns the first transition for the current state that
// matches the message. This function assumes the state mutex is held
func (p *Protocol) matchTransition(msg irc.Message) (StateTransition, bool) {
	entry, ok := p.config.StateMap[p.currentState]
	if !ok {
		return StateTransition{}, false
	}
	for _, transition := range entry.Transitions {
		if transition.MsgType != msg.Command {
			continue
		}
		if transition.MatchFunc != nil && !transition.MatchFunc(msg) {
			continue
		}
		return transition, true
	}
	return StateTransition{}, false
}

// setState transitions to the specified state and arms its timeout (if any).
// This function assumes the state mutex is held
func (p *Protocol) setState(state State) {
	p.timerSeq++
	if p.transitionTimer != nil {
		p.transitionTimer.Stop()
		p.transitionTimer = nil
	}
	p.logger.Debug(
		fmt.Sprintf(
			"%s: protocol state change: %s -> %s",
			p.config.Name,
			p.currentState,
			state,
		),
		"component", "network",
		"protocol", p.config.Name,
	)
	p.currentState = state
	if entry, ok := p.config.StateMap[state]; ok && entry.Timeout > 0 {
		seq := p.timerSeq
		p.transitionTimer = time.AfterFunc(entry.Timeout, func() {
			p.handleTimeout(state, seq)
		})
	}
}

func (p *Protocol) handleTimeout(state State, seq uint64) {
	select {
	case <-p.doneChan:
		return
	default:
	}
	p.stateMutex.Lock()
	// A stale timer can fire while a transition that stops it is already in
	// flight
	if seq != p.timerSeq {
		p.stateMutex.Unlock()
		return
	}
	entry := p.config.StateMap[state]
	if entry.TimeoutState == nil {
		p.stateMutex.Unlock()
		p.SendError(
			fmt.Errorf(
				"%s: timeout waiting on transition from protocol state %s",
				p.config.Name,
				state,
			),
		)
		return
	}
	p.setState(*entry.TimeoutState)
	p.stateMutex.Unlock()
	if p.config.TimeoutHandlerFunc != nil {
		if err := p.config.TimeoutHandlerFunc(state); err != nil {
			p.SendError(err)
		}
	}
}
