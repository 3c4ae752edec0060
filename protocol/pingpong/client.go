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

package pingpong

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blinklabs-io/ferret/irc"
	"github.com/blinklabs-io/ferret/protocol"
)

// Client implements the client side of the ping-pong protocol
type Client struct {
	*protocol.Protocol
	config          *Config
	callbackContext CallbackContext
	timer           *time.Timer
	timerMutex      sync.Mutex
	probeMutex      sync.Mutex
	probeToken      string
	probeSentAt     time.Time
	probeSeq        uint64
	latency         atomic.Int64
	onceStart       sync.Once
}

// NewClient returns a new ping-pong client object
func NewClient(protoOptions protocol.ProtocolOptions, cfg *Config) *Client {
	if cfg == nil {
		tmpCfg := NewConfig()
		cfg = &tmpCfg
	}
	if cfg.Period <= 0 {
		cfg.Period = DefaultPingPeriod
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultPingTimeout
	}
	c := &Client{
		config: cfg,
	}
	c.callbackContext = CallbackContext{
		ConnectionId: protoOptions.ConnectionId,
		Client:       c,
	}
	// Both our own probes and server-initiated pings arrive as PING, so the
	// transitions are bound to this client instance to tell them apart by
	// token. A missed probe response has no timeout transition: it surfaces
	// as a protocol error, since the connection is presumed dead
	stateMap := StateMap.Copy()
	if entry, ok := stateMap[StateIdle]; ok {
		entry.Transitions = []protocol.StateTransition{
			{
				MsgType:   "PING",
				NewState:  StateAwaitingPong,
				MatchFunc: c.matchOwnProbe,
			},
			{
				MsgType:   "PING",
				NewState:  StateIdle,
				MatchFunc: c.matchServerPing,
			},
		}
		stateMap[StateIdle] = entry
	}
	if entry, ok := stateMap[StateAwaitingPong]; ok {
		entry.Timeout = cfg.Timeout
		entry.Transitions = []protocol.StateTransition{
			{
				MsgType:   "PONG",
				NewState:  StateIdle,
				MatchFunc: c.matchOwnProbe,
			},
			{
				MsgType:   "PING",
				NewState:  StateAwaitingPong,
				MatchFunc: c.matchServerPing,
			},
		}
		stateMap[StateAwaitingPong] = entry
	}
	protoConfig := protocol.ProtocolConfig{
		Name:         ProtocolName,
		Router:       protoOptions.Router,
		Logger:       protoOptions.Logger,
		ErrorChan:    protoOptions.ErrorChan,
		ConnectionId: protoOptions.ConnectionId,
		Commands: []string{
			"PING",
			"PONG",
		},
		MessageHandlerFunc: c.messageHandler,
		StateMap:           stateMap,
		InitialState:       StateIdle,
	}
	c.Protocol = protocol.New(protoConfig)
	return c
}

// Start begins the ping-pong protocol and sends the first probe
func (c *Client) Start() {
	c.onceStart.Do(func() {
		c.Protocol.Start()
		// Start goroutine to cleanup resources on protocol shutdown
		go func() {
			<-c.Protocol.DoneChan()
			c.timerMutex.Lock()
			if c.timer != nil {
				c.timer.Stop()
			}
			c.timerMutex.Unlock()
		}()
		c.sendProbe()
	})
}

// Stop shuts down the ping-pong protocol
func (c *Client) Stop() error {
	c.Protocol.Stop()
	return nil
}

// Latency returns the most recently measured round-trip time. It returns
// zero until the first probe has been answered
func (c *Client) Latency() time.Duration {
	return time.Duration(c.latency.Load())
}

func (c *Client) sendProbe() {
	// Don't re-arm the probe timer once the protocol has shut down
	select {
	case <-c.Protocol.DoneChan():
		return
	default:
	}
	c.probeMutex.Lock()
	c.probeSeq++
	c.probeToken = fmt.Sprintf("%d.%d", c.config.Cookie, c.probeSeq)
	c.probeSentAt = time.Now()
	msg := irc.NewMessage("PING", c.probeToken)
	c.probeMutex.Unlock()
	if err := c.SendMessage(msg); err != nil {
		c.SendError(err)
	}
	c.startTimer()
}

func (c *Client) startTimer() {
	c.timerMutex.Lock()
	defer c.timerMutex.Unlock()
	// Stop any existing timer
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.config.Period, c.sendProbe)
}

// matchOwnProbe reports whether the message carries the pending probe token
func (c *Client) matchOwnProbe(msg irc.Message) bool {
	c.probeMutex.Lock()
	defer c.probeMutex.Unlock()
	return c.probeToken != "" && msg.Trailing() == c.probeToken
}

func (c *Client) matchServerPing(msg irc.Message) bool {
	return !c.matchOwnProbe(msg)
}

func (c *Client) messageHandler(msg irc.Message) error {
	var err error
	switch msg.Command {
	case "PING":
		err = c.handlePing(msg)
	case "PONG":
		err = c.handlePong(msg)
	default:
		err = fmt.Errorf(
			"%s: received unexpected message: %s",
			ProtocolName,
			msg.Command,
		)
	}
	return err
}

// handlePing answers a server-initiated ping with its own token
func (c *Client) handlePing(msg irc.Message) error {
	token := msg.Trailing()
	if err := c.SendMessage(irc.NewMessage("PONG", token)); err != nil {
		return err
	}
	if c.config.PingFunc != nil {
		return c.config.PingFunc(c.callbackContext, token)
	}
	return nil
}

// handlePong records the round-trip time for an answered probe
func (c *Client) handlePong(msg irc.Message) error {
	token := msg.Trailing()
	c.probeMutex.Lock()
	// The period timer may have replaced the probe between the transition
	// match and this handler running
	if token != c.probeToken {
		c.probeMutex.Unlock()
		return nil
	}
	rtt := time.Since(c.probeSentAt)
	c.probeToken = ""
	c.probeMutex.Unlock()
	c.latency.Store(int64(rtt))
	c.Protocol.Logger().Debug(
		fmt.Sprintf("probe %s answered in %s", token, rtt),
		"component", "network",
		"protocol", ProtocolName,
	)
	if c.config.PongFunc != nil {
		return c.config.PongFunc(c.callbackContext, token, rtt)
	}
	return nil
}
