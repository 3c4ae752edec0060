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

package statsquery

import (
	"fmt"
	"sync"
	"time"

	"github.com/blinklabs-io/ferret/hostaddr"
	"github.com/blinklabs-io/ferret/irc"
	"github.com/blinklabs-io/ferret/protocol"
)

// Client implements the querying side of the stats-query protocol. It holds
// at most one query at a time; a second query while one is pending fails
// with ErrProtocolBusy
type Client struct {
	*protocol.Protocol
	config          *Config
	callbackContext CallbackContext
	pendingMutex    sync.Mutex
	pending         *Query
	onceStart       sync.Once
	onceStop        sync.Once
}

// NewClient returns a new stats-query client object
func NewClient(protoOptions protocol.ProtocolOptions, cfg *Config) *Client {
	if cfg == nil {
		tmpCfg := NewConfig()
		cfg = &tmpCfg
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = DefaultQueryTimeout
	}
	c := &Client{
		config: cfg,
	}
	c.callbackContext = CallbackContext{
		ConnectionId: protoOptions.ConnectionId,
		Client:       c,
	}
	// The reply transitions depend on the pending query, so they are bound
	// to this client instance
	stateMap := StateMap.Copy()
	if entry, ok := stateMap[StateAwaitingStatusReply]; ok {
		entry.Timeout = cfg.QueryTimeout
		entry.TimeoutState = &StateIdle
		entry.Transitions = []protocol.StateTransition{
			{
				MsgType:   irc.RplStatsLinkInfo,
				NewState:  StateResolved,
				MatchFunc: c.matchResolvable,
			},
			{
				MsgType:   irc.RplStatsLinkInfo,
				NewState:  StateIdle,
				MatchFunc: c.matchNoAddress,
			},
			{
				MsgType:  irc.ErrNoPrivileges,
				NewState: StateRejected,
			},
		}
		stateMap[StateAwaitingStatusReply] = entry
	}
	protoConfig := protocol.ProtocolConfig{
		Name:         ProtocolName,
		Router:       protoOptions.Router,
		Logger:       protoOptions.Logger,
		ErrorChan:    protoOptions.ErrorChan,
		ConnectionId: protoOptions.ConnectionId,
		Commands: []string{
			irc.RplStatsLinkInfo,
			irc.ErrNoPrivileges,
		},
		MessageHandlerFunc: c.messageHandler,
		TimeoutHandlerFunc: c.timeoutHandler,
		StateMap:           stateMap,
		InitialState:       StateIdle,
	}
	c.Protocol = protocol.New(protoConfig)
	return c
}

// Start begins the stats-query protocol
func (c *Client) Start() {
	c.onceStart.Do(func() {
		c.Protocol.Logger().Debug(
			fmt.Sprintf("starting client protocol: %s", ProtocolName),
			"component", "network",
			"protocol", ProtocolName,
		)
		c.Protocol.Start()
	})
}

// Stop shuts down the stats-query protocol and abandons any pending query
func (c *Client) Stop() error {
	c.onceStop.Do(func() {
		c.Protocol.Logger().Debug(
			fmt.Sprintf("stopping client protocol: %s", ProtocolName),
			"component", "network",
			"protocol", ProtocolName,
		)
		c.Protocol.Stop()
		c.takePending()
	})
	return nil
}

// Query issues a status query for the given subject nickname. It returns
// immediately; the outcome is delivered through the configured callbacks
func (c *Client) Query(subject string) error {
	c.pendingMutex.Lock()
	if c.pending != nil {
		c.pendingMutex.Unlock()
		return protocol.ErrProtocolBusy
	}
	c.pending = &Query{
		Subject: subject,
		Issued:  time.Now(),
	}
	c.pendingMutex.Unlock()
	msg := irc.NewMessage("STATS", "L", subject)
	if err := c.SendMessage(msg); err != nil {
		c.takePending()
		return err
	}
	return nil
}

// Busy returns whether a query is currently pending
func (c *Client) Busy() bool {
	c.pendingMutex.Lock()
	defer c.pendingMutex.Unlock()
	return c.pending != nil
}

func (c *Client) takePending() *Query {
	c.pendingMutex.Lock()
	defer c.pendingMutex.Unlock()
	pending := c.pending
	c.pending = nil
	return pending
}

// matchResolvable reports whether the reply correlates to the pending query
// and carries a usable address
func (c *Client) matchResolvable(msg irc.Message) bool {
	addr, ok := c.correlate(msg)
	return ok && hostaddr.LooksLikeAddress(addr)
}

// matchNoAddress reports whether the reply correlates to the pending query
// but does not carry a usable address
func (c *Client) matchNoAddress(msg irc.Message) bool {
	addr, ok := c.correlate(msg)
	return ok && !hostaddr.LooksLikeAddress(addr)
}

// correlate parses a link-info reply and checks its embedded identity
// against the pending query. Replies for other identities, and replies
// arriving when nothing is pending, do not correlate
func (c *Client) correlate(msg irc.Message) (string, bool) {
	nick, addr, ok := ParseLinkName(msg.Param(1))
	if !ok {
		return "", false
	}
	c.pendingMutex.Lock()
	defer c.pendingMutex.Unlock()
	if c.pending == nil {
		return "", false
	}
	if !irc.FoldEqual(nick, c.pending.Subject) {
		return "", false
	}
	return addr, true
}

func (c *Client) messageHandler(msg irc.Message) error {
	var err error
	switch msg.Command {
	case irc.RplStatsLinkInfo:
		err = c.handleStatsLinkInfo(msg)
	case irc.ErrNoPrivileges:
		err = c.handleNoPrivileges()
	default:
		err = fmt.Errorf(
			"%s: received unexpected message: %s",
			ProtocolName,
			msg.Command,
		)
	}
	return err
}

func (c *Client) handleStatsLinkInfo(msg irc.Message) error {
	query := c.takePending()
	if query == nil {
		return nil
	}
	_, addr, ok := ParseLinkName(msg.Param(1))
	if ok && hostaddr.LooksLikeAddress(addr) {
		c.Protocol.Logger().Debug(
			fmt.Sprintf("resolved %s to %s", query.Subject, addr),
			"component", "network",
			"protocol", ProtocolName,
		)
		if c.config.ResolvedFunc != nil {
			return c.config.ResolvedFunc(c.callbackContext, *query, addr)
		}
		return nil
	}
	if c.config.NoAddressFunc != nil {
		return c.config.NoAddressFunc(c.callbackContext, *query)
	}
	return nil
}

func (c *Client) handleNoPrivileges() error {
	query := c.takePending()
	if query == nil {
		return nil
	}
	c.Protocol.Logger().Debug(
		fmt.Sprintf("query for %s rejected by server", query.Subject),
		"component", "network",
		"protocol", ProtocolName,
	)
	if c.config.RejectedFunc != nil {
		return c.config.RejectedFunc(c.callbackContext, *query)
	}
	return nil
}

func (c *Client) timeoutHandler(state protocol.State) error {
	if state != StateAwaitingStatusReply {
		return nil
	}
	query := c.takePending()
	if query == nil {
		return nil
	}
	c.Protocol.Logger().Debug(
		fmt.Sprintf("query for %s timed out", query.Subject),
		"component", "network",
		"protocol", ProtocolName,
	)
	if c.config.TimeoutFunc != nil {
		return c.config.TimeoutFunc(c.callbackContext, *query)
	}
	return nil
}
