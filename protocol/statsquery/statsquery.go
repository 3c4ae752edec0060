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

// Package statsquery implements the server-side address resolution protocol.
// A STATS link-info query is issued for a nickname and the numeric replies
// are correlated back to it: a link-info reply whose embedded identity
// matches the pending subject resolves the query, a no-privileges reply
// rejects it, and anything else is ignored. A query that never receives a
// correlated reply times out back to the idle state instead of wedging the
// request slot.
package statsquery

import (
	"strings"
	"time"

	"github.com/blinklabs-io/ferret/irc"
	"github.com/blinklabs-io/ferret/protocol"
)

const (
	ProtocolName = "stats-query"

	// DefaultQueryTimeout bounds how long a query waits for a correlated
	// reply before giving the slot back
	DefaultQueryTimeout = 10 * time.Second
)

// Protocol states
var (
	StateIdle                = protocol.NewState(1, "Idle")
	StateAwaitingStatusReply = protocol.NewState(2, "AwaitingStatusReply")
	StateResolved            = protocol.NewState(3, "Resolved")
	StateRejected            = protocol.NewState(4, "Rejected")
)

// StateMap is the base state map for the protocol. The transitions out of
// AwaitingStatusReply depend on the pending query, so they are attached per
// client by NewClient
var StateMap = protocol.StateMap{
	StateIdle: protocol.StateMapEntry{
		Agency: protocol.AgencyClient,
		Transitions: []protocol.StateTransition{
			{
				MsgType:  "STATS",
				NewState: StateAwaitingStatusReply,
			},
		},
	},
	StateAwaitingStatusReply: protocol.StateMapEntry{
		Agency: protocol.AgencyServer,
	},
	StateResolved: protocol.StateMapEntry{
		Agency: protocol.AgencyClient,
		Transitions: []protocol.StateTransition{
			{
				MsgType:  "STATS",
				NewState: StateAwaitingStatusReply,
			},
		},
	},
	StateRejected: protocol.StateMapEntry{
		Agency: protocol.AgencyClient,
		Transitions: []protocol.StateTransition{
			{
				MsgType:  "STATS",
				NewState: StateAwaitingStatusReply,
			},
		},
	},
}

// Query describes a single in-flight status query
type Query struct {
	Subject string
	Issued  time.Time
}

// CallbackContext is the additional context provided to callback functions
type CallbackContext struct {
	ConnectionId irc.ConnectionId
	Client       *Client
}

// Callback function types
type (
	// ResolvedFunc is called when a correlated reply carried a usable address
	ResolvedFunc func(CallbackContext, Query, string) error
	// NoAddressFunc is called when a correlated reply carried no usable
	// address
	NoAddressFunc func(CallbackContext, Query) error
	// RejectedFunc is called when the server refused the query outright
	RejectedFunc func(CallbackContext, Query) error
	// TimeoutFunc is called when no correlated reply arrived in time
	TimeoutFunc func(CallbackContext, Query) error
)

// Config is used to configure the protocol instance
type Config struct {
	QueryTimeout  time.Duration
	ResolvedFunc  ResolvedFunc
	NoAddressFunc NoAddressFunc
	RejectedFunc  RejectedFunc
	TimeoutFunc   TimeoutFunc
}

// StatsQueryOptionFunc describes a function used to set configuration options
type StatsQueryOptionFunc func(*Config)

// NewConfig returns a new stats-query config with the provided options
func NewConfig(options ...StatsQueryOptionFunc) Config {
	c := Config{
		QueryTimeout: DefaultQueryTimeout,
	}
	for _, option := range options {
		option(&c)
	}
	return c
}

// WithQueryTimeout specifies how long to wait for a correlated reply
func WithQueryTimeout(timeout time.Duration) StatsQueryOptionFunc {
	return func(c *Config) {
		c.QueryTimeout = timeout
	}
}

// WithResolvedFunc specifies the callback for resolved queries
func WithResolvedFunc(resolvedFunc ResolvedFunc) StatsQueryOptionFunc {
	return func(c *Config) {
		c.ResolvedFunc = resolvedFunc
	}
}

// WithNoAddressFunc specifies the callback for correlated replies without a
// usable address
func WithNoAddressFunc(noAddressFunc NoAddressFunc) StatsQueryOptionFunc {
	return func(c *Config) {
		c.NoAddressFunc = noAddressFunc
	}
}

// WithRejectedFunc specifies the callback for rejected queries
func WithRejectedFunc(rejectedFunc RejectedFunc) StatsQueryOptionFunc {
	return func(c *Config) {
		c.RejectedFunc = rejectedFunc
	}
}

// WithTimeoutFunc specifies the callback for queries that never received a
// correlated reply
func WithTimeoutFunc(timeoutFunc TimeoutFunc) StatsQueryOptionFunc {
	return func(c *Config) {
		c.TimeoutFunc = timeoutFunc
	}
}

// ParseLinkName splits a link-info name of the form nick[user@host] into its
// nickname and host address parts. The address is lower-cased and trimmed.
// ok is false when the name does not have the expected shape.
//
// Nicknames may themselves contain brackets under the rfc1459 casemapping,
// so the user@host group starts at the last opening bracket
func ParseLinkName(linkName string) (string, string, bool) {
	open := strings.LastIndexByte(linkName, '[')
	if open <= 0 {
		return "", "", false
	}
	end := strings.LastIndexByte(linkName, ']')
	if end < open {
		return "", "", false
	}
	at := strings.IndexByte(linkName[open:end], '@')
	if at < 0 {
		return "", "", false
	}
	nick := linkName[:open]
	addr := strings.ToLower(strings.TrimSpace(linkName[open+at+1 : end]))
	return nick, addr, true
}
