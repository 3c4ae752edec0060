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

// Package pingpong implements the PING/PONG liveness protocol. The client
// periodically sends a PING carrying a token derived from a configured cookie
// and a sequence number, matches the returned PONG against that token to
// measure round-trip latency, and answers any PING the server sends on its
// own. A probe that is never answered is treated as a dead connection.
package pingpong

import (
	"time"

	"github.com/blinklabs-io/ferret/irc"
	"github.com/blinklabs-io/ferret/protocol"
)

const (
	// ProtocolName is the name of the ping-pong protocol
	ProtocolName = "ping-pong"
	// DefaultPingPeriod is the default interval between probes
	DefaultPingPeriod = 60 * time.Second
	// DefaultPingTimeout is the default timeout for a probe response
	DefaultPingTimeout = 30 * time.Second
)

// Protocol states
var (
	StateIdle         = protocol.NewState(1, "Idle")
	StateAwaitingPong = protocol.NewState(2, "AwaitingPong")
)

// StateMap is the base state map for the protocol. The PING/PONG transitions
// depend on the pending probe token, so they are attached per client by
// NewClient
var StateMap = protocol.StateMap{
	StateIdle: protocol.StateMapEntry{
		Agency: protocol.AgencyClient,
	},
	StateAwaitingPong: protocol.StateMapEntry{
		Agency: protocol.AgencyServer,
	},
}

// CallbackContext is the additional context provided to callback functions
type CallbackContext struct {
	ConnectionId irc.ConnectionId
	Client       *Client
}

// Callback function types
type (
	// PingFunc is called when the server sends a PING of its own. The string
	// argument is the server's token, which has already been answered
	PingFunc func(CallbackContext, string) error
	// PongFunc is called when a probe is answered. The arguments are the
	// probe token and the measured round-trip time
	PongFunc func(CallbackContext, string, time.Duration) error
)

// Config is used to configure the protocol instance
type Config struct {
	PingFunc PingFunc
	PongFunc PongFunc
	Timeout  time.Duration
	Period   time.Duration
	Cookie   uint16
}

// PingPongOptionFunc describes a function used to set configuration options
type PingPongOptionFunc func(*Config)

// NewConfig returns a new ping-pong config with the provided options
func NewConfig(options ...PingPongOptionFunc) Config {
	c := Config{
		Period:  DefaultPingPeriod,
		Timeout: DefaultPingTimeout,
	}
	for _, option := range options {
		option(&c)
	}
	return c
}

// WithPingFunc specifies the callback for server-initiated pings
func WithPingFunc(pingFunc PingFunc) PingPongOptionFunc {
	return func(c *Config) {
		c.PingFunc = pingFunc
	}
}

// WithPongFunc specifies the callback for answered probes
func WithPongFunc(pongFunc PongFunc) PingPongOptionFunc {
	return func(c *Config) {
		c.PongFunc = pongFunc
	}
}

// WithTimeout specifies how long to wait for a probe response
func WithTimeout(timeout time.Duration) PingPongOptionFunc {
	return func(c *Config) {
		c.Timeout = timeout
	}
}

// WithPeriod specifies the interval between probes
func WithPeriod(period time.Duration) PingPongOptionFunc {
	return func(c *Config) {
		c.Period = period
	}
}

// WithCookie specifies the cookie value embedded in probe tokens
func WithCookie(cookie uint16) PingPongOptionFunc {
	return func(c *Config) {
		c.Cookie = cookie
	}
}
