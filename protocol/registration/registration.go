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

// Package registration implements the IRC connection registration protocol:
// PASS/NICK/USER, nickname-collision fallback, and optional SASL
// authentication (PLAIN and SCRAM-SHA-256) via CAP negotiation. The protocol
// finishes when the server sends its welcome reply
package registration

import (
	"strings"
	"time"

	"github.com/blinklabs-io/ferret/irc"
	"github.com/blinklabs-io/ferret/protocol"
)

const (
	// ProtocolName is the name of the registration protocol
	ProtocolName = "registration"
	// DefaultRegistrationTimeout bounds each step of the registration
	// exchange. Servers commonly stall for ident and DNS lookups before
	// answering, so this is deliberately generous
	DefaultRegistrationTimeout = 60 * time.Second
	// maxNickAttempts bounds how many nicknames are tried before giving up
	maxNickAttempts = 8
)

// SASL mechanisms supported by the client
const (
	SaslMechanismPlain       = "PLAIN"
	SaslMechanismScramSha256 = "SCRAM-SHA-256"
)

// Protocol states
var (
	StateIdle            = protocol.NewState(1, "Idle")
	StateCapNegotiation  = protocol.NewState(2, "CapNegotiation")
	StateAuthenticating  = protocol.NewState(3, "Authenticating")
	StateAwaitingWelcome = protocol.NewState(4, "AwaitingWelcome")
	StateDone            = protocol.NewState(5, "Done")
)

// StateMap is the base state map for the protocol. The transitions out of
// CapNegotiation need to inspect the CAP subcommand, so they are attached
// per client by NewClient
var StateMap = protocol.StateMap{
	StateIdle: protocol.StateMapEntry{
		Agency: protocol.AgencyClient,
		Transitions: []protocol.StateTransition{
			{
				// Requesting the sasl capability defers NICK/USER completion
				// until authentication is done
				MsgType:   "CAP",
				NewState:  StateCapNegotiation,
				MatchFunc: matchCapReq,
			},
			{
				MsgType:  "USER",
				NewState: StateAwaitingWelcome,
			},
		},
	},
	StateCapNegotiation: protocol.StateMapEntry{
		Agency: protocol.AgencyServer,
	},
	StateAuthenticating: protocol.StateMapEntry{
		Agency: protocol.AgencyServer,
		Transitions: []protocol.StateTransition{
			{
				MsgType:  "AUTHENTICATE",
				NewState: StateAuthenticating,
			},
			{
				MsgType:  irc.RplLoggedIn,
				NewState: StateAuthenticating,
			},
			{
				MsgType:  irc.RplSaslSuccess,
				NewState: StateAuthenticating,
			},
			{
				// Sending CAP END completes the capability negotiation
				MsgType:   "CAP",
				NewState:  StateAwaitingWelcome,
				MatchFunc: matchCapEnd,
			},
			{
				MsgType:  irc.ErrSaslFail,
				NewState: StateDone,
			},
			{
				MsgType:  irc.ErrSaslTooLong,
				NewState: StateDone,
			},
			{
				MsgType:  irc.ErrSaslAborted,
				NewState: StateDone,
			},
			{
				// A nickname collision can be reported while authentication
				// is still in progress, since NICK is pipelined with CAP
				MsgType:  irc.ErrNicknameInUse,
				NewState: StateAuthenticating,
			},
			{
				MsgType:  irc.ErrPasswdMismatch,
				NewState: StateDone,
			},
			{
				MsgType:  "PING",
				NewState: StateAuthenticating,
			},
		},
	},
	StateAwaitingWelcome: protocol.StateMapEntry{
		Agency: protocol.AgencyServer,
		Transitions: []protocol.StateTransition{
			{
				MsgType:  irc.RplWelcome,
				NewState: StateDone,
			},
			{
				MsgType:  irc.ErrNicknameInUse,
				NewState: StateAwaitingWelcome,
			},
			{
				MsgType:  irc.ErrPasswdMismatch,
				NewState: StateDone,
			},
			{
				MsgType:  "PING",
				NewState: StateAwaitingWelcome,
			},
		},
	},
	StateDone: protocol.StateMapEntry{
		Agency: protocol.AgencyNone,
	},
}

// CAP is used in both directions: we send REQ and END, the server sends ACK
// and NAK (and unsolicited LS/NEW/DEL notifications, which are ignored).
// These match functions keep the sent commands from colliding with the
// server's replies in the state map
func matchCapReq(msg irc.Message) bool {
	return strings.EqualFold(msg.Param(0), "REQ")
}

func matchCapEnd(msg irc.Message) bool {
	return strings.EqualFold(msg.Param(0), "END")
}

// CallbackContext is the additional context provided to callback functions
type CallbackContext struct {
	ConnectionId irc.ConnectionId
	Client       *Client
}

// FinishedFunc is called when registration completes. The string argument is
// the nickname the server registered us under, which may differ from the one
// requested
type FinishedFunc func(CallbackContext, string) error

// Config is used to configure the protocol instance
type Config struct {
	Nick           string
	AltNicks       []string
	Username       string
	Realname       string
	ServerPassword string
	SaslMechanism  string
	SaslUsername   string
	SaslPassword   string
	FinishedFunc   FinishedFunc
	Timeout        time.Duration
}

// RegistrationOptionFunc describes a function used to set configuration
// options
type RegistrationOptionFunc func(*Config)

// NewConfig returns a new registration config with the provided options
func NewConfig(options ...RegistrationOptionFunc) Config {
	c := Config{
		Timeout: DefaultRegistrationTimeout,
	}
	for _, option := range options {
		option(&c)
	}
	return c
}

// WithNick specifies the nickname to register
func WithNick(nick string) RegistrationOptionFunc {
	return func(c *Config) {
		c.Nick = nick
	}
}

// WithAltNicks specifies fallback nicknames tried in order when the
// preferred one is taken
func WithAltNicks(altNicks ...string) RegistrationOptionFunc {
	return func(c *Config) {
		c.AltNicks = altNicks
	}
}

// WithUsername specifies the username for the USER command
func WithUsername(username string) RegistrationOptionFunc {
	return func(c *Config) {
		c.Username = username
	}
}

// WithRealname specifies the realname for the USER command
func WithRealname(realname string) RegistrationOptionFunc {
	return func(c *Config) {
		c.Realname = realname
	}
}

// WithServerPassword specifies the connection password sent via PASS
func WithServerPassword(password string) RegistrationOptionFunc {
	return func(c *Config) {
		c.ServerPassword = password
	}
}

// WithSasl specifies the SASL mechanism and credentials. An empty mechanism
// disables SASL
func WithSasl(mechanism string, username string, password string) RegistrationOptionFunc {
	return func(c *Config) {
		c.SaslMechanism = mechanism
		c.SaslUsername = username
		c.SaslPassword = password
	}
}

// WithFinishedFunc specifies the callback for completed registration
func WithFinishedFunc(finishedFunc FinishedFunc) RegistrationOptionFunc {
	return func(c *Config) {
		c.FinishedFunc = finishedFunc
	}
}

// WithTimeout specifies the per-step registration timeout
func WithTimeout(timeout time.Duration) RegistrationOptionFunc {
	return func(c *Config) {
		c.Timeout = timeout
	}
}
