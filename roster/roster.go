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

// Package roster maintains a directory of channel members built from NAMES
// and WHO replies and kept current through join/part/quit/kick/nick/mode
// traffic. A channel is considered synchronized only once both the NAMES and
// WHO exchanges have completed, since NAMES alone does not carry user@host
// identities.
package roster

import (
	"github.com/blinklabs-io/ferret/irc"
)

// ComponentName is the name used in log output
const ComponentName = "roster"

// Member is a single channel member. User and Host may be empty until the
// WHO exchange for the channel completes
type Member struct {
	Nick   string
	User   string
	Host   string
	Oper   bool
	Halfop bool
	Voice  bool
}

// Privileged returns whether the member holds operator, half-operator, or
// voice status
func (m Member) Privileged() bool {
	return m.Oper || m.Halfop || m.Voice
}

// Identity returns the user@host identity of the member, or an empty string
// if it isn't known yet
func (m Member) Identity() string {
	if m.User == "" && m.Host == "" {
		return ""
	}
	return m.User + "@" + m.Host
}

// CallbackContext is the additional context provided to callback functions
type CallbackContext struct {
	ConnectionId irc.ConnectionId
	Tracker      *Tracker
}

// SyncedFunc is called when a channel's NAMES and WHO exchanges have both
// completed
type SyncedFunc func(CallbackContext, string) error

// Config is used to configure the roster tracker
type Config struct {
	OwnNick    string
	SyncedFunc SyncedFunc
}

// ConfigOptionFunc describes a function used to set configuration options
type ConfigOptionFunc func(*Config)

// NewConfig returns a new roster config with the provided options
func NewConfig(options ...ConfigOptionFunc) Config {
	c := Config{}
	for _, option := range options {
		option(&c)
	}
	return c
}

// WithOwnNick specifies the nickname the connection registered with. The
// tracker follows subsequent NICK changes on its own
func WithOwnNick(nick string) ConfigOptionFunc {
	return func(c *Config) {
		c.OwnNick = nick
	}
}

// WithSyncedFunc specifies the callback for channel synchronization
func WithSyncedFunc(syncedFunc SyncedFunc) ConfigOptionFunc {
	return func(c *Config) {
		c.SyncedFunc = syncedFunc
	}
}
