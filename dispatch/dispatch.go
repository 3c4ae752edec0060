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

// Package dispatch turns channel messages into address lookups. Each inbound
// message runs through an admission sequence (single in-flight slot, latency
// ceiling, monitored channel, roster sync, privilege, membership, command
// prefix, flood gate), is classified, and then drives either the stats-query
// correlator or the lookup executor. Replies are formatted with provenance
// and quality tags and sent back to the originating channel.
package dispatch

import (
	"time"

	"github.com/google/uuid"

	"github.com/blinklabs-io/ferret/floodgate"
	"github.com/blinklabs-io/ferret/lookup"
	"github.com/blinklabs-io/ferret/reply"
	"github.com/blinklabs-io/ferret/roster"
)

const (
	// ComponentName is the name used in log output
	ComponentName = "dispatch"

	DefaultCommandName   = "ip"
	DefaultCommandPrefix = "!"

	// DefaultWebGateway is the web gateway domain recognized out of the box
	DefaultWebGateway = "mibbit.com"
)

// Fixed reply texts
const (
	processingText    = "Processing..."
	notAnAddressText  = "Not an IP(4/6) address or nickname"
	noAddressText     = "You do not seem to have an IP"
	lookingUpText     = "Looking up "
	versionProjectUrl = "https://github.com/blinklabs-io/ferret"
)

// MemberDirectory answers membership questions about monitored channels.
// It is implemented by roster.Tracker
type MemberDirectory interface {
	Synced(channel string) bool
	Member(channel string, nick string) (roster.Member, bool)
	Self(channel string) (roster.Member, bool)
	OwnNick() string
}

// StatsQuerier issues a correlated server status query for a nickname.
// It is implemented by statsquery.Client
type StatsQuerier interface {
	Query(subject string) error
}

// Fetcher starts an asynchronous address lookup. It is implemented by
// lookup.Executor
type Fetcher interface {
	Execute(address string) lookup.Ticket
}

// LatencyMeter reports the measured server round-trip time. It is
// implemented by pingpong.Client
type LatencyMeter interface {
	Latency() time.Duration
}

// Notices selects which informational lines are sent ahead of a lookup,
// keyed by the provenance of the branch taken
type Notices struct {
	Processing bool
	Argument   bool
	Webchat    bool
	Public     bool
	StatsReply bool
	Nick       bool
}

// AllNotices returns a Notices value with every category enabled
func AllNotices() Notices {
	return Notices{
		Processing: true,
		Argument:   true,
		Webchat:    true,
		Public:     true,
		StatsReply: true,
		Nick:       true,
	}
}

func (n Notices) enabled(bit reply.Bits) bool {
	switch bit {
	case reply.BitArgument:
		return n.Argument
	case reply.BitWebchat:
		return n.Webchat
	case reply.BitPublic:
		return n.Public
	case reply.BitStatsReply:
		return n.StatsReply
	case reply.BitNick:
		return n.Nick
	}
	return true
}

// Options is the per-invocation configuration snapshot. The dispatcher asks
// for a fresh snapshot on every inbound message, so settings changes apply
// to the next invocation without restarting anything
type Options struct {
	// CommandName is the lookup command, without the prefix character
	CommandName string
	// CommandPrefix marks a message as a command
	CommandPrefix string
	// Channels lists the monitored channels as "network/#channel" entries
	Channels []string
	// RequirePrivilege requires the bot itself to hold op, halfop, or voice
	// in the channel before commands are served
	RequirePrivilege bool
	// MaxLatency rejects commands while the measured server round-trip time
	// exceeds it. Zero disables the check
	MaxLatency time.Duration
	// FloodLimit and FloodWindow bound admitted commands per rolling window
	FloodLimit  int
	FloodWindow time.Duration
	// EnableWebchat enables hex-decoding of web gateway idents
	EnableWebchat bool
	// WebGateways lists the web gateway domains recognized for decoding
	WebGateways []string
	// EnableHelp and EnableVersion gate the informational commands
	EnableHelp    bool
	EnableVersion bool
	// Version is the string reported by the version command
	Version string
	// Notices selects the informational lines sent ahead of a lookup
	Notices Notices
	// ShowPrefix, LongLabels, and ShowCommandBanner control reply formatting
	ShowPrefix        bool
	LongLabels        bool
	ShowCommandBanner bool
}

// DefaultOptions returns the options used when no snapshot source is
// configured. No channels are monitored by default
func DefaultOptions() Options {
	return Options{
		CommandName:   DefaultCommandName,
		CommandPrefix: DefaultCommandPrefix,
		FloodLimit:    floodgate.DefaultLimit,
		FloodWindow:   floodgate.DefaultWindow,
		EnableWebchat: true,
		WebGateways:   []string{DefaultWebGateway},
		EnableHelp:    true,
		EnableVersion: true,
		Notices:       AllNotices(),
		ShowPrefix:    true,
	}
}

// OptionsFunc returns the current options snapshot. It is consulted once per
// inbound message
type OptionsFunc func() Options

// Request is the single in-flight lookup. It captures everything needed to
// deliver the reply once the asynchronous resolution settles, because the
// originating message is long gone by then
type Request struct {
	Id        uuid.UUID
	Network   string
	Channel   string
	Requester string
	// Subject is the stats-query nickname when the correlator is engaged
	Subject string
	// Ticket identifies the executor lookup once one is running
	Ticket lookup.Ticket
	Issued time.Time
}

// Config is used to configure the dispatcher
type Config struct {
	OptionsFunc OptionsFunc
	Directory   MemberDirectory
	Stats       StatsQuerier
	Fetcher     Fetcher
	Latency     LatencyMeter
	// Network is this connection's tag in the monitored channel set
	Network string
}

// DispatchOptionFunc represents a function used to modify the dispatcher
// config
type DispatchOptionFunc func(*Config)

// NewConfig returns a new dispatcher config object with the provided options
func NewConfig(options ...DispatchOptionFunc) Config {
	c := Config{}
	// Apply provided options functions
	for _, option := range options {
		option(&c)
	}
	return c
}

// WithOptionsFunc specifies the per-invocation options snapshot source
func WithOptionsFunc(optionsFunc OptionsFunc) DispatchOptionFunc {
	return func(c *Config) {
		c.OptionsFunc = optionsFunc
	}
}

// WithDirectory specifies the channel member directory
func WithDirectory(directory MemberDirectory) DispatchOptionFunc {
	return func(c *Config) {
		c.Directory = directory
	}
}

// WithStatsQuerier specifies the correlated status query client
func WithStatsQuerier(stats StatsQuerier) DispatchOptionFunc {
	return func(c *Config) {
		c.Stats = stats
	}
}

// WithFetcher specifies the lookup executor
func WithFetcher(fetcher Fetcher) DispatchOptionFunc {
	return func(c *Config) {
		c.Fetcher = fetcher
	}
}

// WithLatencyMeter specifies the server round-trip time source
func WithLatencyMeter(latency LatencyMeter) DispatchOptionFunc {
	return func(c *Config) {
		c.Latency = latency
	}
}

// WithNetwork specifies this connection's tag in the monitored channel set
func WithNetwork(network string) DispatchOptionFunc {
	return func(c *Config) {
		c.Network = network
	}
}
