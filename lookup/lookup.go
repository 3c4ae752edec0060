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

// Package lookup runs the asynchronous address lookups behind chat commands.
// Each lookup fetches {base URL}{address} over HTTP on its own goroutine,
// reduces the response body to a single sanitized line, and hands the outcome
// to a callback without ever blocking the caller
package lookup

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/blinklabs-io/ferret/reply"
)

const (
	// DefaultTimeout is the default time limit for a single HTTP fetch
	DefaultTimeout = 10 * time.Second

	// maxReplyLines caps how many lines of the response body are kept
	maxReplyLines = 3

	// maxReplyLength caps the sanitized reply length in bytes
	maxReplyLength = 300

	// maxFetchBytes caps how much of the response body is read at all
	maxFetchBytes = 4096

	// noReplyText is delivered when the fetch yielded nothing usable
	noReplyText = "No reply"
)

// Ticket identifies a single lookup in flight
type Ticket struct {
	Id      uuid.UUID
	Address string
	Issued  time.Time
}

// Result carries the outcome of a finished lookup. Text is ready to be
// echoed into a channel. Dnsbl is empty unless a blocklist zone is
// configured and the address was eligible for a check
type Result struct {
	Ticket Ticket
	Text   string
	Flags  reply.Bits
	Dnsbl  string
}

// ResultFunc receives the outcome of every lookup, including failed ones
type ResultFunc func(Result) error

// Config is used to configure the lookup executor
type Config struct {
	BaseUrl      string
	Timeout      time.Duration
	ExtendedInfo bool
	DnsblZone    string
	DnsblServer  string
	ResultFunc   ResultFunc
	Logger       *slog.Logger
}

// LookupOptionFunc represents a function used to modify the executor config
type LookupOptionFunc func(*Config)

// NewConfig returns a new executor config object with the provided options
func NewConfig(options ...LookupOptionFunc) Config {
	c := Config{
		Timeout: DefaultTimeout,
	}
	// Apply provided options functions
	for _, option := range options {
		option(&c)
	}
	return c
}

// WithBaseUrl specifies the URL prefix the looked-up address is appended to
func WithBaseUrl(baseUrl string) LookupOptionFunc {
	return func(c *Config) {
		c.BaseUrl = baseUrl
	}
}

// WithTimeout specifies the time limit for a single HTTP fetch
func WithTimeout(timeout time.Duration) LookupOptionFunc {
	return func(c *Config) {
		c.Timeout = timeout
	}
}

// WithExtendedInfo specifies whether failure replies name the base URL
func WithExtendedInfo(extendedInfo bool) LookupOptionFunc {
	return func(c *Config) {
		c.ExtendedInfo = extendedInfo
	}
}

// WithDnsbl specifies a DNS blocklist zone consulted for IPv4 lookups.
// An empty zone disables the check
func WithDnsbl(zone string) LookupOptionFunc {
	return func(c *Config) {
		c.DnsblZone = zone
	}
}

// WithDnsblServer specifies the DNS server (host:port) used for blocklist
// queries instead of the system resolver
func WithDnsblServer(server string) LookupOptionFunc {
	return func(c *Config) {
		c.DnsblServer = server
	}
}

// WithResultFunc specifies the callback receiving finished lookups
func WithResultFunc(resultFunc ResultFunc) LookupOptionFunc {
	return func(c *Config) {
		c.ResultFunc = resultFunc
	}
}

// WithLogger specifies the logger used by the executor
func WithLogger(logger *slog.Logger) LookupOptionFunc {
	return func(c *Config) {
		c.Logger = logger
	}
}
