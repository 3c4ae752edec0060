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

package ferret

import (
	"crypto/tls"
	"log/slog"
	"net"
	"time"

	"github.com/blinklabs-io/ferret/dispatch"
	"github.com/blinklabs-io/ferret/lookup"
	"github.com/blinklabs-io/ferret/protocol/pingpong"
	"github.com/blinklabs-io/ferret/protocol/registration"
	"github.com/blinklabs-io/ferret/protocol/statsquery"
	"github.com/blinklabs-io/ferret/roster"
)

// BotOptionFunc is a type that represents functions that modify the Bot config
type BotOptionFunc func(*Bot)

// WithConnection specifies an existing (net.Conn) connection to use. If none is provided, the Dial() function can be
// used to create one
func WithConnection(conn net.Conn) BotOptionFunc {
	return func(b *Bot) {
		b.conn = conn
	}
}

// WithNetworkTag specifies the short name identifying the IRC network. It's used in channel monitoring entries
// and log output
func WithNetworkTag(tag string) BotOptionFunc {
	return func(b *Bot) {
		b.networkTag = tag
	}
}

// WithTls specifies whether to wrap the connection in TLS when dialing
func WithTls(enabled bool) BotOptionFunc {
	return func(b *Bot) {
		b.useTls = enabled
	}
}

// WithTlsConfig specifies the TLS config used when dialing. Providing a config implies TLS
func WithTlsConfig(tlsConfig *tls.Config) BotOptionFunc {
	return func(b *Bot) {
		b.tlsConfig = tlsConfig
	}
}

// WithProxy specifies a SOCKS5 proxy address to dial through
func WithProxy(address string) BotOptionFunc {
	return func(b *Bot) {
		b.proxyAddress = address
	}
}

// WithDialTimeout specifies the timeout for establishing the connection, including the TLS handshake
func WithDialTimeout(timeout time.Duration) BotOptionFunc {
	return func(b *Bot) {
		b.dialTimeout = timeout
	}
}

// WithLogger specifies the logger used by the bot and its sub-protocols
func WithLogger(logger *slog.Logger) BotOptionFunc {
	return func(b *Bot) {
		b.logger = logger
	}
}

// WithErrorChan specifies the error channel to use. If none is provided, one will be created
func WithErrorChan(errorChan chan error) BotOptionFunc {
	return func(b *Bot) {
		b.errorChan = errorChan
	}
}

// WithChannels specifies the channels to join once registration finishes
func WithChannels(channels ...string) BotOptionFunc {
	return func(b *Bot) {
		b.channels = channels
	}
}

// WithRegistrationConfig specifies the registration (nick negotiation and SASL) protocol config
func WithRegistrationConfig(cfg registration.Config) BotOptionFunc {
	return func(b *Bot) {
		b.registrationConfig = &cfg
	}
}

// WithRosterConfig specifies the channel roster tracker config
func WithRosterConfig(cfg roster.Config) BotOptionFunc {
	return func(b *Bot) {
		b.rosterConfig = &cfg
	}
}

// WithPingPong specifies whether to run the ping-pong latency probe (enabled by default)
func WithPingPong(enabled bool) BotOptionFunc {
	return func(b *Bot) {
		b.enablePingPong = enabled
	}
}

// WithPingPongConfig specifies the ping-pong protocol config
func WithPingPongConfig(cfg pingpong.Config) BotOptionFunc {
	return func(b *Bot) {
		b.pingPongConfig = &cfg
	}
}

// WithStatsQueryConfig specifies the stats-query protocol config. The callback functions are managed by the bot
func WithStatsQueryConfig(cfg statsquery.Config) BotOptionFunc {
	return func(b *Bot) {
		b.statsQueryConfig = &cfg
	}
}

// WithLookupConfig specifies the lookup executor config. The result callback is managed by the bot
func WithLookupConfig(cfg lookup.Config) BotOptionFunc {
	return func(b *Bot) {
		b.lookupConfig = &cfg
	}
}

// WithOptionsFunc specifies the dispatcher options source. The dispatcher takes a fresh snapshot for each
// inbound message, so command behavior can change without restarting the bot
func WithOptionsFunc(optionsFunc dispatch.OptionsFunc) BotOptionFunc {
	return func(b *Bot) {
		b.optionsFunc = optionsFunc
	}
}
