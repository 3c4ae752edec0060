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

// Package ferret implements an IRC bot that looks up the network addresses
// behind channel members without ever blocking on the IRC connection.
//
// The bot consists of a message router and multiple sub-protocols layered on
// top of a single server connection. Registration (including SASL), ping-pong
// latency probing, channel roster tracking, and STATS link queries each run
// as their own sub-protocol, and a dispatcher ties them to the HTTP lookup
// executor.
//
// This package is the main entry point into this library. The other packages
// can be used outside of this one, but it's not a primary design goal.
package ferret

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/net/proxy"

	"github.com/blinklabs-io/ferret/dispatch"
	"github.com/blinklabs-io/ferret/irc"
	"github.com/blinklabs-io/ferret/lookup"
	"github.com/blinklabs-io/ferret/protocol"
	"github.com/blinklabs-io/ferret/protocol/pingpong"
	"github.com/blinklabs-io/ferret/protocol/registration"
	"github.com/blinklabs-io/ferret/protocol/statsquery"
	"github.com/blinklabs-io/ferret/roster"
)

// The Bot type is a wrapper around a net.Conn object that handles one IRC
// session over that connection
type Bot struct {
	conn           net.Conn
	networkTag     string
	useTls         bool
	tlsConfig      *tls.Config
	proxyAddress   string
	dialTimeout    time.Duration
	logger         *slog.Logger
	errorChan      chan error
	protoErrorChan chan error
	registeredChan chan string
	doneChan       chan struct{}
	waitGroup      sync.WaitGroup
	onceClose      sync.Once
	enablePingPong bool
	channels       []string
	router         *irc.Router
	// Sub-protocols
	registration       *registration.Client
	registrationConfig *registration.Config
	pingPong           *pingpong.Client
	pingPongConfig     *pingpong.Config
	statsQuery         *statsquery.Client
	statsQueryConfig   *statsquery.Config
	tracker            *roster.Tracker
	rosterConfig       *roster.Config
	dispatcher         *dispatch.Dispatcher
	optionsFunc        dispatch.OptionsFunc
	executor           *lookup.Executor
	lookupConfig       *lookup.Config
}

// NewBot returns a new Bot object with the specified options. If a connection
// is provided, registration will be started. An error will be returned if
// registration fails
func NewBot(options ...BotOptionFunc) (*Bot, error) {
	b := &Bot{
		protoErrorChan: make(chan error, 10),
		registeredChan: make(chan string, 1),
		doneChan:       make(chan struct{}),
		enablePingPong: true,
	}
	// Apply provided options functions
	for _, option := range options {
		option(b)
	}
	if b.errorChan == nil {
		b.errorChan = make(chan error, 10)
	}
	if b.logger == nil {
		b.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if b.conn != nil {
		if err := b.setup(); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// New is an alias to NewBot
func New(options ...BotOptionFunc) (*Bot, error) {
	return NewBot(options...)
}

// Router returns the message router for the connection
func (b *Bot) Router() *irc.Router {
	return b.router
}

// ErrorChan returns the channel for asynchronous errors. It is closed once
// the bot has fully shut down
func (b *Bot) ErrorChan() chan error {
	return b.errorChan
}

// Id returns the connection ID for the underlying connection
func (b *Bot) Id() irc.ConnectionId {
	if b.router == nil {
		return irc.ConnectionId{}
	}
	return b.router.ConnectionId()
}

// NetworkTag returns the short name identifying the IRC network
func (b *Bot) NetworkTag() string {
	return b.networkTag
}

// Dial will establish a connection using the specified protocol and address.
// TLS, proxying, and the dial timeout are taken from the bot options.
// Registration will be started when a connection is established. An error
// will be returned if the connection fails, a connection was already
// established, or registration fails
func (b *Bot) Dial(proto string, address string) error {
	if b.conn != nil {
		return errors.New("a connection was already established")
	}
	dialer := &net.Dialer{Timeout: b.dialTimeout}
	var conn net.Conn
	var err error
	if b.proxyAddress != "" {
		var proxyDialer proxy.Dialer
		proxyDialer, err = proxy.SOCKS5(proto, b.proxyAddress, nil, dialer)
		if err != nil {
			return err
		}
		conn, err = proxyDialer.Dial(proto, address)
	} else {
		conn, err = dialer.Dial(proto, address)
	}
	if err != nil {
		return err
	}
	if b.useTls || b.tlsConfig != nil {
		tlsConfig := b.tlsConfig
		if tlsConfig == nil {
			host, _, splitErr := net.SplitHostPort(address)
			if splitErr != nil {
				conn.Close()
				return splitErr
			}
			tlsConfig = &tls.Config{
				ServerName: host,
				MinVersion: tls.VersionTLS12,
			}
		}
		tlsConn := tls.Client(conn, tlsConfig)
		// Bound the TLS handshake by the dial timeout, then clear the
		// deadline for normal operation
		if b.dialTimeout > 0 {
			if err := tlsConn.SetDeadline(time.Now().Add(b.dialTimeout)); err != nil {
				conn.Close()
				return err
			}
		}
		if err := tlsConn.Handshake(); err != nil {
			conn.Close()
			return err
		}
		if err := tlsConn.SetDeadline(time.Time{}); err != nil {
			conn.Close()
			return err
		}
		conn = tlsConn
	}
	b.conn = conn
	if err := b.setup(); err != nil {
		return err
	}
	return nil
}

// Close will shutdown the bot and its connection. It returns immediately;
// reading the error channel until it closes will wait for shutdown to finish
func (b *Bot) Close() error {
	b.onceClose.Do(func() {
		// Close doneChan to signify that we're shutting down
		close(b.doneChan)
	})
	return nil
}

// Registration returns the registration protocol handler
func (b *Bot) Registration() *registration.Client {
	return b.registration
}

// PingPong returns the ping-pong protocol handler
func (b *Bot) PingPong() *pingpong.Client {
	return b.pingPong
}

// StatsQuery returns the stats-query protocol handler
func (b *Bot) StatsQuery() *statsquery.Client {
	return b.statsQuery
}

// Roster returns the channel roster tracker
func (b *Bot) Roster() *roster.Tracker {
	return b.tracker
}

// Dispatcher returns the command dispatcher
func (b *Bot) Dispatcher() *dispatch.Dispatcher {
	return b.dispatcher
}

// Executor returns the lookup executor
func (b *Bot) Executor() *lookup.Executor {
	return b.executor
}

// setup wires the router, sub-protocols, dispatcher, and lookup executor
// together over the connection, performs registration, and joins the
// configured channels
func (b *Bot) setup() error {
	b.router = irc.NewRouter(b.conn, b.logger)
	// Start goroutine to pass along errors from the router
	b.waitGroup.Add(1)
	go func() {
		defer b.waitGroup.Done()
		select {
		case <-b.doneChan:
			return
		case err, ok := <-b.router.ErrorChan():
			// Break out of goroutine if the router's error channel is closed
			if !ok {
				return
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				// Return a bare io.EOF error if error is EOF/ErrUnexpectedEOF
				b.errorChan <- io.EOF
			} else {
				// Wrap error message to denote it comes from the connection
				b.errorChan <- fmt.Errorf("connection error: %w", err)
			}
			// Close bot on connection errors
			b.Close()
		}
	}()
	protoOptions := protocol.ProtocolOptions{
		ConnectionId: b.router.ConnectionId(),
		Router:       b.router,
		Logger:       b.logger,
		ErrorChan:    b.protoErrorChan,
	}
	// Registration, with the finished callback wrapped so setup can wait for
	// the registered nick
	registrationConfig := registration.NewConfig()
	if b.registrationConfig != nil {
		registrationConfig = *b.registrationConfig
	}
	userFinishedFunc := registrationConfig.FinishedFunc
	registrationConfig.FinishedFunc = func(
		ctx registration.CallbackContext,
		nick string,
	) error {
		select {
		case b.registeredChan <- nick:
		case <-b.doneChan:
		}
		if userFinishedFunc != nil {
			return userFinishedFunc(ctx, nick)
		}
		return nil
	}
	b.registration = registration.NewClient(protoOptions, &registrationConfig)
	// Channel roster
	rosterConfig := roster.NewConfig()
	if b.rosterConfig != nil {
		rosterConfig = *b.rosterConfig
	}
	b.tracker = roster.NewTracker(protoOptions, rosterConfig)
	// Ping-pong latency probe
	b.pingPong = pingpong.NewClient(protoOptions, b.pingPongConfig)
	// Stats query, reporting into the dispatcher. The dispatcher is created
	// below, before anything can invoke these callbacks
	statsQueryConfig := statsquery.NewConfig()
	if b.statsQueryConfig != nil {
		statsQueryConfig = *b.statsQueryConfig
	}
	statsQueryConfig.ResolvedFunc = func(
		ctx statsquery.CallbackContext,
		query statsquery.Query,
		address string,
	) error {
		return b.dispatcher.StatsResolved(ctx, query, address)
	}
	statsQueryConfig.NoAddressFunc = func(
		ctx statsquery.CallbackContext,
		query statsquery.Query,
	) error {
		return b.dispatcher.StatsNoAddress(ctx, query)
	}
	statsQueryConfig.RejectedFunc = func(
		ctx statsquery.CallbackContext,
		query statsquery.Query,
	) error {
		return b.dispatcher.StatsRejected(ctx, query)
	}
	statsQueryConfig.TimeoutFunc = func(
		ctx statsquery.CallbackContext,
		query statsquery.Query,
	) error {
		return b.dispatcher.StatsTimeout(ctx, query)
	}
	b.statsQuery = statsquery.NewClient(protoOptions, &statsQueryConfig)
	// Lookup executor, delivering results into the dispatcher
	lookupConfig := lookup.NewConfig()
	if b.lookupConfig != nil {
		lookupConfig = *b.lookupConfig
	}
	if lookupConfig.Logger == nil {
		lookupConfig.Logger = b.logger
	}
	lookupConfig.ResultFunc = func(result lookup.Result) error {
		return b.dispatcher.LookupFinished(result)
	}
	b.executor = lookup.NewExecutor(lookupConfig)
	// Command dispatcher
	b.dispatcher = dispatch.NewDispatcher(protoOptions, dispatch.NewConfig(
		dispatch.WithOptionsFunc(b.optionsFunc),
		dispatch.WithDirectory(b.tracker),
		dispatch.WithStatsQuerier(b.statsQuery),
		dispatch.WithFetcher(b.executor),
		dispatch.WithLatencyMeter(b.pingPong),
		dispatch.WithNetwork(b.networkTag),
	))
	// Start goroutine to tear everything down once doneChan is closed
	go func() {
		<-b.doneChan
		// The executor stops first so in-flight lookups can still deliver
		// through the dispatcher and router
		b.executor.Stop()
		b.dispatcher.Stop()
		b.pingPong.Stop()
		b.statsQuery.Stop()
		b.tracker.Stop()
		b.registration.Stop()
		b.router.Stop()
		b.conn.Close()
		// Wait for other goroutines to finish
		b.waitGroup.Wait()
		// Close channels
		close(b.protoErrorChan)
		close(b.errorChan)
	}()
	// Perform registration
	b.registration.Start()
	b.router.Start()
	// Wait for registration completion or error
	var registeredNick string
	select {
	case <-b.doneChan:
		// Return an error if we're shutting down
		return io.EOF
	case err := <-b.protoErrorChan:
		b.Close()
		return err
	case registeredNick = <-b.registeredChan:
	}
	// Start goroutine to pass along errors from the sub-protocols
	b.waitGroup.Add(1)
	go func() {
		defer b.waitGroup.Done()
		select {
		case <-b.doneChan:
			// Return if we're shutting down
			return
		case err, ok := <-b.protoErrorChan:
			// The channel is closed, which means we're already shutting down
			if !ok {
				return
			}
			b.errorChan <- fmt.Errorf("protocol error: %w", err)
			// Close bot on sub-protocol errors
			b.Close()
		}
	}()
	// Bring up the remaining sub-protocols now that we know our own nick
	b.tracker.SetOwnNick(registeredNick)
	b.tracker.Start()
	b.statsQuery.Start()
	if b.enablePingPong {
		b.pingPong.Start()
	}
	b.dispatcher.Start()
	// Join the configured channels
	for _, channel := range b.channels {
		if err := b.router.Send(irc.NewMessage("JOIN", channel)); err != nil {
			b.Close()
			return err
		}
	}
	return nil
}
