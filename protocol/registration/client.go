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

package registration

import (
	"encoding/base64"
	"fmt"
	"strings"
	"sync"

	"github.com/blinklabs-io/ferret/irc"
	"github.com/blinklabs-io/ferret/protocol"
)

// authChunkSize is the maximum AUTHENTICATE payload length per line. Longer
// payloads are split, and a payload that is an exact multiple of the chunk
// size is terminated with an empty continuation
const authChunkSize = 400

// Client implements the registration client
type Client struct {
	*protocol.Protocol
	config          *Config
	callbackContext CallbackContext
	nickMutex       sync.Mutex
	currentNick     string
	nickAttempts    int
	// The SASL exchange runs entirely on the protocol's receive goroutine,
	// so its state needs no locking
	scram      *scramConversation
	authStep   int
	authBuffer []byte
	onceStart  sync.Once
}

// NewClient returns a new registration client object
func NewClient(protoOptions protocol.ProtocolOptions, cfg *Config) *Client {
	if cfg == nil {
		tmpCfg := NewConfig()
		cfg = &tmpCfg
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRegistrationTimeout
	}
	c := &Client{
		config: cfg,
	}
	c.callbackContext = CallbackContext{
		ConnectionId: protoOptions.ConnectionId,
		Client:       c,
	}
	// Update state map with timeouts and the CAP reply transitions
	stateMap := StateMap.Copy()
	if entry, ok := stateMap[StateCapNegotiation]; ok {
		entry.Timeout = cfg.Timeout
		entry.Transitions = []protocol.StateTransition{
			{
				MsgType:   "CAP",
				NewState:  StateAuthenticating,
				MatchFunc: matchCapSubcommand("ACK"),
			},
			{
				MsgType:   "CAP",
				NewState:  StateDone,
				MatchFunc: matchCapSubcommand("NAK"),
			},
			{
				MsgType:  irc.ErrNicknameInUse,
				NewState: StateCapNegotiation,
			},
			{
				MsgType:  irc.ErrPasswdMismatch,
				NewState: StateDone,
			},
			{
				MsgType:  "PING",
				NewState: StateCapNegotiation,
			},
		}
		stateMap[StateCapNegotiation] = entry
	}
	if entry, ok := stateMap[StateAuthenticating]; ok {
		entry.Timeout = cfg.Timeout
		stateMap[StateAuthenticating] = entry
	}
	if entry, ok := stateMap[StateAwaitingWelcome]; ok {
		entry.Timeout = cfg.Timeout
		stateMap[StateAwaitingWelcome] = entry
	}
	protoConfig := protocol.ProtocolConfig{
		Name:         ProtocolName,
		Router:       protoOptions.Router,
		Logger:       protoOptions.Logger,
		ErrorChan:    protoOptions.ErrorChan,
		ConnectionId: protoOptions.ConnectionId,
		Commands: []string{
			"CAP",
			"AUTHENTICATE",
			"PING",
			irc.RplWelcome,
			irc.ErrNicknameInUse,
			irc.ErrPasswdMismatch,
			irc.RplLoggedIn,
			irc.RplSaslSuccess,
			irc.ErrSaslFail,
			irc.ErrSaslTooLong,
			irc.ErrSaslAborted,
		},
		MessageHandlerFunc: c.messageHandler,
		StateMap:           stateMap,
		InitialState:       StateIdle,
	}
	c.Protocol = protocol.New(protoConfig)
	return c
}

func matchCapSubcommand(subcommand string) protocol.StateTransitionMatchFunc {
	return func(msg irc.Message) bool {
		return strings.EqualFold(msg.Param(1), subcommand)
	}
}

// Start begins the registration process
func (c *Client) Start() {
	c.onceStart.Do(func() {
		c.Protocol.Start()
		if err := c.sendRegistration(); err != nil {
			c.SendError(err)
		}
	})
}

// Stop shuts down the registration protocol
func (c *Client) Stop() error {
	c.Protocol.Stop()
	return nil
}

// CurrentNick returns the most recently requested or confirmed nickname
func (c *Client) CurrentNick() string {
	c.nickMutex.Lock()
	defer c.nickMutex.Unlock()
	return c.currentNick
}

func (c *Client) sendRegistration() error {
	if c.config.SaslMechanism != "" {
		if err := c.SendMessage(irc.NewMessage("CAP", "REQ", "sasl")); err != nil {
			return err
		}
	}
	if c.config.ServerPassword != "" {
		msg := irc.NewMessage("PASS", c.config.ServerPassword)
		if err := c.SendMessage(msg); err != nil {
			return err
		}
	}
	c.nickMutex.Lock()
	c.currentNick = c.config.Nick
	c.nickMutex.Unlock()
	if err := c.SendMessage(irc.NewMessage("NICK", c.config.Nick)); err != nil {
		return err
	}
	username := c.config.Username
	if username == "" {
		username = c.config.Nick
	}
	realname := c.config.Realname
	if realname == "" {
		realname = username
	}
	return c.SendMessage(
		irc.NewMessage("USER", username, "0", "*", realname),
	)
}

func (c *Client) messageHandler(msg irc.Message) error {
	var err error
	switch msg.Command {
	case "CAP":
		err = c.handleCap(msg)
	case "AUTHENTICATE":
		err = c.handleAuthenticate(msg)
	case "PING":
		err = c.handlePing(msg)
	case irc.RplWelcome:
		err = c.handleWelcome(msg)
	case irc.ErrNicknameInUse:
		err = c.handleNicknameInUse()
	case irc.ErrPasswdMismatch:
		err = fmt.Errorf(
			"%s: server password mismatch: %s",
			ProtocolName,
			msg.Trailing(),
		)
	case irc.RplLoggedIn:
		err = c.handleLoggedIn(msg)
	case irc.RplSaslSuccess:
		err = c.handleSaslSuccess()
	case irc.ErrSaslFail, irc.ErrSaslTooLong, irc.ErrSaslAborted:
		err = fmt.Errorf(
			"%s: authentication failed: %s",
			ProtocolName,
			msg.Trailing(),
		)
	default:
		err = fmt.Errorf(
			"%s: received unexpected message: %s",
			ProtocolName,
			msg.Command,
		)
	}
	return err
}

func (c *Client) handleCap(msg irc.Message) error {
	switch strings.ToUpper(msg.Param(1)) {
	case "ACK":
		return c.startAuthentication()
	case "NAK":
		return fmt.Errorf(
			"%s: server refused capability: %s",
			ProtocolName,
			msg.Trailing(),
		)
	}
	return nil
}

func (c *Client) startAuthentication() error {
	mechanism := strings.ToUpper(c.config.SaslMechanism)
	if mechanism == SaslMechanismScramSha256 {
		scram, err := newScramConversation(
			c.config.SaslUsername,
			c.config.SaslPassword,
		)
		if err != nil {
			return err
		}
		c.scram = scram
	}
	return c.SendMessage(irc.NewMessage("AUTHENTICATE", mechanism))
}

// handleAuthenticate reassembles a possibly chunked server challenge and
// advances the SASL exchange
func (c *Client) handleAuthenticate(msg irc.Message) error {
	param := msg.Param(0)
	if param != "+" {
		if len(param) == authChunkSize {
			c.authBuffer = append(c.authBuffer, param...)
			return nil
		}
		c.authBuffer = append(c.authBuffer, param...)
	}
	encoded := string(c.authBuffer)
	c.authBuffer = nil
	challenge, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("%s: malformed challenge: %w", ProtocolName, err)
	}
	return c.advanceAuthentication(challenge)
}

func (c *Client) advanceAuthentication(challenge []byte) error {
	switch strings.ToUpper(c.config.SaslMechanism) {
	case SaslMechanismPlain:
		// Single round trip: the empty challenge is the go-ahead
		return c.sendAuthenticate(
			plainPayload("", c.config.SaslUsername, c.config.SaslPassword),
		)
	case SaslMechanismScramSha256:
		switch c.authStep {
		case 0:
			c.authStep = 1
			return c.sendAuthenticate(c.scram.clientFirst())
		case 1:
			c.authStep = 2
			clientFinal, err := c.scram.handleServerFirst(challenge)
			if err != nil {
				return fmt.Errorf("%s: %w", ProtocolName, err)
			}
			return c.sendAuthenticate(clientFinal)
		case 2:
			c.authStep = 3
			if err := c.scram.handleServerFinal(challenge); err != nil {
				return fmt.Errorf("%s: %w", ProtocolName, err)
			}
			return c.sendAuthenticate(nil)
		}
		return fmt.Errorf(
			"%s: received unexpected authentication challenge",
			ProtocolName,
		)
	}
	return fmt.Errorf(
		"%s: unsupported sasl mechanism: %s",
		ProtocolName,
		c.config.SaslMechanism,
	)
}

// sendAuthenticate base64-encodes and sends a SASL payload, splitting it
// into chunks when needed. An empty payload is sent as a bare continuation
func (c *Client) sendAuthenticate(payload []byte) error {
	encoded := base64.StdEncoding.EncodeToString(payload)
	if encoded == "" {
		return c.SendMessage(irc.NewMessage("AUTHENTICATE", "+"))
	}
	for len(encoded) > 0 {
		chunk := encoded
		if len(chunk) > authChunkSize {
			chunk = chunk[:authChunkSize]
		}
		if err := c.SendMessage(irc.NewMessage("AUTHENTICATE", chunk)); err != nil {
			return err
		}
		encoded = encoded[len(chunk):]
		if len(chunk) == authChunkSize && encoded == "" {
			return c.SendMessage(irc.NewMessage("AUTHENTICATE", "+"))
		}
	}
	return nil
}

func (c *Client) handlePing(msg irc.Message) error {
	return c.SendMessage(irc.NewMessage("PONG", msg.Trailing()))
}

func (c *Client) handleWelcome(msg irc.Message) error {
	c.nickMutex.Lock()
	// The server's welcome reply is addressed to the nickname it actually
	// registered, which wins over whatever we last requested
	if nick := msg.Param(0); nick != "" && nick != "*" {
		c.currentNick = nick
	}
	nick := c.currentNick
	c.nickMutex.Unlock()
	c.Protocol.Logger().Debug(
		fmt.Sprintf("registered as %s", nick),
		"component", "network",
		"protocol", ProtocolName,
	)
	if c.config.FinishedFunc != nil {
		return c.config.FinishedFunc(c.callbackContext, nick)
	}
	return nil
}

func (c *Client) handleNicknameInUse() error {
	next := c.nextNick()
	if next == "" {
		return fmt.Errorf(
			"%s: no available nickname after %d attempts",
			ProtocolName,
			maxNickAttempts,
		)
	}
	c.Protocol.Logger().Debug(
		fmt.Sprintf("nickname in use, trying %s", next),
		"component", "network",
		"protocol", ProtocolName,
	)
	return c.SendMessage(irc.NewMessage("NICK", next))
}

// nextNick returns the next nickname candidate: the configured alternates in
// order, then underscore-suffixed variants of the last one. It returns an
// empty string when the attempts are exhausted
func (c *Client) nextNick() string {
	c.nickMutex.Lock()
	defer c.nickMutex.Unlock()
	c.nickAttempts++
	if c.nickAttempts >= maxNickAttempts {
		return ""
	}
	if c.nickAttempts <= len(c.config.AltNicks) {
		c.currentNick = c.config.AltNicks[c.nickAttempts-1]
	} else {
		c.currentNick = c.currentNick + "_"
	}
	return c.currentNick
}

func (c *Client) handleLoggedIn(msg irc.Message) error {
	c.Protocol.Logger().Debug(
		fmt.Sprintf("logged in as %s", msg.Param(2)),
		"component", "network",
		"protocol", ProtocolName,
	)
	return nil
}

func (c *Client) handleSaslSuccess() error {
	// Authentication is done; complete the capability negotiation so the
	// server proceeds with registration
	return c.SendMessage(irc.NewMessage("CAP", "END"))
}
