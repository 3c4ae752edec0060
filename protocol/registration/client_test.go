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

package registration_test

import (
	"bufio"
	"encoding/base64"
	"net"
	"testing"
	"time"

	"github.com/blinklabs-io/ferret/irc"
	"github.com/blinklabs-io/ferret/protocol"
	"github.com/blinklabs-io/ferret/protocol/registration"
	"go.uber.org/goleak"
)

type registrationTestHarness struct {
	t            *testing.T
	client       net.Conn
	server       net.Conn
	router       *irc.Router
	registration *registration.Client
	errorChan    chan error
	sentChan     chan irc.Message
	finishedChan chan string
}

func newRegistrationTestHarness(
	t *testing.T,
	options ...registration.RegistrationOptionFunc,
) *registrationTestHarness {
	t.Helper()
	h := &registrationTestHarness{
		t:            t,
		errorChan:    make(chan error, 10),
		sentChan:     make(chan irc.Message, 20),
		finishedChan: make(chan string, 1),
	}
	h.client, h.server = net.Pipe()
	h.router = irc.NewRouter(h.client, nil)
	opts := append(
		[]registration.RegistrationOptionFunc{
			registration.WithNick("ferret"),
			registration.WithUsername("ferret"),
			registration.WithRealname("address lookup bot"),
			registration.WithFinishedFunc(
				func(ctx registration.CallbackContext, nick string) error {
					h.finishedChan <- nick
					return nil
				},
			),
		},
		options...,
	)
	cfg := registration.NewConfig(opts...)
	h.registration = registration.NewClient(
		protocol.ProtocolOptions{
			ConnectionId: h.router.ConnectionId(),
			Router:       h.router,
			ErrorChan:    h.errorChan,
		},
		&cfg,
	)
	h.router.Start()
	go func() {
		scanner := bufio.NewScanner(h.server)
		for scanner.Scan() {
			msg, err := irc.ParseMessage(scanner.Text())
			if err != nil {
				continue
			}
			h.sentChan <- msg
		}
	}()
	h.registration.Start()
	return h
}

func (h *registrationTestHarness) feed(line string) {
	h.t.Helper()
	if _, err := h.server.Write([]byte(line + "\r\n")); err != nil {
		h.t.Fatalf("failed to write line to mock server: %s", err)
	}
}

func (h *registrationTestHarness) expectSent(command string) irc.Message {
	h.t.Helper()
	select {
	case msg := <-h.sentChan:
		if msg.Command != command {
			h.t.Fatalf("expected sent %s, got %s", command, msg.Command)
		}
		return msg
	case <-time.After(2 * time.Second):
		h.t.Fatalf("timed out waiting for sent %s", command)
	}
	return irc.Message{}
}

func (h *registrationTestHarness) expectFinished(nick string) {
	h.t.Helper()
	select {
	case registered := <-h.finishedChan:
		if registered != nick {
			h.t.Fatalf("registered as %s, expected %s", registered, nick)
		}
	case <-time.After(2 * time.Second):
		h.t.Fatalf("timed out waiting for registration to finish")
	}
}

func (h *registrationTestHarness) expectError() error {
	h.t.Helper()
	select {
	case err := <-h.errorChan:
		if err == nil {
			h.t.Fatalf("expected non-nil registration error")
		}
		return err
	case <-time.After(2 * time.Second):
		h.t.Fatalf("timed out waiting for registration error")
	}
	return nil
}

func (h *registrationTestHarness) shutdown() {
	if err := h.registration.Stop(); err != nil {
		h.t.Errorf("unexpected error when stopping client: %s", err)
	}
	h.router.Stop()
	h.client.Close()
	h.server.Close()
}

func TestRegistrationBasic(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := newRegistrationTestHarness(t)
	defer h.shutdown()

	nick := h.expectSent("NICK")
	if nick.Param(0) != "ferret" {
		t.Fatalf("unexpected nickname: %s", nick.Param(0))
	}
	user := h.expectSent("USER")
	if user.Param(0) != "ferret" || user.Param(3) != "address lookup bot" {
		t.Fatalf("unexpected USER params: %v", user.Params)
	}
	h.feed(":irc.example.net 001 ferret :Welcome to the network")
	h.expectFinished("ferret")
	if h.registration.CurrentNick() != "ferret" {
		t.Fatalf("unexpected current nick: %s", h.registration.CurrentNick())
	}
}

func TestRegistrationServerPassword(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := newRegistrationTestHarness(
		t,
		registration.WithServerPassword("sekrit"),
	)
	defer h.shutdown()

	pass := h.expectSent("PASS")
	if pass.Param(0) != "sekrit" {
		t.Fatalf("unexpected password param: %s", pass.Param(0))
	}
	h.expectSent("NICK")
	h.expectSent("USER")
	h.feed(":irc.example.net 001 ferret :Welcome to the network")
	h.expectFinished("ferret")
}

func TestRegistrationNickCollision(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := newRegistrationTestHarness(
		t,
		registration.WithAltNicks("ferret2"),
	)
	defer h.shutdown()

	h.expectSent("NICK")
	h.expectSent("USER")
	// First collision consumes the configured alternate
	h.feed(":irc.example.net 433 * ferret :Nickname is already in use")
	nick := h.expectSent("NICK")
	if nick.Param(0) != "ferret2" {
		t.Fatalf("unexpected fallback nickname: %s", nick.Param(0))
	}
	// Further collisions append underscores
	h.feed(":irc.example.net 433 * ferret2 :Nickname is already in use")
	nick = h.expectSent("NICK")
	if nick.Param(0) != "ferret2_" {
		t.Fatalf("unexpected fallback nickname: %s", nick.Param(0))
	}
	h.feed(":irc.example.net 001 ferret2_ :Welcome to the network")
	h.expectFinished("ferret2_")
	if h.registration.CurrentNick() != "ferret2_" {
		t.Fatalf("unexpected current nick: %s", h.registration.CurrentNick())
	}
}

func TestRegistrationNickExhaustion(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := newRegistrationTestHarness(t)
	defer h.shutdown()

	h.expectSent("NICK")
	h.expectSent("USER")
	for i := 0; i < 7; i++ {
		h.feed(":irc.example.net 433 * ferret :Nickname is already in use")
		h.expectSent("NICK")
	}
	h.feed(":irc.example.net 433 * ferret :Nickname is already in use")
	h.expectError()
}

func TestRegistrationPasswdMismatch(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := newRegistrationTestHarness(
		t,
		registration.WithServerPassword("wrong"),
	)
	defer h.shutdown()

	h.expectSent("PASS")
	h.expectSent("NICK")
	h.expectSent("USER")
	h.feed(":irc.example.net 464 * :Password incorrect")
	h.expectError()
}

func TestRegistrationSaslPlain(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := newRegistrationTestHarness(
		t,
		registration.WithSasl(
			registration.SaslMechanismPlain,
			"ferret",
			"hunter2",
		),
	)
	defer h.shutdown()

	capReq := h.expectSent("CAP")
	if capReq.Param(0) != "REQ" || capReq.Param(1) != "sasl" {
		t.Fatalf("unexpected CAP request params: %v", capReq.Params)
	}
	h.expectSent("NICK")
	h.expectSent("USER")
	h.feed(":irc.example.net CAP * ACK :sasl")
	auth := h.expectSent("AUTHENTICATE")
	if auth.Param(0) != "PLAIN" {
		t.Fatalf("unexpected mechanism: %s", auth.Param(0))
	}
	h.feed("AUTHENTICATE +")
	auth = h.expectSent("AUTHENTICATE")
	payload, err := base64.StdEncoding.DecodeString(auth.Param(0))
	if err != nil {
		t.Fatalf("unexpected error decoding payload: %s", err)
	}
	if string(payload) != "\x00ferret\x00hunter2" {
		t.Fatalf("unexpected payload: %q", payload)
	}
	h.feed(
		":irc.example.net 900 ferret ferret!ferret@host ferret :You are now logged in as ferret",
	)
	h.feed(":irc.example.net 903 ferret :SASL authentication successful")
	capEnd := h.expectSent("CAP")
	if capEnd.Param(0) != "END" {
		t.Fatalf("unexpected CAP params: %v", capEnd.Params)
	}
	h.feed(":irc.example.net 001 ferret :Welcome to the network")
	h.expectFinished("ferret")
}

func TestRegistrationSaslRefused(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := newRegistrationTestHarness(
		t,
		registration.WithSasl(
			registration.SaslMechanismPlain,
			"ferret",
			"hunter2",
		),
	)
	defer h.shutdown()

	h.expectSent("CAP")
	h.expectSent("NICK")
	h.expectSent("USER")
	h.feed(":irc.example.net CAP * NAK :sasl")
	h.expectError()
}

func TestRegistrationSaslFailure(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := newRegistrationTestHarness(
		t,
		registration.WithSasl(
			registration.SaslMechanismPlain,
			"ferret",
			"wrongpass",
		),
	)
	defer h.shutdown()

	h.expectSent("CAP")
	h.expectSent("NICK")
	h.expectSent("USER")
	h.feed(":irc.example.net CAP * ACK :sasl")
	h.expectSent("AUTHENTICATE")
	h.feed("AUTHENTICATE +")
	h.expectSent("AUTHENTICATE")
	h.feed(":irc.example.net 904 ferret :SASL authentication failed")
	h.expectError()
}

func TestRegistrationAnswersPing(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := newRegistrationTestHarness(t)
	defer h.shutdown()

	h.expectSent("NICK")
	h.expectSent("USER")
	h.feed("PING :12345")
	pong := h.expectSent("PONG")
	if pong.Trailing() != "12345" {
		t.Fatalf("unexpected pong token: %s", pong.Trailing())
	}
	h.feed(":irc.example.net 001 ferret :Welcome to the network")
	h.expectFinished("ferret")
}

func TestRegistrationTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := newRegistrationTestHarness(
		t,
		registration.WithTimeout(50*time.Millisecond),
	)
	defer h.shutdown()

	h.expectSent("NICK")
	h.expectSent("USER")
	h.expectError()
}
