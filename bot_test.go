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

package ferret_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/blinklabs-io/ferret"
	"github.com/blinklabs-io/ferret/dispatch"
	irc_mock "github.com/blinklabs-io/ferret/internal/test/irc_mock"
	"github.com/blinklabs-io/ferret/lookup"
	"github.com/blinklabs-io/ferret/protocol/registration"

	"go.uber.org/goleak"
)

var testMembers = []irc_mock.Member{
	{Nick: "alice", User: "~alice", Host: "203.0.113.77"},
	{Nick: "bob", User: "~bob", Host: "host-12-34.example.org"},
	{Nick: "carol", User: "c0a80101", Host: "wide-open.mibbit.com"},
}

func defaultTestOptions() []ferret.BotOptionFunc {
	return []ferret.BotOptionFunc{
		ferret.WithNetworkTag("mock"),
		ferret.WithPingPong(false),
		ferret.WithRegistrationConfig(
			registration.NewConfig(
				registration.WithNick(irc_mock.MockNick),
			),
		),
	}
}

// waitSynced waits for the channel roster to finish its NAMES/WHO exchange
func waitSynced(t *testing.T, bot *ferret.Bot, channel string) {
	t.Helper()
	for i := 0; i < 200; i++ {
		if bot.Roster().Synced(channel) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timed out waiting for channel roster sync")
}

// waitIdle waits for the dispatcher's request slot to clear
func waitIdle(t *testing.T, bot *ferret.Bot) {
	t.Helper()
	for i := 0; i < 200; i++ {
		if !bot.Dispatcher().Busy() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timed out waiting for request slot to clear")
}

// sendCommand delivers a channel message to the bot as if sent by nick
func sendCommand(
	t *testing.T,
	mockConn *irc_mock.Connection,
	nick string,
	text string,
) {
	t.Helper()
	line := fmt.Sprintf(
		":%s!~%s@client.example.net PRIVMSG #testing :%s",
		nick,
		nick,
		text,
	)
	if err := mockConn.SendLine(line); err != nil {
		t.Fatalf("failed to send command: %s", err)
	}
}

// expectReply waits for the next line the bot sends and checks it against the
// wanted channel message
func expectReply(
	t *testing.T,
	mockConn *irc_mock.Connection,
	wanted string,
) {
	t.Helper()
	select {
	case msg, ok := <-mockConn.Received():
		if !ok {
			t.Fatal("mock connection closed while waiting for reply")
		}
		if msg.Command != "PRIVMSG" {
			t.Fatalf("unexpected message: %s", msg.String())
		}
		if channel := msg.Param(0); channel != "#testing" {
			t.Fatalf("reply sent to unexpected channel: %s", channel)
		}
		if got := msg.Trailing(); got != wanted {
			t.Fatalf("unexpected reply: got %q, wanted %q", got, wanted)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for reply %q", wanted)
	}
}

func TestConnectAndJoin(t *testing.T) {
	defer goleak.VerifyNone(t)
	conversation := append(
		irc_mock.RegistrationEntries(),
		irc_mock.ChannelJoinEntries("#testing", testMembers...)...,
	)
	mockConn := irc_mock.NewConnection(conversation)
	bot, err := ferret.NewBot(
		append(
			defaultTestOptions(),
			ferret.WithConnection(mockConn),
			ferret.WithChannels("#testing"),
		)...,
	)
	if err != nil {
		t.Fatalf("unexpected error when creating bot: %s", err)
	}
	waitSynced(t, bot, "#testing")
	member, ok := bot.Roster().Member("#testing", "alice")
	if !ok {
		t.Fatal("expected channel member not found")
	}
	if member.User != "~alice" || member.Host != "203.0.113.77" {
		t.Fatalf(
			"unexpected member identity: %s@%s",
			member.User,
			member.Host,
		)
	}
	bot.Close()
	for err := range bot.ErrorChan() {
		t.Errorf("unexpected error: %s", err)
	}
}

func TestLookupCommand(t *testing.T) {
	defer goleak.VerifyNone(t)
	var pathsMutex sync.Mutex
	var paths []string
	srv := httptest.NewServer(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			pathsMutex.Lock()
			paths = append(paths, r.URL.Path)
			pathsMutex.Unlock()
			fmt.Fprintln(w, "city - country")
		}),
	)
	defer srv.Close()
	conversation := append(
		irc_mock.RegistrationEntries(),
		irc_mock.ChannelJoinEntries("#testing", testMembers...)...,
	)
	mockConn := irc_mock.NewConnection(conversation)
	bot, err := ferret.NewBot(
		append(
			defaultTestOptions(),
			ferret.WithConnection(mockConn),
			ferret.WithChannels("#testing"),
			ferret.WithLookupConfig(
				lookup.NewConfig(
					lookup.WithBaseUrl(srv.URL+"/"),
				),
			),
			ferret.WithOptionsFunc(func() dispatch.Options {
				opts := dispatch.DefaultOptions()
				opts.Channels = []string{"mock/#testing"}
				opts.FloodLimit = 10
				opts.FloodWindow = time.Minute
				return opts
			}),
		)...,
	)
	if err != nil {
		t.Fatalf("unexpected error when creating bot: %s", err)
	}
	waitSynced(t, bot, "#testing")

	t.Run("AddressArgument", func(t *testing.T) {
		sendCommand(t, mockConn, "alice", "!ip 198.51.100.7")
		expectReply(t, mockConn, "alice: Processing...")
		expectReply(t, mockConn, "alice: [a] Looking up 198.51.100.7")
		expectReply(t, mockConn, "alice: [r] city - country")
		waitIdle(t, bot)
	})

	t.Run("NicknameArgument", func(t *testing.T) {
		sendCommand(t, mockConn, "bob", "!ip alice")
		expectReply(t, mockConn, "bob: Processing...")
		expectReply(t, mockConn, "bob: [n] Looking up alice")
		expectReply(t, mockConn, "bob: [p] Looking up 203.0.113.77")
		expectReply(t, mockConn, "bob: [r] city - country")
		waitIdle(t, bot)
	})

	t.Run("WebchatIdent", func(t *testing.T) {
		sendCommand(t, mockConn, "carol", "!ip")
		expectReply(t, mockConn, "carol: Processing...")
		expectReply(t, mockConn, "carol: [w] Looking up 192.168.1.1")
		expectReply(t, mockConn, "carol: [r] city - country")
		waitIdle(t, bot)
	})

	t.Run("UnknownNickname", func(t *testing.T) {
		sendCommand(t, mockConn, "alice", "!ip nosuchnick")
		expectReply(t, mockConn, "alice: Not an IP(4/6) address or nickname")
	})

	pathsMutex.Lock()
	gotPaths := strings.Join(paths, " ")
	pathsMutex.Unlock()
	wantedPaths := "/198.51.100.7 /203.0.113.77 /192.168.1.1"
	if gotPaths != wantedPaths {
		t.Errorf(
			"unexpected lookup paths: got %q, wanted %q",
			gotPaths,
			wantedPaths,
		)
	}

	bot.Close()
	for err := range bot.ErrorChan() {
		t.Errorf("unexpected error: %s", err)
	}
}

// TestConnectionErrorPropagated tests that a connection dropped by the server
// surfaces on the error channel
func TestConnectionErrorPropagated(t *testing.T) {
	defer goleak.VerifyNone(t)
	mockConn := irc_mock.NewConnection(irc_mock.RegistrationEntries())
	bot, err := ferret.NewBot(
		append(
			defaultTestOptions(),
			ferret.WithConnection(mockConn),
		)...,
	)
	if err != nil {
		t.Fatalf("unexpected error when creating bot: %s", err)
	}
	// Close the mock connection to generate a connection error
	mockConn.Close()
	select {
	case err, ok := <-bot.ErrorChan():
		if !ok || err == nil {
			t.Fatal("expected connection error, got nil")
		}
		t.Logf("received connection error (expected): %s", err)
	case <-time.After(2 * time.Second):
		t.Error("timed out waiting for connection error")
	}
	bot.Close()
	for range bot.ErrorChan() {
	}
}

// TestBasicErrorHandling tests basic error handling scenarios
func TestBasicErrorHandling(t *testing.T) {
	defer goleak.VerifyNone(t)

	t.Run("DialFailure", func(t *testing.T) {
		bot, err := ferret.NewBot(defaultTestOptions()...)
		if err != nil {
			t.Fatalf("unexpected error when creating bot: %s", err)
		}
		err = bot.Dial("tcp", "invalid-hostname:9999")
		if err == nil {
			t.Fatal("expected dial error, got nil")
		}
		bot.Close()
	})

	t.Run("DoubleDial", func(t *testing.T) {
		mockConn := irc_mock.NewConnection(irc_mock.RegistrationEntries())
		bot, err := ferret.NewBot(
			append(
				defaultTestOptions(),
				ferret.WithConnection(mockConn),
			)...,
		)
		if err != nil {
			t.Fatalf("unexpected error when creating bot: %s", err)
		}
		if err := bot.Dial("tcp", "localhost:6667"); err == nil {
			t.Fatal("expected error when dialing with existing connection")
		}
		bot.Close()
		for err := range bot.ErrorChan() {
			t.Errorf("unexpected error: %s", err)
		}
	})

	t.Run("DoubleClose", func(t *testing.T) {
		bot, err := ferret.NewBot(defaultTestOptions()...)
		if err != nil {
			t.Fatalf("unexpected error when creating bot: %s", err)
		}
		if err := bot.Close(); err != nil {
			t.Fatalf("unexpected error on first close: %s", err)
		}
		if err := bot.Close(); err != nil {
			t.Fatalf("unexpected error on second close: %s", err)
		}
	})
}
