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

package roster

import (
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/blinklabs-io/ferret/irc"
	"github.com/blinklabs-io/ferret/protocol"
)

// trackedCommands are the commands the tracker subscribes to
var trackedCommands = []string{
	"JOIN",
	"PART",
	"QUIT",
	"KICK",
	"NICK",
	"MODE",
	irc.RplNamReply,
	irc.RplEndOfNames,
	irc.RplWhoReply,
	irc.RplEndOfWho,
}

type channelState struct {
	name      string
	members   map[string]*Member
	namesDone bool
	whoDone   bool
}

// Tracker follows channel membership for a single connection
type Tracker struct {
	config          Config
	callbackContext CallbackContext
	router          *irc.Router
	connectionId    irc.ConnectionId
	logger          *slog.Logger
	recvChan        chan irc.Message
	doneChan        chan struct{}
	onceStart       sync.Once
	onceStop        sync.Once
	mutex           sync.Mutex
	ownNick         string
	channels        map[string]*channelState
}

// NewTracker returns a new roster tracker for the connection described by
// the protocol options
func NewTracker(protoOptions protocol.ProtocolOptions, cfg Config) *Tracker {
	logger := protoOptions.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	t := &Tracker{
		config:       cfg,
		router:       protoOptions.Router,
		connectionId: protoOptions.ConnectionId,
		logger:       logger,
		doneChan:     make(chan struct{}),
		ownNick:      cfg.OwnNick,
		channels:     map[string]*channelState{},
	}
	t.callbackContext = CallbackContext{
		ConnectionId: protoOptions.ConnectionId,
		Tracker:      t,
	}
	return t
}

// Start subscribes the tracker to membership-related commands
func (t *Tracker) Start() {
	t.onceStart.Do(func() {
		t.logger.Debug(
			"starting roster tracker",
			"component", "network",
			"protocol", ComponentName,
			"connection_id", t.connectionId.String(),
		)
		t.recvChan = t.router.Subscribe(trackedCommands...)
		go t.recvLoop()
	})
}

// Stop shuts down the tracker and removes its router subscription
func (t *Tracker) Stop() {
	t.onceStop.Do(func() {
		t.logger.Debug(
			"stopping roster tracker",
			"component", "network",
			"protocol", ComponentName,
			"connection_id", t.connectionId.String(),
		)
		if t.recvChan != nil {
			t.router.Unsubscribe(t.recvChan)
		}
		close(t.doneChan)
	})
}

// DoneChan returns a channel that is closed when the tracker shuts down
func (t *Tracker) DoneChan() <-chan struct{} {
	return t.doneChan
}

// OwnNick returns the nickname the tracker believes the connection holds
func (t *Tracker) OwnNick() string {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.ownNick
}

// SetOwnNick updates the connection's own nickname, normally after
// registration settles on one
func (t *Tracker) SetOwnNick(nick string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.ownNick = nick
}

// Synced returns whether both the NAMES and WHO exchanges have completed for
// the channel
func (t *Tracker) Synced(channel string) bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	ch, ok := t.channels[irc.Fold(channel)]
	if !ok {
		return false
	}
	return ch.namesDone && ch.whoDone
}

// Member returns the named channel member, if present
func (t *Tracker) Member(channel string, nick string) (Member, bool) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	ch, ok := t.channels[irc.Fold(channel)]
	if !ok {
		return Member{}, false
	}
	member, ok := ch.members[irc.Fold(nick)]
	if !ok {
		return Member{}, false
	}
	return *member, true
}

// Self returns the connection's own membership record for the channel
func (t *Tracker) Self(channel string) (Member, bool) {
	t.mutex.Lock()
	ownNick := t.ownNick
	t.mutex.Unlock()
	return t.Member(channel, ownNick)
}

// Members returns a copy of the channel membership sorted by nickname
func (t *Tracker) Members(channel string) []Member {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	ch, ok := t.channels[irc.Fold(channel)]
	if !ok {
		return nil
	}
	members := make([]Member, 0, len(ch.members))
	for _, member := range ch.members {
		members = append(members, *member)
	}
	sort.Slice(members, func(i, j int) bool {
		return irc.Fold(members[i].Nick) < irc.Fold(members[j].Nick)
	})
	return members
}

// Channels returns the names of the channels the tracker is following
func (t *Tracker) Channels() []string {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	names := make([]string, 0, len(t.channels))
	for _, ch := range t.channels {
		names = append(names, ch.name)
	}
	sort.Strings(names)
	return names
}

func (t *Tracker) recvLoop() {
	for {
		select {
		case <-t.doneChan:
			return
		case <-t.router.DoneChan():
			t.Stop()
			return
		case msg := <-t.recvChan:
			t.handleMessage(msg)
		}
	}
}

func (t *Tracker) handleMessage(msg irc.Message) {
	var synced string
	switch msg.Command {
	case "JOIN":
		t.handleJoin(msg)
	case "PART":
		t.handlePart(msg)
	case "QUIT":
		t.handleQuit(msg)
	case "KICK":
		t.handleKick(msg)
	case "NICK":
		t.handleNick(msg)
	case "MODE":
		t.handleMode(msg)
	case irc.RplNamReply:
		t.handleNamReply(msg)
	case irc.RplEndOfNames:
		t.handleEndOfNames(msg)
	case irc.RplWhoReply:
		t.handleWhoReply(msg)
	case irc.RplEndOfWho:
		synced = t.handleEndOfWho(msg)
	}
	// Fire the sync callback outside the tracker mutex so that it can call
	// back into the tracker
	if synced != "" && t.config.SyncedFunc != nil {
		if err := t.config.SyncedFunc(t.callbackContext, synced); err != nil {
			t.logger.Warn(
				"sync callback failed",
				"component", "network",
				"protocol", ComponentName,
				"error", err,
			)
		}
	}
}

func (t *Tracker) handleJoin(msg irc.Message) {
	src := irc.ParseSource(msg.Prefix)
	channel := msg.Param(0)
	if src.Nick == "" || channel == "" {
		return
	}
	t.mutex.Lock()
	defer t.mutex.Unlock()
	key := irc.Fold(channel)
	if irc.FoldEqual(src.Nick, t.ownNick) {
		// Our own join starts a fresh, unsynced channel entry
		t.channels[key] = &channelState{
			name:    channel,
			members: map[string]*Member{},
		}
		return
	}
	ch, ok := t.channels[key]
	if !ok {
		return
	}
	ch.members[irc.Fold(src.Nick)] = &Member{
		Nick: src.Nick,
		User: src.User,
		Host: src.Host,
	}
}

func (t *Tracker) handlePart(msg irc.Message) {
	src := irc.ParseSource(msg.Prefix)
	channel := msg.Param(0)
	t.mutex.Lock()
	defer t.mutex.Unlock()
	key := irc.Fold(channel)
	if irc.FoldEqual(src.Nick, t.ownNick) {
		delete(t.channels, key)
		return
	}
	if ch, ok := t.channels[key]; ok {
		delete(ch.members, irc.Fold(src.Nick))
	}
}

func (t *Tracker) handleQuit(msg irc.Message) {
	src := irc.ParseSource(msg.Prefix)
	if src.Nick == "" {
		return
	}
	t.mutex.Lock()
	defer t.mutex.Unlock()
	nickKey := irc.Fold(src.Nick)
	for _, ch := range t.channels {
		delete(ch.members, nickKey)
	}
}

func (t *Tracker) handleKick(msg irc.Message) {
	channel := msg.Param(0)
	victim := msg.Param(1)
	if channel == "" || victim == "" {
		return
	}
	t.mutex.Lock()
	defer t.mutex.Unlock()
	key := irc.Fold(channel)
	if irc.FoldEqual(victim, t.ownNick) {
		delete(t.channels, key)
		return
	}
	if ch, ok := t.channels[key]; ok {
		delete(ch.members, irc.Fold(victim))
	}
}

func (t *Tracker) handleNick(msg irc.Message) {
	src := irc.ParseSource(msg.Prefix)
	newNick := msg.Param(0)
	if src.Nick == "" || newNick == "" {
		return
	}
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if irc.FoldEqual(src.Nick, t.ownNick) {
		t.ownNick = newNick
	}
	oldKey := irc.Fold(src.Nick)
	newKey := irc.Fold(newNick)
	for _, ch := range t.channels {
		member, ok := ch.members[oldKey]
		if !ok {
			continue
		}
		delete(ch.members, oldKey)
		member.Nick = newNick
		ch.members[newKey] = member
	}
}

func (t *Tracker) handleMode(msg irc.Message) {
	channel := msg.Param(0)
	modes := msg.Param(1)
	if channel == "" || modes == "" {
		return
	}
	t.mutex.Lock()
	defer t.mutex.Unlock()
	ch, ok := t.channels[irc.Fold(channel)]
	if !ok {
		return
	}
	args := msg.Params[2:]
	adding := true
	argIdx := 0
	nextArg := func() string {
		if argIdx < len(args) {
			arg := args[argIdx]
			argIdx++
			return arg
		}
		return ""
	}
	for _, mode := range modes {
		switch mode {
		case '+':
			adding = true
		case '-':
			adding = false
		case 'o', 'h', 'v':
			nick := nextArg()
			member, ok := ch.members[irc.Fold(nick)]
			if !ok {
				continue
			}
			switch mode {
			case 'o':
				member.Oper = adding
			case 'h':
				member.Halfop = adding
			case 'v':
				member.Voice = adding
			}
		case 'b', 'e', 'I', 'k', 'q':
			// These channel modes carry an argument we don't care about
			nextArg()
		case 'l':
			if adding {
				nextArg()
			}
		}
	}
}

func (t *Tracker) handleNamReply(msg irc.Message) {
	if len(msg.Params) < 2 {
		return
	}
	names := msg.Trailing()
	channel := msg.Params[len(msg.Params)-2]
	t.mutex.Lock()
	defer t.mutex.Unlock()
	ch, ok := t.channels[irc.Fold(channel)]
	if !ok {
		return
	}
	for _, token := range strings.Fields(names) {
		var member Member
		for len(token) > 0 {
			if token[0] == irc.PrefixOper {
				member.Oper = true
			} else if token[0] == irc.PrefixHalfop {
				member.Halfop = true
			} else if token[0] == irc.PrefixVoice {
				member.Voice = true
			} else {
				break
			}
			token = token[1:]
		}
		if token == "" {
			continue
		}
		// Servers with userhost-in-names include the full identity
		if strings.ContainsRune(token, '!') {
			src := irc.ParseSource(token)
			member.Nick = src.Nick
			member.User = src.User
			member.Host = src.Host
		} else {
			member.Nick = token
		}
		key := irc.Fold(member.Nick)
		if existing, ok := ch.members[key]; ok {
			existing.Oper = existing.Oper || member.Oper
			existing.Halfop = existing.Halfop || member.Halfop
			existing.Voice = existing.Voice || member.Voice
			if member.User != "" {
				existing.User = member.User
				existing.Host = member.Host
			}
			continue
		}
		added := member
		ch.members[key] = &added
	}
}

func (t *Tracker) handleEndOfNames(msg irc.Message) {
	channel := msg.Param(1)
	t.mutex.Lock()
	ch, ok := t.channels[irc.Fold(channel)]
	if !ok {
		t.mutex.Unlock()
		return
	}
	ch.namesDone = true
	t.mutex.Unlock()
	// Ask for identities; the channel stays unsynced until the WHO exchange
	// completes
	if err := t.router.Send(irc.NewMessage("WHO", channel)); err != nil {
		t.logger.Warn(
			"failed to send WHO query",
			"component", "network",
			"protocol", ComponentName,
			"error", err,
		)
	}
}

func (t *Tracker) handleWhoReply(msg irc.Message) {
	if len(msg.Params) < 7 {
		return
	}
	channel := msg.Param(1)
	user := msg.Param(2)
	host := msg.Param(3)
	nick := msg.Param(5)
	flags := msg.Param(6)
	t.mutex.Lock()
	defer t.mutex.Unlock()
	ch, ok := t.channels[irc.Fold(channel)]
	if !ok {
		return
	}
	key := irc.Fold(nick)
	member, ok := ch.members[key]
	if !ok {
		member = &Member{Nick: nick}
		ch.members[key] = member
	}
	member.User = user
	member.Host = host
	for _, flag := range flags {
		switch flag {
		case irc.PrefixOper:
			member.Oper = true
		case irc.PrefixHalfop:
			member.Halfop = true
		case irc.PrefixVoice:
			member.Voice = true
		}
	}
}

func (t *Tracker) handleEndOfWho(msg irc.Message) string {
	channel := msg.Param(1)
	t.mutex.Lock()
	defer t.mutex.Unlock()
	ch, ok := t.channels[irc.Fold(channel)]
	if !ok {
		return ""
	}
	if ch.whoDone {
		return ""
	}
	ch.whoDone = true
	if ch.namesDone {
		return ch.name
	}
	return ""
}
