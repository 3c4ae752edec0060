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

package dispatch

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/blinklabs-io/ferret/floodgate"
	"github.com/blinklabs-io/ferret/hostaddr"
	"github.com/blinklabs-io/ferret/irc"
	"github.com/blinklabs-io/ferret/lookup"
	"github.com/blinklabs-io/ferret/protocol"
	"github.com/blinklabs-io/ferret/protocol/statsquery"
	"github.com/blinklabs-io/ferret/reply"
	"github.com/blinklabs-io/ferret/roster"
)

// invocation carries one command through the admission and dispatch steps.
// A continuation is the recursive re-entry used for nickname resolution: it
// keeps the original requester, swaps in the target member's identity, and
// bypasses the in-flight check exactly once
type invocation struct {
	channel      string
	requester    string
	target       roster.Member
	text         string
	continuation bool
}

// Dispatcher owns the single in-flight lookup slot and drives the
// correlator and executor from inbound channel messages
type Dispatcher struct {
	config       Config
	router       *irc.Router
	connectionId irc.ConnectionId
	logger       *slog.Logger
	gate         *floodgate.Gate
	recvChan     chan irc.Message
	doneChan     chan struct{}
	onceStart    sync.Once
	onceStop     sync.Once
	slotMutex    sync.Mutex
	current      *Request
}

// NewDispatcher returns a new dispatcher for the connection described by the
// protocol options
func NewDispatcher(
	protoOptions protocol.ProtocolOptions,
	cfg Config,
) *Dispatcher {
	logger := protoOptions.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Dispatcher{
		config:       cfg,
		router:       protoOptions.Router,
		connectionId: protoOptions.ConnectionId,
		logger:       logger,
		gate:         floodgate.New(),
		doneChan:     make(chan struct{}),
	}
}

// Start subscribes the dispatcher to channel messages
func (d *Dispatcher) Start() {
	d.onceStart.Do(func() {
		d.logger.Debug(
			"starting dispatcher",
			"component", "network",
			"protocol", ComponentName,
			"connection_id", d.connectionId.String(),
		)
		d.recvChan = d.router.Subscribe("PRIVMSG")
		go d.recvLoop()
	})
}

// Stop shuts down the dispatcher, removes its router subscription, and
// cancels the flood window timer. An in-flight request is abandoned
func (d *Dispatcher) Stop() {
	d.onceStop.Do(func() {
		d.logger.Debug(
			"stopping dispatcher",
			"component", "network",
			"protocol", ComponentName,
			"connection_id", d.connectionId.String(),
		)
		if d.recvChan != nil {
			d.router.Unsubscribe(d.recvChan)
		}
		d.gate.Stop()
		close(d.doneChan)
	})
}

// DoneChan returns a channel that is closed when the dispatcher shuts down
func (d *Dispatcher) DoneChan() <-chan struct{} {
	return d.doneChan
}

// Busy returns whether a lookup is currently in flight
func (d *Dispatcher) Busy() bool {
	d.slotMutex.Lock()
	defer d.slotMutex.Unlock()
	return d.current != nil
}

func (d *Dispatcher) options() Options {
	if d.config.OptionsFunc != nil {
		return d.config.OptionsFunc()
	}
	return DefaultOptions()
}

func (d *Dispatcher) recvLoop() {
	for {
		select {
		case <-d.doneChan:
			return
		case <-d.router.DoneChan():
			d.Stop()
			return
		case msg := <-d.recvChan:
			d.handleMessage(msg)
		}
	}
}

func (d *Dispatcher) handleMessage(msg irc.Message) {
	src := irc.ParseSource(msg.Prefix)
	channel := msg.Param(0)
	text := msg.Trailing()
	if src.Nick == "" || channel == "" || text == "" {
		return
	}
	inv := invocation{
		channel:   channel,
		requester: src.Nick,
		text:      text,
	}
	if err := d.process(inv); err != nil {
		d.logger.Warn(
			fmt.Sprintf("failed to process command: %s", err),
			"component", "network",
			"protocol", ComponentName,
			"connection_id", d.connectionId.String(),
		)
	}
}

// process runs the admission sequence and dispatches the command. Admission
// failures are silent: the message is dropped without a user-visible trace
func (d *Dispatcher) process(inv invocation) error {
	opts := d.options()
	// A command is rejected while a lookup is in flight. The nickname
	// continuation is exempt: it belongs to the command that already passed
	// this check
	if !inv.continuation && d.Busy() {
		d.logger.Debug(
			"command rejected, lookup in flight",
			"component", "network",
			"protocol", ComponentName,
			"requester", inv.requester,
		)
		return nil
	}
	// Lagged connections carry stale rosters, so sit commands out until the
	// round-trip time recovers
	if opts.MaxLatency > 0 && d.config.Latency != nil {
		if latency := d.config.Latency.Latency(); latency > opts.MaxLatency {
			d.logger.Debug(
				"command rejected, latency above ceiling",
				"component", "network",
				"protocol", ComponentName,
				"latency", latency,
			)
			return nil
		}
	}
	if !monitored(opts.Channels, d.config.Network, inv.channel) {
		return nil
	}
	if d.config.Directory == nil || !d.config.Directory.Synced(inv.channel) {
		return nil
	}
	// Our own messages are never commands
	if irc.FoldEqual(inv.requester, d.config.Directory.OwnNick()) {
		return nil
	}
	if opts.RequirePrivilege {
		self, ok := d.config.Directory.Self(inv.channel)
		if !ok || !self.Privileged() {
			return nil
		}
	}
	sender, ok := d.config.Directory.Member(inv.channel, inv.requester)
	if !ok {
		return nil
	}
	if opts.CommandPrefix == "" ||
		!strings.HasPrefix(inv.text, opts.CommandPrefix) {
		return nil
	}
	// The continuation hands back the admission its top-level pass paid for
	// before re-admitting, so the recursion is net free
	if inv.continuation {
		d.gate.Refund()
	}
	if !d.gate.Admit(opts.FloodLimit, opts.FloodWindow) {
		d.logger.Debug(
			"command rejected by flood gate",
			"component", "network",
			"protocol", ComponentName,
			"requester", inv.requester,
		)
		return nil
	}
	if inv.continuation {
		return d.resolveSelf(opts, inv, inv.target)
	}
	body := strings.TrimPrefix(inv.text, opts.CommandPrefix)
	command, argument, _ := strings.Cut(body, " ")
	argument = strings.TrimSpace(argument)
	switch {
	case strings.EqualFold(command, opts.CommandName):
	case opts.EnableHelp && strings.EqualFold(command, "help"):
		return d.sendHelp(opts, inv)
	case opts.EnableVersion && strings.EqualFold(command, "version"):
		return d.sendVersion(opts, inv)
	default:
		return nil
	}
	switch {
	case argument == "":
		return d.resolveSelf(opts, inv, sender)
	case hostaddr.LooksLikeAddress(argument):
		return d.startLookup(
			opts,
			inv,
			strings.ToLower(argument),
			reply.BitArgument,
		)
	default:
		return d.resolveNick(opts, inv, sender, argument)
	}
}

// resolveSelf resolves the target member's own connection address: webchat
// idents decode directly, literal host addresses go straight to the
// executor, and everything else needs a correlated status query
func (d *Dispatcher) resolveSelf(
	opts Options,
	inv invocation,
	target roster.Member,
) error {
	if target.Host == "" {
		return d.sendReply(
			opts,
			inv.channel,
			inv.requester,
			noAddressText,
			reply.BitNone,
		)
	}
	if opts.EnableWebchat &&
		hostaddr.IsWebGatewayHost(target.Host, opts.WebGateways) {
		if addr := hostaddr.HexToIPv4(target.User); addr != "" {
			return d.startLookup(opts, inv, addr, reply.BitWebchat)
		}
	}
	if hostaddr.LooksLikeAddress(target.Host) {
		return d.startLookup(
			opts,
			inv,
			strings.ToLower(target.Host),
			reply.BitPublic,
		)
	}
	return d.startStatsQuery(opts, inv, target)
}

// resolveNick resolves a nickname argument to a channel member and re-enters
// the pipeline as a continuation carrying that member's identity
func (d *Dispatcher) resolveNick(
	opts Options,
	inv invocation,
	sender roster.Member,
	argument string,
) error {
	target, ok := d.config.Directory.Member(inv.channel, argument)
	if !ok {
		return d.sendReply(
			opts,
			inv.channel,
			inv.requester,
			notAnAddressText,
			reply.BitNone,
		)
	}
	// Asking about yourself by name is the same as asking with no argument
	if irc.FoldEqual(target.Nick, sender.Nick) {
		return d.resolveSelf(opts, inv, sender)
	}
	d.processingNotice(opts, inv)
	d.notice(opts, inv, reply.BitNick, lookingUpText+target.Nick)
	cont := invocation{
		channel:      inv.channel,
		requester:    inv.requester,
		target:       target,
		text:         inv.text,
		continuation: true,
	}
	return d.process(cont)
}

// startLookup engages the executor for an already-resolved address
func (d *Dispatcher) startLookup(
	opts Options,
	inv invocation,
	address string,
	bit reply.Bits,
) error {
	if d.config.Fetcher == nil {
		return nil
	}
	d.processingNotice(opts, inv)
	request := d.engage(inv)
	if request == nil {
		return nil
	}
	d.notice(opts, inv, bit, lookingUpText+address)
	// Holding the slot mutex across Execute closes the gap between spawning
	// the worker and recording its ticket: a result cannot be correlated
	// until the ticket is in place
	d.slotMutex.Lock()
	if d.current == request {
		request.Ticket = d.config.Fetcher.Execute(address)
	}
	d.slotMutex.Unlock()
	d.logger.Debug(
		"lookup started",
		"component", "network",
		"protocol", ComponentName,
		"request_id", request.Id.String(),
		"address", address,
	)
	return nil
}

// startStatsQuery engages the correlator for a member whose address is not
// directly visible
func (d *Dispatcher) startStatsQuery(
	opts Options,
	inv invocation,
	target roster.Member,
) error {
	if d.config.Stats == nil {
		return nil
	}
	d.processingNotice(opts, inv)
	request := d.engage(inv)
	if request == nil {
		return nil
	}
	d.slotMutex.Lock()
	request.Subject = target.Nick
	d.slotMutex.Unlock()
	d.notice(opts, inv, reply.BitStatsReply, lookingUpText+target.Nick)
	if err := d.config.Stats.Query(target.Nick); err != nil {
		d.release(request)
		d.logger.Debug(
			"status query failed",
			"component", "network",
			"protocol", ComponentName,
			"request_id", request.Id.String(),
			"error", err,
		)
	}
	return nil
}

// engage claims the single in-flight slot. A nil return means another
// request won the slot in the meantime and this command is dropped
func (d *Dispatcher) engage(inv invocation) *Request {
	d.slotMutex.Lock()
	defer d.slotMutex.Unlock()
	if d.current != nil {
		return nil
	}
	d.current = &Request{
		Id:        uuid.New(),
		Network:   d.config.Network,
		Channel:   inv.channel,
		Requester: inv.requester,
		Issued:    time.Now(),
	}
	return d.current
}

// release clears the in-flight slot if it still belongs to the given request
func (d *Dispatcher) release(request *Request) {
	d.slotMutex.Lock()
	defer d.slotMutex.Unlock()
	if d.current == request {
		d.current = nil
	}
}

// StatsResolved hands a correlated status reply carrying a usable address to
// the executor. It is wired as the stats-query resolved callback
func (d *Dispatcher) StatsResolved(
	ctx statsquery.CallbackContext,
	query statsquery.Query,
	address string,
) error {
	d.slotMutex.Lock()
	request := d.current
	if request == nil || !irc.FoldEqual(request.Subject, query.Subject) {
		d.slotMutex.Unlock()
		return nil
	}
	if d.config.Fetcher == nil {
		d.current = nil
		d.slotMutex.Unlock()
		return nil
	}
	request.Ticket = d.config.Fetcher.Execute(address)
	d.slotMutex.Unlock()
	d.logger.Debug(
		"status query resolved",
		"component", "network",
		"protocol", ComponentName,
		"request_id", request.Id.String(),
		"address", address,
	)
	return nil
}

// StatsNoAddress reports a correlated status reply without a usable address
// back to the requester. It is wired as the stats-query no-address callback
func (d *Dispatcher) StatsNoAddress(
	ctx statsquery.CallbackContext,
	query statsquery.Query,
) error {
	d.slotMutex.Lock()
	request := d.current
	if request == nil || !irc.FoldEqual(request.Subject, query.Subject) {
		d.slotMutex.Unlock()
		return nil
	}
	d.slotMutex.Unlock()
	err := d.sendReply(
		d.options(),
		request.Channel,
		request.Requester,
		noAddressText,
		reply.BitNone,
	)
	d.release(request)
	return err
}

// StatsRejected abandons the request silently after the server refused the
// query. It is wired as the stats-query rejected callback
func (d *Dispatcher) StatsRejected(
	ctx statsquery.CallbackContext,
	query statsquery.Query,
) error {
	if request := d.takeCorrelated(query.Subject); request != nil {
		d.logger.Debug(
			"status query rejected by server",
			"component", "network",
			"protocol", ComponentName,
			"request_id", request.Id.String(),
		)
	}
	return nil
}

// StatsTimeout abandons the request silently after no correlated reply
// arrived in time. It is wired as the stats-query timeout callback
func (d *Dispatcher) StatsTimeout(
	ctx statsquery.CallbackContext,
	query statsquery.Query,
) error {
	if request := d.takeCorrelated(query.Subject); request != nil {
		d.logger.Debug(
			"status query timed out",
			"component", "network",
			"protocol", ComponentName,
			"request_id", request.Id.String(),
		)
	}
	return nil
}

// takeCorrelated releases and returns the in-flight request if its stats
// subject matches, or nil for stale and uncorrelated replies
func (d *Dispatcher) takeCorrelated(subject string) *Request {
	d.slotMutex.Lock()
	defer d.slotMutex.Unlock()
	request := d.current
	if request == nil || !irc.FoldEqual(request.Subject, subject) {
		return nil
	}
	d.current = nil
	return request
}

// LookupFinished delivers a finished lookup to the requester and re-opens
// the single-request gate. It is wired as the executor result callback
func (d *Dispatcher) LookupFinished(result lookup.Result) error {
	d.slotMutex.Lock()
	request := d.current
	if request == nil || request.Ticket.Id != result.Ticket.Id {
		d.slotMutex.Unlock()
		return nil
	}
	d.slotMutex.Unlock()
	opts := d.options()
	body := result.Text
	if result.Dnsbl != "" {
		body = body + " (dnsbl: " + result.Dnsbl + ")"
	}
	err := d.sendReply(
		opts,
		request.Channel,
		request.Requester,
		body,
		result.Flags,
	)
	// The slot opens again only after the reply is on the wire, keeping
	// request handling strictly sequential
	d.release(request)
	return err
}

func (d *Dispatcher) sendHelp(opts Options, inv invocation) error {
	lines := []string{
		fmt.Sprintf(
			"%s%s [target] looks up the network address behind a channel member",
			opts.CommandPrefix,
			opts.CommandName,
		),
		"target is an ipv4/ipv6 address or a nickname, omit it to look up your own connection",
	}
	for _, line := range lines {
		err := d.sendReply(
			opts,
			inv.channel,
			inv.requester,
			line,
			reply.BitNone,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) sendVersion(opts Options, inv invocation) error {
	version := opts.Version
	if version == "" {
		version = "(unknown version)"
	}
	lines := []string{
		"ferret " + version,
		"an asynchronous irc address lookup bot",
		versionProjectUrl,
	}
	for _, line := range lines {
		err := d.sendReply(
			opts,
			inv.channel,
			inv.requester,
			line,
			reply.BitNone,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// processingNotice emits the once-per-command processing line. Continuations
// stay quiet: their top-level pass already emitted it
func (d *Dispatcher) processingNotice(opts Options, inv invocation) {
	if inv.continuation || !opts.Notices.Processing {
		return
	}
	err := d.sendReply(
		opts,
		inv.channel,
		inv.requester,
		processingText,
		reply.BitNone,
	)
	if err != nil {
		d.logger.Warn(
			fmt.Sprintf("failed to send processing notice: %s", err),
			"component", "network",
			"protocol", ComponentName,
		)
	}
}

// notice emits a provenance-tagged informational line if its category is
// enabled
func (d *Dispatcher) notice(
	opts Options,
	inv invocation,
	bit reply.Bits,
	body string,
) {
	if !opts.Notices.enabled(bit) {
		return
	}
	if err := d.sendReply(opts, inv.channel, inv.requester, body, bit); err != nil {
		d.logger.Warn(
			fmt.Sprintf("failed to send notice: %s", err),
			"component", "network",
			"protocol", ComponentName,
		)
	}
}

func (d *Dispatcher) sendReply(
	opts Options,
	channel string,
	nick string,
	body string,
	bits reply.Bits,
) error {
	line := reply.Format(nick, body, bits, reply.Options{
		ShowPrefix:        opts.ShowPrefix,
		LongLabels:        opts.LongLabels,
		ShowCommandBanner: opts.ShowCommandBanner,
		CommandName:       opts.CommandName,
	})
	return d.router.Send(irc.NewMessage("PRIVMSG", channel, line))
}

// monitored reports whether network/channel appears in the configured set.
// Entries have the form "network/#channel"; the network part matches
// case-insensitively and the channel part under the rfc1459 casemapping
func monitored(entries []string, network string, channel string) bool {
	for _, entry := range entries {
		entryNetwork, entryChannel, ok := strings.Cut(entry, "/")
		if !ok {
			continue
		}
		if !strings.EqualFold(entryNetwork, network) {
			continue
		}
		if irc.FoldEqual(entryChannel, channel) {
			return true
		}
	}
	return false
}
