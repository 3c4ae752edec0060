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

package irc

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
)

const (
	// subscriberChanSize is the buffer size of each subscriber channel
	subscriberChanSize = 32
)

// ConnectionId is a unique identifier for an IRC connection
type ConnectionId struct {
	LocalAddr  net.Addr
	RemoteAddr net.Addr
}

// String returns the connection ID as a string
func (c ConnectionId) String() string {
	return fmt.Sprintf("%s->%s", c.LocalAddr, c.RemoteAddr)
}

// Router reads IRC lines from a connection and demultiplexes them to
// per-command subscribers. It is the single writer for the connection: all
// outbound messages go through Send, which serializes them under a mutex.
//
// Unlike a framed binary transport, an IRC server may send commands nobody
// asked for, so inbound messages without a subscriber are dropped rather
// than treated as a protocol error.
type Router struct {
	conn           net.Conn
	logger         *slog.Logger
	sendMutex      sync.Mutex
	startChan      chan struct{}
	onceStart      sync.Once
	doneChan       chan struct{}
	onceStop       sync.Once
	errorChan      chan error
	readDone       sync.WaitGroup
	subscriberLock sync.Mutex
	subscribers    map[string][]chan Message
	catchAll       []chan Message
}

// NewRouter creates a new Router for the provided connection. The read loop
// is started immediately but will not deliver any messages until Start is
// called, which gives the caller a chance to register subscribers first
func NewRouter(conn net.Conn, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	r := &Router{
		conn:        conn,
		logger:      logger,
		startChan:   make(chan struct{}),
		doneChan:    make(chan struct{}),
		errorChan:   make(chan error, 10),
		subscribers: make(map[string][]chan Message),
	}
	r.readDone.Add(1)
	go r.readLoop()
	return r
}

// Start unblocks the read loop and begins routing inbound messages
func (r *Router) Start() {
	r.onceStart.Do(func() {
		close(r.startChan)
	})
}

// Stop shuts down the router. It does not close the underlying connection;
// that's the owner's responsibility. Subscriber channels are left open and
// consumers should select on DoneChan to detect shutdown
func (r *Router) Stop() {
	r.onceStop.Do(func() {
		close(r.doneChan)
	})
}

// DoneChan returns a channel that is closed when the router shuts down
func (r *Router) DoneChan() <-chan struct{} {
	return r.doneChan
}

// ErrorChan returns the channel for asynchronous read/parse errors
func (r *Router) ErrorChan() <-chan error {
	return r.errorChan
}

// ConnectionId returns the connection ID for the underlying connection
func (r *Router) ConnectionId() ConnectionId {
	return ConnectionId{
		LocalAddr:  r.conn.LocalAddr(),
		RemoteAddr: r.conn.RemoteAddr(),
	}
}

// Subscribe registers a new subscriber channel for the specified commands.
// Passing no commands registers a catch-all subscriber that receives every
// message with no other subscriber
func (r *Router) Subscribe(commands ...string) chan Message {
	ch := make(chan Message, subscriberChanSize)
	r.subscriberLock.Lock()
	defer r.subscriberLock.Unlock()
	if len(commands) == 0 {
		r.catchAll = append(r.catchAll, ch)
		return ch
	}
	for _, command := range commands {
		command = strings.ToUpper(command)
		r.subscribers[command] = append(r.subscribers[command], ch)
	}
	return ch
}

// Unsubscribe removes a subscriber channel from all commands. The channel is
// not closed, since the read loop may be about to deliver into it
func (r *Router) Unsubscribe(ch chan Message) {
	r.subscriberLock.Lock()
	defer r.subscriberLock.Unlock()
	for command, chans := range r.subscribers {
		r.subscribers[command] = removeChan(chans, ch)
	}
	r.catchAll = removeChan(r.catchAll, ch)
}

func removeChan(chans []chan Message, ch chan Message) []chan Message {
	ret := chans[:0]
	for _, c := range chans {
		if c != ch {
			ret = append(ret, c)
		}
	}
	return ret
}

// Send serializes a message and writes it to the connection followed by CRLF.
// Lines longer than the protocol maximum are truncated rather than rejected,
// matching what servers do on their side
func (r *Router) Send(msg Message) error {
	// We use a mutex to make sure only one protocol can send at a time
	r.sendMutex.Lock()
	defer r.sendMutex.Unlock()
	line := msg.String()
	if len(line) > MaxLineLength-2 {
		line = line[:MaxLineLength-2]
	}
	if _, err := io.WriteString(r.conn, line+"\r\n"); err != nil {
		return err
	}
	return nil
}

func (r *Router) sendError(err error) {
	// Immediately return if we're already shutting down
	select {
	case <-r.doneChan:
		return
	default:
	}
	select {
	case r.errorChan <- err:
	case <-r.doneChan:
	}
}

func (r *Router) readLoop() {
	defer r.readDone.Done()
	// Wait until the router is started before delivering any messages. We
	// don't want to route anything until subscribers are registered
	select {
	case <-r.doneChan:
		return
	case <-r.startChan:
	}
	scanner := bufio.NewScanner(r.conn)
	scanner.Buffer(make([]byte, MaxLineLength*4), MaxLineLength*4)
	for scanner.Scan() {
		// Break out of read loop if we're shutting down
		select {
		case <-r.doneChan:
			return
		default:
		}
		msg, err := ParseMessage(scanner.Text())
		if err != nil {
			r.logger.Debug(
				"dropping unparseable line",
				"component", "irc",
				"error", err,
			)
			continue
		}
		if !r.deliver(msg) {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		r.sendError(err)
	} else {
		r.sendError(io.EOF)
	}
	r.Stop()
}

// deliver routes a message to its subscribers, returning false if the router
// shut down mid-delivery
func (r *Router) deliver(msg Message) bool {
	r.subscriberLock.Lock()
	targets := append([]chan Message(nil), r.subscribers[msg.Command]...)
	if len(targets) == 0 {
		targets = append(targets, r.catchAll...)
	}
	r.subscriberLock.Unlock()
	if len(targets) == 0 {
		r.logger.Debug(
			"no subscriber for command",
			"component", "irc",
			"command", msg.Command,
		)
		return true
	}
	for _, ch := range targets {
		select {
		case ch <- msg:
		case <-r.doneChan:
			return false
		}
	}
	return true
}
