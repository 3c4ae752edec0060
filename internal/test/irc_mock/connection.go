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

// Package irc_mock provides a scripted mock IRC server for testing
package irc_mock

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/blinklabs-io/ferret/irc"
)

// recvChanSize bounds the inbound lines retained once the scripted
// conversation has been consumed
const recvChanSize = 64

// Connection mocks the server side of an IRC connection. It walks the given
// conversation, matching the client's lines and writing the scripted server
// lines, and panics on any mismatch. Once the conversation is exhausted it
// keeps draining inbound lines into Received so client writes never block on
// the underlying pipe
type Connection struct {
	mockConn     net.Conn
	conn         net.Conn
	conversation []ConversationEntry
	recvChan     chan irc.Message
}

// NewConnection returns a new Connection with the provided conversation
func NewConnection(conversation []ConversationEntry) *Connection {
	c := &Connection{
		conversation: conversation,
		recvChan:     make(chan irc.Message, recvChanSize),
	}
	c.conn, c.mockConn = net.Pipe()
	go c.asyncLoop()
	return c
}

// Received returns a channel carrying the lines the client sent after the
// scripted conversation ended. The channel is closed when the client closes
// the connection
func (c *Connection) Received() <-chan irc.Message {
	return c.recvChan
}

// Send writes a message to the client, as if sent by the server
func (c *Connection) Send(msg irc.Message) error {
	return c.SendLine(msg.String())
}

// SendLine writes a raw line to the client, as if sent by the server
func (c *Connection) SendLine(line string) error {
	_, err := c.mockConn.Write([]byte(line + "\r\n"))
	return err
}

func (c *Connection) Read(b []byte) (n int, err error) {
	return c.conn.Read(b)
}

func (c *Connection) Write(b []byte) (n int, err error) {
	return c.conn.Write(b)
}

func (c *Connection) Close() error {
	err := c.conn.Close()
	err2 := c.mockConn.Close()
	if err == nil {
		err = err2
	}
	return err
}

func (c *Connection) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

func (c *Connection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *Connection) SetDeadline(t time.Time) error {
	return c.conn.SetDeadline(t)
}

func (c *Connection) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

func (c *Connection) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}

func (c *Connection) asyncLoop() {
	defer close(c.recvChan)
	scanner := bufio.NewScanner(c.mockConn)
	for _, entry := range c.conversation {
		switch entry.Type {
		case EntryTypeInput:
			ok, err := c.processInputEntry(scanner, entry)
			if !ok {
				// Client closed the connection
				return
			}
			if err != nil {
				panic(fmt.Sprintf("mock connection: %s", err))
			}
		case EntryTypeOutput:
			if err := c.processOutputEntry(entry); err != nil {
				// Client closed the connection
				return
			}
		case EntryTypeClose:
			c.Close()
			return
		default:
			panic(
				fmt.Sprintf(
					"mock connection: unknown conversation entry type: %d",
					entry.Type,
				),
			)
		}
	}
	// The scripted conversation is done. Keep draining inbound lines so the
	// client never blocks writing to the pipe, handing them to Received
	for scanner.Scan() {
		msg, err := irc.ParseMessage(scanner.Text())
		if err != nil {
			continue
		}
		select {
		case c.recvChan <- msg:
		default:
		}
	}
}

func (c *Connection) processInputEntry(
	scanner *bufio.Scanner,
	entry ConversationEntry,
) (bool, error) {
	if !scanner.Scan() {
		return false, nil
	}
	line := scanner.Text()
	if entry.InputLine != "" {
		if line != entry.InputLine {
			return true, fmt.Errorf(
				"input line mismatch: got %q, wanted %q",
				line,
				entry.InputLine,
			)
		}
		return true, nil
	}
	msg, err := irc.ParseMessage(line)
	if err != nil {
		return true, fmt.Errorf("malformed input line %q: %s", line, err)
	}
	wanted := strings.ToUpper(entry.InputCommand)
	if wanted != "" && msg.Command != wanted {
		return true, fmt.Errorf(
			"input command mismatch: got %q, wanted %q",
			msg.Command,
			wanted,
		)
	}
	return true, nil
}

func (c *Connection) processOutputEntry(entry ConversationEntry) error {
	for _, line := range entry.OutputLines {
		if _, err := c.mockConn.Write([]byte(line + "\r\n")); err != nil {
			return err
		}
	}
	return nil
}
