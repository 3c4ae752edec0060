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

// Package irc implements the RFC 1459 client line format and a router that
// demultiplexes inbound messages to per-command subscribers.
package irc

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// MaxLineLength is the maximum length of a single IRC line, including the
	// trailing CRLF terminator.
	MaxLineLength = 512
)

var ErrEmptyMessage = errors.New("empty message")

// Message represents a single IRC line. Params holds the middle parameters
// followed by the trailing parameter (if any) as its last element.
type Message struct {
	Prefix  string
	Command string
	Params  []string
}

// NewMessage returns a Message with the specified command and parameters
func NewMessage(command string, params ...string) Message {
	return Message{
		Command: strings.ToUpper(command),
		Params:  params,
	}
}

// ParseMessage parses a single raw IRC line (without the trailing CRLF) into
// a Message. The command is normalized to upper case. Runs of extra spaces
// between tokens are tolerated, since not every server implementation is
// strict about them
func ParseMessage(line string) (Message, error) {
	var msg Message
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return msg, ErrEmptyMessage
	}
	// Optional prefix
	if line[0] == ':' {
		idx := strings.IndexByte(line, ' ')
		if idx < 0 {
			return msg, fmt.Errorf("message has prefix but no command: %q", line)
		}
		msg.Prefix = line[1:idx]
		line = line[idx+1:]
	}
	// Trailing parameter
	var trailing string
	hasTrailing := false
	if idx := strings.Index(line, " :"); idx >= 0 {
		trailing = line[idx+2:]
		line = line[:idx]
		hasTrailing = true
	}
	for _, token := range strings.Split(line, " ") {
		if token == "" {
			continue
		}
		if msg.Command == "" {
			msg.Command = strings.ToUpper(token)
			continue
		}
		msg.Params = append(msg.Params, token)
	}
	if msg.Command == "" {
		return msg, ErrEmptyMessage
	}
	if hasTrailing {
		msg.Params = append(msg.Params, trailing)
	}
	return msg, nil
}

// String serializes the message back into wire format, without the trailing
// CRLF. The final parameter is rendered as a trailing parameter whenever it
// contains a space or colon, is empty, or the message marks it as such by
// construction
func (m Message) String() string {
	var sb strings.Builder
	if m.Prefix != "" {
		sb.WriteByte(':')
		sb.WriteString(m.Prefix)
		sb.WriteByte(' ')
	}
	sb.WriteString(m.Command)
	for i, param := range m.Params {
		sb.WriteByte(' ')
		if i == len(m.Params)-1 &&
			(param == "" || strings.ContainsAny(param, " ") || strings.HasPrefix(param, ":")) {
			sb.WriteByte(':')
		}
		sb.WriteString(param)
	}
	return sb.String()
}

// Param returns the parameter at the specified index, or an empty string if
// the message has fewer parameters
func (m Message) Param(idx int) string {
	if idx < 0 || idx >= len(m.Params) {
		return ""
	}
	return m.Params[idx]
}

// Trailing returns the last parameter, or an empty string for a message with
// no parameters
func (m Message) Trailing() string {
	if len(m.Params) == 0 {
		return ""
	}
	return m.Params[len(m.Params)-1]
}

// IsNumeric returns true if the message command is a three-digit numeric reply
func (m Message) IsNumeric() bool {
	if len(m.Command) != 3 {
		return false
	}
	for _, c := range m.Command {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// Source identifies the origin of a message decomposed from the
// nick!user@host prefix form. Server prefixes yield a Source with only the
// Nick field populated
type Source struct {
	Nick string
	User string
	Host string
}

// ParseSource decomposes a message prefix into its nick, user, and host parts
func ParseSource(prefix string) Source {
	var src Source
	src.Nick = prefix
	if idx := strings.IndexByte(src.Nick, '!'); idx >= 0 {
		src.User = src.Nick[idx+1:]
		src.Nick = src.Nick[:idx]
	}
	if idx := strings.IndexByte(src.User, '@'); idx >= 0 {
		src.Host = src.User[idx+1:]
		src.User = src.User[:idx]
	} else if idx := strings.IndexByte(src.Nick, '@'); idx >= 0 {
		src.Host = src.Nick[idx+1:]
		src.Nick = src.Nick[:idx]
	}
	return src
}

func (s Source) String() string {
	ret := s.Nick
	if s.User != "" {
		ret = ret + "!" + s.User
	}
	if s.Host != "" {
		ret = ret + "@" + s.Host
	}
	return ret
}
