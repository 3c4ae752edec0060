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

package irc_mock

import (
	"fmt"
	"strings"
)

const (
	MockServerName = "irc.example.net"
	MockNick       = "ferret"
	MockUsername   = "~ferret"
	MockClientHost = "bot.example.net"
)

type EntryType int

const (
	EntryTypeNone   EntryType = 0
	EntryTypeInput  EntryType = 1
	EntryTypeOutput EntryType = 2
	EntryTypeClose  EntryType = 3
)

type ConversationEntry struct {
	Type EntryType
	// InputCommand matches any inbound message with the given command
	InputCommand string
	// InputLine matches an exact inbound line and takes precedence over
	// InputCommand
	InputLine string
	// OutputLines are written verbatim, each followed by CRLF
	OutputLines []string
}

// Member describes a channel member for the canned NAMES/WHO exchange
type Member struct {
	Nick string
	User string
	Host string
	// Flags is the WHO reply flags column and defaults to "H" (here)
	Flags string
}

// ConversationEntryNickRequest is a pre-defined conversation entry that matches the client's
// initial NICK command
var ConversationEntryNickRequest = ConversationEntry{
	Type:         EntryTypeInput,
	InputCommand: "NICK",
}

// ConversationEntryUserRequest is a pre-defined conversation entry that matches the client's
// USER command
var ConversationEntryUserRequest = ConversationEntry{
	Type:         EntryTypeInput,
	InputCommand: "USER",
}

// ConversationEntryWelcome is a pre-defined conversation entry that completes registration
// by granting MockNick
var ConversationEntryWelcome = ConversationEntry{
	Type: EntryTypeOutput,
	OutputLines: []string{
		fmt.Sprintf(
			":%s 001 %s :Welcome to the Example network %s",
			MockServerName,
			MockNick,
			MockNick,
		),
	},
}

// RegistrationEntries returns the conversation prefix covering a plain (no
// SASL, no server password) registration that grants MockNick
func RegistrationEntries() []ConversationEntry {
	return []ConversationEntry{
		ConversationEntryNickRequest,
		ConversationEntryUserRequest,
		ConversationEntryWelcome,
	}
}

// ChannelJoinEntries returns the conversation covering a join to the given
// channel: the mock confirms the join, delivers the NAMES roster, and answers
// the WHO query the roster tracker issues. The mock's own member record is
// included automatically
func ChannelJoinEntries(channel string, members ...Member) []ConversationEntry {
	all := append([]Member{
		{
			Nick: MockNick,
			User: MockUsername,
			Host: MockClientHost,
		},
	}, members...)
	names := make([]string, 0, len(all))
	for _, member := range all {
		names = append(names, member.Nick)
	}
	whoLines := make([]string, 0, len(all)+1)
	for _, member := range all {
		flags := member.Flags
		if flags == "" {
			flags = "H"
		}
		whoLines = append(whoLines, fmt.Sprintf(
			":%s 352 %s %s %s %s %s %s %s :0 %s",
			MockServerName,
			MockNick,
			channel,
			member.User,
			member.Host,
			MockServerName,
			member.Nick,
			flags,
			member.Nick,
		))
	}
	whoLines = append(whoLines, fmt.Sprintf(
		":%s 315 %s %s :End of /WHO list.",
		MockServerName,
		MockNick,
		channel,
	))
	return []ConversationEntry{
		{
			Type:         EntryTypeInput,
			InputCommand: "JOIN",
		},
		{
			Type: EntryTypeOutput,
			OutputLines: []string{
				fmt.Sprintf(
					":%s!%s@%s JOIN %s",
					MockNick,
					MockUsername,
					MockClientHost,
					channel,
				),
				fmt.Sprintf(
					":%s 353 %s = %s :%s",
					MockServerName,
					MockNick,
					channel,
					strings.Join(names, " "),
				),
				fmt.Sprintf(
					":%s 366 %s %s :End of /NAMES list.",
					MockServerName,
					MockNick,
					channel,
				),
			},
		},
		{
			Type:         EntryTypeInput,
			InputCommand: "WHO",
		},
		{
			Type:        EntryTypeOutput,
			OutputLines: whoLines,
		},
	}
}
