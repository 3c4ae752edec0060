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

// Package reply formats outbound chat lines. Each line carries a bitmask
// describing where the answer came from (argument, webchat decode, public
// host, stats reply, nickname resolution) and what happened to it on the way
// (reply, error, truncated, garbage stripped)
package reply

import (
	"strings"
)

// Bits is a set of provenance and quality flags attached to an outbound line
type Bits uint16

const (
	BitArgument Bits = 1 << iota
	BitWebchat
	BitPublic
	BitStatsReply
	BitNick
	BitReply
	BitError
	BitTruncated
	BitGarbage

	BitNone Bits = 0
)

// bitOrder fixes the order in which flags are rendered, lowest bit first
var bitOrder = []Bits{
	BitArgument,
	BitWebchat,
	BitPublic,
	BitStatsReply,
	BitNick,
	BitReply,
	BitError,
	BitTruncated,
	BitGarbage,
}

type bitLabel struct {
	short string
	long  string
}

var bitLabels = map[Bits]bitLabel{
	BitArgument:   {short: "a", long: "arg"},
	BitWebchat:    {short: "w", long: "webchat"},
	BitPublic:     {short: "p", long: "public"},
	BitStatsReply: {short: "sl", long: "statsl"},
	BitNick:       {short: "n", long: "nick"},
	BitReply:      {short: "r", long: "reply"},
	BitError:      {short: "e", long: "error"},
	BitTruncated:  {short: "t", long: "truncated"},
	BitGarbage:    {short: "g", long: "garbage"},
}

// String renders the long-form labels for the set flags, primarily for logs
func (b Bits) String() string {
	if b == BitNone {
		return "none"
	}
	labels := make([]string, 0, len(bitOrder))
	for _, bit := range bitOrder {
		if b&bit == 0 {
			continue
		}
		labels = append(labels, bitLabels[bit].long)
	}
	return strings.Join(labels, "|")
}

// Options control how a line is rendered. They are passed per call so that
// live configuration changes take effect immediately
type Options struct {
	// ShowPrefix enables the bracketed flag-label section
	ShowPrefix bool
	// LongLabels selects the long label form over the single-letter form
	LongLabels bool
	// ShowCommandBanner prepends the command name in brackets
	ShowCommandBanner bool
	// CommandName is the name rendered by ShowCommandBanner
	CommandName string
}

// Format renders an outbound line: the addressed nickname, an optional
// bracketed flag section, an optional command banner, then the trimmed body.
// A zero bitmask or disabled prefix display yields no bracket section
func Format(nick string, body string, bits Bits, opts Options) string {
	var sb strings.Builder
	sb.WriteString(nick)
	sb.WriteString(": ")
	if opts.ShowPrefix && bits != BitNone {
		sb.WriteByte('[')
		first := true
		for _, bit := range bitOrder {
			if bits&bit == 0 {
				continue
			}
			if !first {
				sb.WriteByte(' ')
			}
			label := bitLabels[bit]
			if opts.LongLabels {
				sb.WriteString(label.long)
			} else {
				sb.WriteString(label.short)
			}
			first = false
		}
		sb.WriteString("] ")
	}
	if opts.ShowCommandBanner && opts.CommandName != "" {
		sb.WriteByte('[')
		sb.WriteString(opts.CommandName)
		sb.WriteString("] ")
	}
	sb.WriteString(strings.TrimSpace(body))
	return sb.String()
}
