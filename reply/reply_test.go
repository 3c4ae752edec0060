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

package reply_test

import (
	"testing"

	"github.com/blinklabs-io/ferret/reply"
)

func TestFormat(t *testing.T) {
	testDefs := []struct {
		name     string
		nick     string
		body     string
		bits     reply.Bits
		opts     reply.Options
		expected string
	}{
		{
			name:     "short labels in declared order",
			nick:     "bob",
			body:     "198.51.100.7 is in example city",
			bits:     reply.BitReply | reply.BitTruncated,
			opts:     reply.Options{ShowPrefix: true},
			expected: "bob: [r t] 198.51.100.7 is in example city",
		},
		{
			name:     "long labels",
			nick:     "bob",
			body:     "198.51.100.7",
			bits:     reply.BitReply | reply.BitGarbage,
			opts:     reply.Options{ShowPrefix: true, LongLabels: true},
			expected: "bob: [reply garbage] 198.51.100.7",
		},
		{
			name:     "zero bitmask yields no bracket section",
			nick:     "bob",
			body:     "Processing...",
			bits:     reply.BitNone,
			opts:     reply.Options{ShowPrefix: true},
			expected: "bob: Processing...",
		},
		{
			name:     "disabled prefix display yields no bracket section",
			nick:     "bob",
			body:     "198.51.100.7",
			bits:     reply.BitReply,
			opts:     reply.Options{},
			expected: "bob: 198.51.100.7",
		},
		{
			name: "command banner",
			nick: "alice",
			body: "Looking up 198.51.100.7",
			bits: reply.BitPublic,
			opts: reply.Options{
				ShowPrefix:        true,
				ShowCommandBanner: true,
				CommandName:       "ip",
			},
			expected: "alice: [p] [ip] Looking up 198.51.100.7",
		},
		{
			name:     "body whitespace is trimmed",
			nick:     "alice",
			body:     "  spaced out  ",
			bits:     reply.BitNone,
			opts:     reply.Options{},
			expected: "alice: spaced out",
		},
		{
			name:     "ascending flag order regardless of combination",
			nick:     "carol",
			body:     "x",
			bits:     reply.BitGarbage | reply.BitArgument | reply.BitError,
			opts:     reply.Options{ShowPrefix: true},
			expected: "carol: [a e g] x",
		},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			result := reply.Format(
				testDef.nick,
				testDef.body,
				testDef.bits,
				testDef.opts,
			)
			if result != testDef.expected {
				t.Fatalf(
					"did not get expected line:\n  got:      %q\n  expected: %q",
					result,
					testDef.expected,
				)
			}
		})
	}
}

func TestBitsString(t *testing.T) {
	testDefs := map[reply.Bits]string{
		reply.BitNone:                       "none",
		reply.BitReply:                      "reply",
		reply.BitReply | reply.BitTruncated: "reply|truncated",
		reply.BitWebchat | reply.BitNick:    "webchat|nick",
	}
	for bits, expected := range testDefs {
		if bits.String() != expected {
			t.Fatalf(
				"did not get expected string for bits %d: got %s, expected %s",
				bits,
				bits.String(),
				expected,
			)
		}
	}
}
