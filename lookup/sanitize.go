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

package lookup

import (
	"regexp"
	"strings"

	"github.com/blinklabs-io/ferret/reply"
)

var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// Sanitize reduces raw lookup output to text that is safe to echo into a
// channel. HTML-style tags are removed first, then the text is cut to
// maxReplyLength bytes, then every byte outside the allowed set is dropped.
// The returned flags record whether cutting or dropping happened
func Sanitize(text string) (string, reply.Bits) {
	flags := reply.BitNone
	text = htmlTagPattern.ReplaceAllString(text, "")
	if len(text) > maxReplyLength {
		text = text[:maxReplyLength]
		flags |= reply.BitTruncated
	}
	var sb strings.Builder
	sb.Grow(len(text))
	for i := 0; i < len(text); i++ {
		if !safeByte(text[i]) {
			flags |= reply.BitGarbage
			continue
		}
		sb.WriteByte(text[i])
	}
	return sb.String(), flags
}

// safeByte reports whether b may appear in an outbound reply: lowercase
// letters, digits, and light punctuation
func safeByte(b byte) bool {
	if b >= 'a' && b <= 'z' {
		return true
	}
	if b >= '0' && b <= '9' {
		return true
	}
	switch b {
	case '.', ':', '_', '-', '<', '>', ',', '(', ')', '/', ' ':
		return true
	}
	return false
}
