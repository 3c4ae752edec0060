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

// Fold maps a nickname or channel name to its canonical lower-case form
// using the rfc1459 casemapping, where []\~ are the upper-case equivalents
// of {}|^
func Fold(s string) string {
	out := []byte(s)
	for i := 0; i < len(out); i++ {
		c := out[i]
		switch {
		case c >= 'A' && c <= 'Z':
			out[i] = c + ('a' - 'A')
		case c == '[':
			out[i] = '{'
		case c == ']':
			out[i] = '}'
		case c == '\\':
			out[i] = '|'
		case c == '~':
			out[i] = '^'
		}
	}
	return string(out)
}

// FoldEqual reports whether two names are equal under the rfc1459 casemapping
func FoldEqual(a string, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return Fold(a) == Fold(b)
}
