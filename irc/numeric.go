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

// Numeric replies used by this library. IRC numerics are transmitted as
// three-digit command tokens, so they are kept as strings to avoid repeated
// formatting on the hot path
const (
	RplWelcome        = "001"
	RplStatsLinkInfo  = "211"
	RplEndOfStats     = "219"
	RplEndOfWho       = "315"
	RplWhoReply       = "352"
	RplNamReply       = "353"
	RplEndOfNames     = "366"
	ErrNicknameInUse  = "433"
	ErrPasswdMismatch = "464"
	ErrNoPrivileges   = "481"
	RplLoggedIn       = "900"
	RplSaslSuccess    = "903"
	ErrSaslFail       = "904"
	ErrSaslTooLong    = "905"
	ErrSaslAborted    = "906"
)

// Channel membership prefixes in NAMES replies and the modes they correspond to
const (
	PrefixOper   = '@'
	PrefixHalfop = '%'
	PrefixVoice  = '+'
)
